package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReportSink(t *testing.T) {
	dir := t.TempDir()
	sink := FileReportSink{Dir: dir}

	require.NoError(t, sink.PutReport(context.Background(), "reports/user-1/p-1.json", []byte(`{"ok":true}`)))
	got, err := os.ReadFile(filepath.Join(dir, "reports", "user-1", "p-1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got))

	require.NoError(t, sink.PutReport(context.Background(), "reports/user-1/p-1.json", []byte(`{"ok":false}`)), "overwrite")
	got, err = os.ReadFile(filepath.Join(dir, "reports", "user-1", "p-1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false}`, string(got))

	assert.Error(t, sink.PutReport(context.Background(), "../escape.json", []byte(`{}`)))
}
