package utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportArchive_PutReport(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, ctype, body = r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewReportArchive(context.Background(), ReportArchiveOptions{
		Bucket:          "reports",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		AccessKeySecret: "secret",
	})
	require.NoError(t, err)

	err = archive.PutReport(context.Background(), "reports/user-1/p-1.json", []byte(`{"participation":{"id":"p-1"}}`))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/reports/user-1/p-1.json", path)
	assert.Equal(t, "application/json", ctype)
	assert.True(t, strings.Contains(body, `"id":"p-1"`))
}

func TestReportArchive_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	archive, err := NewReportArchive(context.Background(), ReportArchiveOptions{
		Bucket:          "reports",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		AccessKeySecret: "secret",
	})
	require.NoError(t, err)

	err = archive.PutReport(context.Background(), "reports/a.json", []byte(`{}`))
	assert.Error(t, err)
}

func TestNewReportArchive_RequiresBucket(t *testing.T) {
	_, err := NewReportArchive(context.Background(), ReportArchiveOptions{})
	assert.Error(t, err)
}
