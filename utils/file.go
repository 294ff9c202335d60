package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileReportSink writes reports below a local directory. Used when no bucket
// is configured.
type FileReportSink struct {
	Dir string
}

// PutReport writes body to Dir/key, creating parent directories as needed.
func (s FileReportSink) PutReport(_ context.Context, key string, body []byte) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("illegal report key: %s", key)
	}
	destPath := filepath.Join(s.Dir, clean)

	// ✅ Ensure the directory for the destination file exists
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".report-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}
