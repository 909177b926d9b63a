package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stage copies src into a new temp file under dir (os.TempDir() when empty)
// and returns its path and size. The result is meant to be handed to
// Pipeline.Run, which removes it. A supported extension from fileName is
// kept so the adapter can detect the format without a media type.
func Stage(dir, fileName string, src io.Reader) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != FormatXLSX && ext != FormatCSV {
		ext = ""
	}

	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	return f.Name(), n, nil
}
