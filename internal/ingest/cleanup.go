package ingest

import (
	"errors"
	"io/fs"
	"log/slog"
)

// removeTempFile deletes the uploaded temp file. A file that is already gone
// is fine; any other failure is logged and does not affect the outcome.
func (p *Pipeline) removeTempFile(log *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := p.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to remove temp file", "path", path, "error", err)
		p.metrics.cleanupFailed()
		return
	}
	log.Debug("temp file removed", "path", path)
}
