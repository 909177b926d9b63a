package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/logging"
)

const (
	// formOverhead is the slack allowed on top of the file size for the
	// multipart envelope and any other form fields.
	formOverhead = 1 << 20

	// formMemory is how much of the form is buffered in memory; the rest
	// spills to disk and is removed when the handler returns.
	formMemory = 8 << 20
)

// handleUpload accepts a spreadsheet in the multipart field "file", stages it
// as a temp file and runs it through the pipeline. Ownership of the temp file
// passes to the pipeline, which removes it on every path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, wrapErr(errFileTooLarge, err))
			return
		}
		s.respondError(w, r, wrapErr(errInvalidForm, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, wrapErr(errNoFile, err))
		return
	}
	defer file.Close()

	switch {
	case header.Size > maxSize:
		s.respondError(w, r, fmt.Errorf("%w: %d bytes exceeds %d", errFileTooLarge, header.Size, maxSize))
		return
	case header.Size == 0:
		s.respondError(w, r, errEmptyFile)
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if !s.pipeline.Adapter().Supports(header.Filename, mediaType) {
		status, resp := ingest.Report(ingest.RejectedBatch(ingest.MsgUnsupportedFile))
		writeJSON(w, status, resp)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	path, size, err := ingest.Stage(s.cfg.Upload.TempDir, header.Filename, file)
	if err != nil {
		s.respondError(w, r, wrapErr(errStageUpload, err))
		return
	}

	logging.FromContext(r.Context()).Debug("upload staged",
		"file", header.Filename,
		"size", size,
		"active", s.limiter.Active(),
	)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	out := s.pipeline.Run(ctx, ingest.Upload{
		Path:      path,
		FileName:  header.Filename,
		MediaType: mediaType,
		Size:      size,
	})

	status, resp := ingest.Report(out)
	writeJSON(w, status, resp)
}
