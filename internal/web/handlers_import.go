package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

// multipartOverhead is slack for boundaries and option fields on top of the
// file size limit.
const multipartOverhead = 1 << 20

// handleImport accepts a multipart upload in field "file" plus option fields.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if maxSize <= 0 {
		maxSize = core.MaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, core.ErrFileTooLarge)
			return
		}
		s.badRequest(w, r, "request must be multipart/form-data: %v", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, r, "no file provided in field \"file\"")
		return
	}
	defer file.Close()

	if err := core.CheckUpload(header.Filename, header.Header.Get("Content-Type"), header.Size, maxSize); err != nil {
		s.respondError(w, r, err)
		return
	}

	opts, err := parseImportOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Debug("import received",
		"file", header.Filename,
		"bytes", len(data),
		"validate_only", opts.ValidateOnly,
	)

	result, err := s.service.Import(r.Context(), core.ImportRequest{
		UserID:   userID(r),
		FileName: header.Filename,
		Data:     data,
		Options:  opts,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch {
	case result.Validation != nil:
		writeJSON(w, r, http.StatusOK, result.Validation.Summary())
	case result.IsBackground:
		writeJSON(w, r, http.StatusAccepted, result)
	default:
		writeJSON(w, r, http.StatusOK, result)
	}
}

// parseImportOptions reads createMissing, duplicateHandling,
// backgroundThreshold and validateOnly from the form.
func parseImportOptions(r *http.Request) (core.ImportOptions, error) {
	var (
		opts core.ImportOptions
		err  error
	)
	if opts.CreateMissing, err = formBool(r, "createMissing"); err != nil {
		return opts, err
	}
	if opts.ValidateOnly, err = formBool(r, "validateOnly"); err != nil {
		return opts, err
	}
	opts.DuplicateHandling = core.DuplicateStrategy(strings.ToLower(strings.TrimSpace(r.FormValue("duplicateHandling"))))

	if v := strings.TrimSpace(r.FormValue("backgroundThreshold")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, invalidRequest("backgroundThreshold %q is not a number", v)
		}
		opts.BackgroundThreshold = n
	}
	return opts, opts.Validate()
}

// formBool accepts anything strconv.ParseBool does, plus "on" from HTML checkboxes.
func formBool(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	switch strings.ToLower(v) {
	case "":
		return false, nil
	case "on":
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalidRequest("%s must be true or false (got %q)", key, v)
	}
	return b, nil
}

// handleImportTemplate serves the import template as csv (default) or xlsx.
func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	tmpl, err := core.ImportTemplate(format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeAttachment(w, r, tmpl.FileName, tmpl.ContentType, tmpl.Data)
}
