package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/web/templates"
)

// handleListHistory returns a page of the caller's imports.
// Query: page (1-based), pageSize (default 20, max 100).
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ListImportHistory(r.Context(), userID(r), page, pageSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.GetImportHistory(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h)
}

type jobResponse struct {
	*core.BackgroundJob
	Percent int `json:"percent"`
}

// handleGetJob reports background job progress. HTMX clients get a
// progress bar fragment for polling.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJob(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if job.Status.Terminal() {
			// Tells an hx-trigger="every 2s" poller to stop.
			w.Header().Set("HX-Trigger", "import-job-finished")
		}
		c := templates.JobProgress(string(job.Status), job.ProcessedRows, job.TotalRows, job.Percent())
		if err := c.Render(r.Context(), w); err != nil {
			s.respondError(w, r, err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, jobResponse{BackgroundJob: job, Percent: job.Percent()})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CancelJob(r.Context(), userID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"jobId":  id,
		"status": string(core.JobCancelled),
	})
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidRequest("%s must be an integer (got %q)", key, v)
	}
	return n, nil
}
