package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

// maxExportRequestBody bounds the JSON body of POST /api/exports.
const maxExportRequestBody = 64 << 10

// handleExport serves GET (filters as query parameters) and POST (JSON
// core.ExportRequest) exports as a file download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var (
		req core.ExportRequest
		err error
	)
	if r.Method == http.MethodPost {
		req, err = decodeExportBody(w, r)
	} else {
		req, err = exportRequestFromQuery(r.URL.Query())
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	payload, err := s.service.Export(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("X-Export-Rows", strconv.Itoa(payload.Rows))
	writeAttachment(w, r, payload.FileName, payload.ContentType, payload.Data)
}

func decodeExportBody(w http.ResponseWriter, r *http.Request) (core.ExportRequest, error) {
	var req core.ExportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, invalidRequest("export body is not a valid request: %v", err)
	}
	if _, err := core.ParseExportFormat(string(req.Format)); err != nil {
		return req, err
	}
	return req, nil
}

// exportRequestFromQuery reads format, includeHierarchy, includeTags and the
// filter fields. List fields accept repeated keys or comma-separated values.
func exportRequestFromQuery(q url.Values) (core.ExportRequest, error) {
	var req core.ExportRequest

	format, err := core.ParseExportFormat(q.Get("format"))
	if err != nil {
		return req, err
	}
	req.Format = format

	if req.IncludeHierarchy, err = queryBool(q, "includeHierarchy", true); err != nil {
		return req, err
	}
	if req.IncludeTags, err = queryBool(q, "includeTags", true); err != nil {
		return req, err
	}

	f := &req.Filter
	f.Sites = queryList(q, "sites")
	f.EquipmentTypes = queryList(q, "equipmentTypes")
	f.Manufacturers = queryList(q, "manufacturers")
	f.Tags = queryList(q, "tags")
	f.Search = strings.TrimSpace(q.Get("search"))
	f.IPRange = strings.TrimSpace(q.Get("ipRange"))

	if f.DateFrom, err = queryTime(q, "dateFrom", false); err != nil {
		return req, err
	}
	if f.DateTo, err = queryTime(q, "dateTo", true); err != nil {
		return req, err
	}
	return req, nil
}

func queryList(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(q url.Values, key string, def bool) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalidRequest("%s must be true or false (got %q)", key, v)
	}
	return b, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain dateTo
// covers the whole day.
func queryTime(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, invalidRequest("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp (got %q)", key, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// writeAttachment sends data as a download named fileName.
func writeAttachment(w http.ResponseWriter, r *http.Request, fileName, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.FromContext(r.Context()).Warn("write download", "file", fileName, "error", err)
	}
}
