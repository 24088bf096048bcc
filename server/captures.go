package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kernelkaribou/timelapse-manager/models"
)

// handleCaptures lists captures for a job on /api/captures?job_id=...
func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	start, err := parseTimeParam(r, "start_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseTimeParam(r, "end_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	captures, err := s.store.ListCaptures(r.Context(), jobID, start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if captures == nil {
		captures = []models.Capture{}
	}
	writeJSON(w, http.StatusOK, captures)
}

// handleCaptureDetails handles /api/captures/{id}
func (s *Server) handleCaptureDetails(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := s.store.GetCapture(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		path, err := s.store.DeleteCapture(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		os.Remove(path)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
