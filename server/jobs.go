package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kernelkaribou/timelapse-manager/capture"
	"github.com/kernelkaribou/timelapse-manager/models"
	"github.com/kernelkaribou/timelapse-manager/naming"
	"github.com/kernelkaribou/timelapse-manager/scheduler"
	"github.com/kernelkaribou/timelapse-manager/store"
	"github.com/kernelkaribou/timelapse-manager/video"
)

type createJobRequest struct {
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	StartAt         *time.Time `json:"start_datetime"`
	EndAt           *time.Time `json:"end_datetime"`
	IntervalSeconds int        `json:"interval_seconds"`
	Framerate       int        `json:"framerate"`
	NamingPattern   string     `json:"naming_pattern"`
	WindowEnabled   bool       `json:"time_window_enabled"`
	WindowStart     string     `json:"time_window_start"`
	WindowEnd       string     `json:"time_window_end"`
}

// handleJobs handles listing and creation on /api/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createJob(w, r)
	case http.MethodGet:
		jobs, err := s.store.ListJobs(r.Context(), models.JobStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if jobs == nil {
			jobs = []models.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	streamType, err := models.StreamTypeForURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IntervalSeconds < models.MinIntervalSeconds {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("interval must be at least %d seconds", models.MinIntervalSeconds))
		return
	}
	if req.StartAt == nil {
		writeError(w, http.StatusBadRequest, "start_datetime is required")
		return
	}
	if req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		writeError(w, http.StatusBadRequest, "end_datetime must be after start_datetime")
		return
	}
	if req.WindowEnabled {
		if err := validateWindow(req.WindowStart, req.WindowEnd); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Framerate == 0 {
		req.Framerate = 30
	}
	if req.Framerate < 1 || req.Framerate > 120 {
		writeError(w, http.StatusBadRequest, "framerate must be between 1 and 120")
		return
	}
	if req.NamingPattern == "" {
		req.NamingPattern = naming.DefaultCapturePattern
	}

	// each job owns a directory under the captures root
	jobDir := filepath.Join(s.capturesRoot, naming.SanitizeName(req.Name))
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot create capture directory: %v", err))
		return
	}

	job := &models.Job{
		Name:            req.Name,
		URL:             req.URL,
		StreamType:      streamType,
		StartAt:         *req.StartAt,
		EndAt:           req.EndAt,
		IntervalSeconds: req.IntervalSeconds,
		Framerate:       req.Framerate,
		CapturePath:     jobDir,
		NamingPattern:   req.NamingPattern,
		WindowEnabled:   req.WindowEnabled,
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

type updateJobRequest struct {
	Name            *string           `json:"name"`
	URL             *string           `json:"url"`
	StartAt         *time.Time        `json:"start_datetime"`
	EndAt           *time.Time        `json:"end_datetime"`
	ClearEnd        bool              `json:"clear_end_datetime"`
	IntervalSeconds *int              `json:"interval_seconds"`
	Framerate       *int              `json:"framerate"`
	Status          *models.JobStatus `json:"status"`
	WindowEnabled   *bool             `json:"time_window_enabled"`
	WindowStart     *string           `json:"time_window_start"`
	WindowEnd       *string           `json:"time_window_end"`
}

// handleJobDetails routes /api/jobs/{id}[...] plus the test-url probe
func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]

	if jobID == "test-url" && r.Method == http.MethodPost {
		s.testURL(w, r)
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "complete" && r.Method == http.MethodPost:
			s.completeJob(w, r, jobID)
		case parts[1] == "duration" && r.Method == http.MethodGet:
			s.jobDuration(w, r, jobID)
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.store.GetJob(r.Context(), jobID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodPatch:
		s.updateJob(w, r, jobID)
	case http.MethodDelete:
		s.deleteJob(w, r, jobID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request, jobID string) {
	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	upd := store.JobUpdate{
		Name:            req.Name,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		ClearEnd:        req.ClearEnd,
		IntervalSeconds: req.IntervalSeconds,
		Framerate:       req.Framerate,
		WindowEnabled:   req.WindowEnabled,
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
	}

	if req.URL != nil {
		streamType, err := models.StreamTypeForURL(*req.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.URL = req.URL
		upd.StreamType = &streamType
	}
	if req.Status != nil {
		switch *req.Status {
		case models.StatusActive, models.StatusDisabled, models.StatusCompleted:
			upd.Status = req.Status
		default:
			writeError(w, http.StatusBadRequest, "status must be active, disabled, or completed")
			return
		}
	}
	if req.WindowStart != nil || req.WindowEnd != nil {
		current, err := s.store.GetJob(r.Context(), jobID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		start, end := mergedWindow(current, &req)
		if err := validateWindow(start, end); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, err := s.store.UpdateJob(r.Context(), jobID, upd)
	if err != nil {
		if strings.Contains(err.Error(), "must be") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}

	s.NotifyJob(job.ID)
	writeJSON(w, http.StatusOK, job)
}

// completeJob ends a job immediately: end time pinned to now, status completed.
func (s *Server) completeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	status := models.StatusCompleted
	job, err := s.store.UpdateJob(r.Context(), jobID, store.JobUpdate{Status: &status})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.NotifyJob(job.ID)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	cascade := r.URL.Query().Get("cascade") != "false"
	paths, err := s.store.DeleteJob(r.Context(), jobID, cascade)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, p := range paths {
		os.Remove(p)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jobDuration(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, video.EstimateDuration(job.CaptureCount))
}

func (s *Server) testURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	writeJSON(w, http.StatusOK, capture.TestURL(r.Context(), s.capturer, req.URL, s.captureTimeout))
}

// mergedWindow overlays a partial edit's window bounds onto the job's
// current ones, so validating a single-bound PATCH sees the full window.
func mergedWindow(job *models.Job, req *updateJobRequest) (start, end string) {
	start, end = job.WindowStart, job.WindowEnd
	if req.WindowStart != nil {
		start = *req.WindowStart
	}
	if req.WindowEnd != nil {
		end = *req.WindowEnd
	}
	return start, end
}

func validateWindow(start, end string) error {
	if _, err := scheduler.ParseClockTime(start); err != nil {
		return fmt.Errorf("time_window_start: %w", err)
	}
	if _, err := scheduler.ParseClockTime(end); err != nil {
		return fmt.Errorf("time_window_end: %w", err)
	}
	return nil
}
