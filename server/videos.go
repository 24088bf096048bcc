package server

import (
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/kernelkaribou/timelapse-manager/models"
	"github.com/kernelkaribou/timelapse-manager/video"
)

var resolutionPattern = regexp.MustCompile(`^\d+x\d+$`)

// handleVideos handles build creation and listing on /api/videos
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createVideo(w, r)
	case http.MethodGet:
		videos, err := s.store.ListVideos(r.Context(), r.URL.Query().Get("job_id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if videos == nil {
			videos = []models.Video{}
		}
		writeJSON(w, http.StatusOK, videos)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createVideo(w http.ResponseWriter, r *http.Request) {
	var req video.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Resolution == "" {
		req.Resolution = "1920x1080"
	}
	if !resolutionPattern.MatchString(req.Resolution) {
		writeError(w, http.StatusBadRequest, "resolution must look like 1920x1080")
		return
	}
	if req.Framerate == 0 {
		req.Framerate = 30
	}
	if req.Framerate < 1 || req.Framerate > 120 {
		writeError(w, http.StatusBadRequest, "framerate must be between 1 and 120")
		return
	}
	switch req.Quality {
	case "":
		req.Quality = "high"
	case "low", "medium", "high", "lossless":
	default:
		writeError(w, http.StatusBadRequest, "quality must be low, medium, high, or lossless")
		return
	}

	v, err := s.orchestrator.StartBuild(r.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

// handleVideoDetails handles /api/videos/{id} and /api/videos/{id}/download
func (s *Server) handleVideoDetails(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	parts := strings.SplitN(rest, "/", 2)
	videoID := parts[0]

	if len(parts) == 2 && parts[1] == "download" && r.Method == http.MethodGet {
		s.downloadVideo(w, r, videoID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		v, err := s.store.GetVideo(r.Context(), videoID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case http.MethodDelete:
		path, err := s.store.DeleteVideo(r.Context(), videoID)
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

func (s *Server) downloadVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	v, err := s.store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if v.Status != models.VideoCompleted {
		writeError(w, http.StatusBadRequest, "video is not ready for download")
		return
	}
	if _, err := os.Stat(v.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "video file not found on disk")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+v.Name+`.mp4"`)
	http.ServeFile(w, r, v.FilePath)
}
