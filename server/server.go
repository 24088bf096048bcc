// Package server exposes the HTTP API consumed by the web frontend: job
// CRUD, capture browsing, video builds, and a WebSocket feed of live
// job and build updates.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kernelkaribou/timelapse-manager/capture"
	"github.com/kernelkaribou/timelapse-manager/notify"
	"github.com/kernelkaribou/timelapse-manager/store"
	"github.com/kernelkaribou/timelapse-manager/video"
)

// Server handles HTTP requests for job and video management
type Server struct {
	store        *store.Store
	orchestrator *video.Orchestrator
	capturer     capture.Framegrabber
	publisher    *notify.Publisher
	wsManager    *WebSocketManager
	upgrader     websocket.Upgrader

	addr           string
	capturesRoot   string
	captureTimeout time.Duration
}

// Config carries the server's wiring and tuning.
type Config struct {
	Addr           string
	CapturesRoot   string
	CaptureTimeout time.Duration
}

// NewServer creates a server instance. The NATS publisher may be nil.
func NewServer(st *store.Store, orch *video.Orchestrator, capturer capture.Framegrabber, publisher *notify.Publisher, cfg Config) *Server {
	wsManager := NewWebSocketManager()
	wsManager.Start()

	return &Server{
		store:          st,
		orchestrator:   orch,
		capturer:       capturer,
		publisher:      publisher,
		wsManager:      wsManager,
		addr:           cfg.Addr,
		capturesRoot:   cfg.CapturesRoot,
		captureTimeout: cfg.CaptureTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// NotifyJob broadcasts a job's current state to WebSocket clients and NATS.
// Wired as the scheduler's notifier callback.
func (s *Server) NotifyJob(jobID string) {
	job, err := s.store.GetJob(context.Background(), jobID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to load job %s for notification: %v", jobID, err)
		}
		return
	}
	s.wsManager.Broadcast("job_update", job)
	if s.publisher != nil {
		s.publisher.Publish(notify.SubjectJobUpdate, job)
	}
}

// NotifyVideo broadcasts a build's current state. Wired as the
// orchestrator's notifier callback.
func (s *Server) NotifyVideo(videoID string) {
	v, err := s.store.GetVideo(context.Background(), videoID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to load video %s for notification: %v", videoID, err)
		}
		return
	}
	s.wsManager.Broadcast("video_update", v)
	if s.publisher != nil {
		s.publisher.Publish(notify.SubjectVideoUpdate, v)
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	corsMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}

	mux.Handle("/api/jobs", corsMiddleware(http.HandlerFunc(s.handleJobs)))
	mux.Handle("/api/jobs/", corsMiddleware(http.HandlerFunc(s.handleJobDetails)))
	mux.Handle("/api/captures", corsMiddleware(http.HandlerFunc(s.handleCaptures)))
	mux.Handle("/api/captures/", corsMiddleware(http.HandlerFunc(s.handleCaptureDetails)))
	mux.Handle("/api/videos", corsMiddleware(http.HandlerFunc(s.handleVideos)))
	mux.Handle("/api/videos/", corsMiddleware(http.HandlerFunc(s.handleVideoDetails)))
	mux.Handle("/ws", http.HandlerFunc(s.handleWebSocket))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Run serves HTTP until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocket upgrades the connection and feeds it live updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	s.wsManager.RegisterClient(conn)

	// Send the current job list so new clients have a full picture
	jobs, err := s.store.ListJobs(r.Context(), "")
	if err == nil {
		initial, err := json.Marshal(map[string]any{
			"type": "initial_jobs",
			"data": jobs,
		})
		if err == nil {
			conn.WriteMessage(websocket.TextMessage, initial)
		}
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				break
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	log.Printf("Store error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
