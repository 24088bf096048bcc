package main

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kernelkaribou/timelapse-manager/capture"
	"github.com/kernelkaribou/timelapse-manager/naming"
	"github.com/kernelkaribou/timelapse-manager/notify"
	"github.com/kernelkaribou/timelapse-manager/scheduler"
	"github.com/kernelkaribou/timelapse-manager/server"
	"github.com/kernelkaribou/timelapse-manager/store"
	"github.com/kernelkaribou/timelapse-manager/video"
)

func main() {
	// Configuration
	httpAddr := getEnv("LISTEN_ADDR", ":8080")
	capturesRoot := getEnv("CAPTURES_PATH", "/mnt/captures")
	videosDir := getEnv("VIDEOS_PATH", "/mnt/timelapses")
	dbURL := getEnv("DATABASE_URL", "postgres://timelapse@localhost:5432/timelapse?sslmode=disable")
	captureTimeout := time.Duration(getEnvInt("FFMPEG_TIMEOUT", 30)) * time.Second
	tickInterval := time.Duration(getEnvInt("TICK_SECONDS", 10)) * time.Second
	maxConcurrent := getEnvInt("MAX_CONCURRENT_CAPTURES", 16)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ffmpeg does all frame grabbing and encoding
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		log.Fatal("ffmpeg not found in PATH")
	}

	loc := localTimezone()

	// Connect to database
	pool, err := connectDatabase(ctx, dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	resolver := &naming.Resolver{VideosDir: videosDir}
	capturer := capture.NewFFmpegCapturer()

	// Optional NATS event feed
	var publisher *notify.Publisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		publisher, err = notify.New(natsURL)
		if err != nil {
			log.Printf("Warning: NATS unavailable, continuing without event feed: %v", err)
		} else {
			defer publisher.Close()
		}
	}

	orch := video.NewOrchestrator(ctx, st, st, st, video.NewFFmpegEncoder(), resolver, fileSize)

	sched := scheduler.New(st, capturer, resolver, capture.NewFFmpegThumbnailer(), scheduler.Config{
		TickInterval:   tickInterval,
		CaptureTimeout: captureTimeout,
		MaxConcurrent:  maxConcurrent,
		Location:       loc,
	})

	srv := server.NewServer(st, orch, capturer, publisher, server.Config{
		Addr:           httpAddr,
		CapturesRoot:   capturesRoot,
		CaptureTimeout: captureTimeout,
	})
	sched.SetNotifier(srv.NotifyJob)
	orch.SetNotifier(srv.NotifyVideo)

	go sched.Run(ctx)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}

	log.Println("Shutting down gracefully...")
	orch.Wait()
	log.Println("Stopped.")
}

// connectDatabase retries for a while so the service survives a database
// that comes up slower than the container.
func connectDatabase(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(ctx, dbURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		log.Printf("Waiting for database... (%d/10)", i+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, err
}

func localTimezone() *time.Location {
	tz := os.Getenv("TZ")
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Warning: invalid TZ %q, falling back to local time", tz)
		return time.Local
	}
	return loc
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s, using %d", key, fallback)
	}
	return fallback
}
