package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/irail-csv/pipeline/internal/api"
	"github.com/irail-csv/pipeline/internal/app"
	"github.com/irail-csv/pipeline/internal/config"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// config.Load reads .env from the working directory; the repository root
	// copy is picked up when started from cmd/api during development.
	_ = godotenv.Load("../../.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer a.Close()

	var store api.RunStore
	if a.DB != nil {
		store = a.DB
	}
	handler := api.NewRunHandler(a, store)

	origins := []string{"http://localhost:5173"}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(handler, origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API server starting on :%s", cfg.HTTPPort)
	log.Println("Pipeline endpoints:")
	log.Println("  POST /api/runs")
	log.Println("  GET  /api/runs")
	log.Println("  GET  /api/runs/{runID}")
	log.Println("Health:")
	log.Println("  GET  /health (with database check)")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Goodbye!")
}
