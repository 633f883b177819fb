package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/irail-csv/pipeline/internal/app"
	"github.com/irail-csv/pipeline/internal/config"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	log.Println("Starting iRail CSV pipeline...")

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Configuration
	// ═══════════════════════════════════════════════════════
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Config loaded: data_dir=%s, stations=%d, routes=%d, vehicles=%d, registry=%s",
		cfg.OutputDirectory, len(cfg.Stations), len(cfg.Routes), len(cfg.Vehicles), cfg.RegistryBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Run log and pipeline
	// ═══════════════════════════════════════════════════════
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer a.Close()

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Run
	// ═══════════════════════════════════════════════════════
	runOnce(ctx, a)

	if cfg.RunInterval <= 0 {
		return
	}

	log.Printf("Pipeline scheduled every %v", cfg.RunInterval)
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runOnce(ctx, a)
		case <-ctx.Done():
			log.Println("Shutting down...")
			return
		}
	}
}

func runOnce(ctx context.Context, a *app.App) {
	banner := strings.Repeat("=", 60)
	log.Println(banner)
	log.Printf("iRail CSV pipeline run started at %s", time.Now().UTC().Format(time.RFC3339))
	log.Println(banner)

	summary := a.Run(ctx)

	log.Println(banner)
	log.Printf("Pipeline completed: %d items ok, %d failed, %d rows written",
		summary.ItemsOK, summary.ItemsFailed, summary.RowsWritten)
	if summary.Delays.Count > 0 {
		log.Printf("Departure delays: mean %.0fs, stddev %.0fs over %d departures",
			summary.Delays.MeanSeconds, summary.Delays.StdDevSeconds, summary.Delays.Count)
	}
	log.Println(banner)
}
