// Package app wires configuration, the iRail client, the registry index and
// the run log into a runnable pipeline shared by the command-line and HTTP
// entry points.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/irail-csv/pipeline/internal/config"
	"github.com/irail-csv/pipeline/internal/db"
	"github.com/irail-csv/pipeline/internal/irail"
	"github.com/irail-csv/pipeline/internal/models"
	"github.com/irail-csv/pipeline/internal/pipeline"
)

// App is a configured pipeline plus its optional run log.
type App struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline

	// DB is nil when the run log is disabled.
	DB *db.DB
}

// New opens the run log when configured and builds the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if cfg.DatabaseEnabled() {
		database, err := db.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run log: %w", err)
		}
		a.DB = database
	} else {
		log.Println("Database: run log disabled")
	}

	trainsPath := cfg.OutputPath(models.TrainsFile)
	var index pipeline.KeyIndex
	switch cfg.RegistryBackend {
	case config.RegistrySQLite:
		index = db.NewTrainIndex(a.DB, trainsPath)
	default:
		index = pipeline.NewFileIndex(trainsPath)
	}

	a.pipeline = pipeline.New(cfg, irail.NewClient(cfg), index)
	return a, nil
}

// Close releases the run log.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Run performs one pipeline run, logs its failed items, records it in the
// run log and prunes expired runs. Run log errors are logged, not returned.
func (a *App) Run(ctx context.Context) *models.RunSummary {
	summary := a.pipeline.Run(ctx)

	for _, item := range summary.Failed() {
		log.Printf("Pipeline: failed %s %s: %s", item.Kind, item.Target, item.Error)
	}
	log.Printf("Pipeline: run %s finished in %v: %d ok, %d failed, %d rows written",
		summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
		summary.ItemsOK, summary.ItemsFailed, summary.RowsWritten)

	if a.DB == nil {
		return summary
	}

	// Record interrupted runs too
	ctx = context.WithoutCancel(ctx)
	if err := a.DB.RecordRun(ctx, summary); err != nil {
		log.Printf("Database: failed to record run %s: %v", summary.RunID, err)
	}
	if a.cfg.RetentionDuration > 0 {
		if err := a.DB.Cleanup(ctx, a.cfg.RetentionDuration); err != nil {
			log.Printf("Database: cleanup error: %v", err)
		}
	}
	return summary
}
