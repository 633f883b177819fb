package db

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Cleanup deletes runs, and their items, older than the retention duration.
// The train registry is never pruned.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) error {
	hours := int(retention.Hours())
	if hours < 1 {
		hours = 1
	}

	db.LockWrite()
	defer db.UnlockWrite()

	cutoff := fmt.Sprintf("datetime('now', '-%d hours')", hours)
	queries := []struct {
		name  string
		query string
	}{
		{
			name: "run_items",
			query: "DELETE FROM pipeline_run_items WHERE run_id IN (" +
				"SELECT run_id FROM pipeline_runs WHERE datetime(started_at_utc) < " + cutoff + ")",
		},
		{
			name:  "runs",
			query: "DELETE FROM pipeline_runs WHERE datetime(started_at_utc) < " + cutoff,
		},
	}

	totalDeleted := 0
	for _, q := range queries {
		result, err := db.conn.ExecContext(ctx, q.query)
		if err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		rows, _ := result.RowsAffected()
		totalDeleted += int(rows)
	}

	if totalDeleted > 0 {
		log.Printf("Database: cleanup deleted %d records older than %d hours", totalDeleted, hours)
	}
	return nil
}
