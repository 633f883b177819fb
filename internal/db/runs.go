package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irail-csv/pipeline/internal/models"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RecordRun stores a run summary and its items in one transaction.
func (db *DB) RecordRun(ctx context.Context, summary *models.RunSummary) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			run_id, started_at_utc, finished_at_utc, items_ok, items_failed,
			rows_written, delay_count, delay_mean_seconds, delay_stddev_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		summary.ItemsOK,
		summary.ItemsFailed,
		summary.RowsWritten,
		summary.Delays.Count,
		summary.Delays.MeanSeconds,
		summary.Delays.StdDevSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pipeline_run_items (run_id, seq, kind, target, rows_written, error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range summary.Items {
		var itemErr sql.NullString
		if !item.OK() {
			itemErr = sql.NullString{String: item.Error, Valid: true}
			if item.Error == "" && item.Err != nil {
				itemErr.String = item.Err.Error()
			}
		}
		if _, err := stmt.ExecContext(ctx, summary.RunID, i, string(item.Kind), item.Target, item.Rows, itemErr); err != nil {
			return fmt.Errorf("failed to insert item %s %s: %w", item.Kind, item.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", summary.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, without their items.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, started_at_utc, finished_at_utc, items_ok, items_failed,
			rows_written, delay_count, delay_mean_seconds, delay_stddev_seconds
		FROM pipeline_runs
		ORDER BY started_at_utc DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with its items in processing order.
func (db *DB) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT run_id, started_at_utc, finished_at_utc, items_ok, items_failed,
			rows_written, delay_count, delay_mean_seconds, delay_stddev_seconds
		FROM pipeline_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT kind, target, rows_written, error
		FROM pipeline_run_items
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of run %s: %w", runID, err)
	}
	defer rows.Close()

	run.Items = []models.ItemResult{}
	for rows.Next() {
		var item models.ItemResult
		var kind string
		var itemErr sql.NullString
		if err := rows.Scan(&kind, &item.Target, &item.Rows, &itemErr); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Kind = models.ItemKind(kind)
		item.Error = itemErr.String
		run.Items = append(run.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.RunSummary, error) {
	var run models.RunSummary
	var startedAt, finishedAt string
	err := s.Scan(
		&run.RunID, &startedAt, &finishedAt,
		&run.ItemsOK, &run.ItemsFailed, &run.RowsWritten,
		&run.Delays.Count, &run.Delays.MeanSeconds, &run.Delays.StdDevSeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at_utc %q: %w", startedAt, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return nil, fmt.Errorf("invalid finished_at_utc %q: %w", finishedAt, err)
	}
	return &run, nil
}
