package db

import (
	"context"
	"fmt"
	"time"

	"github.com/irail-csv/pipeline/internal/csvstore"
	"github.com/irail-csv/pipeline/internal/models"
)

// TrainIndex keeps registered train ids in the train_registry table next
// to the trains.csv registry file. The file stays authoritative: Known
// merges its ids with the table's, so a recreated database, a switch from
// the csv backend or a failed Remember never re-registers a train.
type TrainIndex struct {
	db         *DB
	trainsPath string
	now        func() time.Time
}

// NewTrainIndex returns a registry index stored in db for the registry
// file at trainsPath.
func NewTrainIndex(db *DB, trainsPath string) *TrainIndex {
	return &TrainIndex{db: db, trainsPath: trainsPath, now: time.Now}
}

// Known returns every train id present in the registry file or the table.
func (i *TrainIndex) Known(ctx context.Context) (map[string]struct{}, error) {
	known, err := csvstore.LoadKeys(i.trainsPath, models.TrainKeyField)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry file: %w", err)
	}

	rows, err := i.db.conn.QueryContext(ctx, "SELECT train_id FROM train_registry")
	if err != nil {
		return nil, fmt.Errorf("failed to query train registry: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan train id: %w", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate train registry: %w", err)
	}
	return known, nil
}

// Remember registers trains. Ids already present keep their first-seen time.
func (i *TrainIndex) Remember(ctx context.Context, trains []models.TrainRecord) error {
	if len(trains) == 0 {
		return nil
	}

	i.db.LockWrite()
	defer i.db.UnlockWrite()

	tx, err := i.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO train_registry (train_id, train_type, first_seen_utc)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare registry insert: %w", err)
	}
	defer stmt.Close()

	seenAt := i.now().UTC().Format(time.RFC3339)
	for _, train := range trains {
		if _, err := stmt.ExecContext(ctx, train.TrainID, train.TrainType, seenAt); err != nil {
			return fmt.Errorf("failed to register train %s: %w", train.TrainID, err)
		}
	}

	return tx.Commit()
}
