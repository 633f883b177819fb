package pipeline

import (
	"context"

	"github.com/irail-csv/pipeline/internal/csvstore"
	"github.com/irail-csv/pipeline/internal/models"
)

// KeyIndex decides which trains are already in the registry.
type KeyIndex interface {
	// Known returns the train IDs already registered.
	Known(ctx context.Context) (map[string]struct{}, error)
	// Remember records trains that were just appended to the registry file.
	Remember(ctx context.Context, trains []models.TrainRecord) error
}

// FileIndex reads the registry CSV file on every call to Known. The CSV
// file is the only record, so Remember does nothing.
type FileIndex struct {
	path string
}

// NewFileIndex returns an index backed by the registry file at path.
func NewFileIndex(path string) *FileIndex {
	return &FileIndex{path: path}
}

func (i *FileIndex) Known(ctx context.Context) (map[string]struct{}, error) {
	return csvstore.LoadKeys(i.path, models.TrainKeyField)
}

func (i *FileIndex) Remember(ctx context.Context, trains []models.TrainRecord) error {
	return nil
}
