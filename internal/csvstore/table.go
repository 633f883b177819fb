package csvstore

import "path/filepath"

// Table is a CSV file in a data directory with a fixed field order.
type Table[T any] struct {
	Path   string
	Fields []string
}

// NewTable returns the table stored as name inside dir.
func NewTable[T any](dir, name string, fields []string) Table[T] {
	return Table[T]{Path: filepath.Join(dir, name), Fields: fields}
}

// Append writes records to the table and returns how many were written.
func (t Table[T]) Append(records []T) (int, error) {
	if err := Append(t.Path, t.Fields, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Keys loads the distinct values of keyField from the table.
func (t Table[T]) Keys(keyField string) (map[string]struct{}, error) {
	return LoadKeys(t.Path, keyField)
}
