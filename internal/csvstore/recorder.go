// Package csvstore appends typed records to CSV files and loads the key set
// of a header-led CSV table.
//
// Files are opened, written and closed within a single call. There is no
// locking: two processes appending to the same file may interleave rows.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/jszwec/csvutil"
)

var (
	// ErrHeaderMismatch is returned when a file's existing header differs
	// from the fields an append supplies.
	ErrHeaderMismatch = errors.New("csv header mismatch")

	// ErrMissingKeyField is returned when the key column is not part of a
	// file's header.
	ErrMissingKeyField = errors.New("key field not in csv header")
)

// Append writes records to the file at path, one line per record, in the
// order given by fields. A header line is written first when the file does
// not exist or is empty. An empty records slice is a no-op and does not
// create the file.
func Append[T any](path string, fields []string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if len(fields) == 0 {
		return fmt.Errorf("append to %s: no fields", path)
	}

	state, err := headerState(path, fields)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	// Terminate a truncated last line so the first record starts its own
	if state.missingNewline {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.SetHeader(fields)
	enc.AutoHeader = state.needHeader

	if err := enc.Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode records for %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

type fileState struct {
	needHeader     bool
	missingNewline bool
}

// headerState reports what must be written before appending to path, and
// rejects files whose existing header is not fields.
func headerState(path string, fields []string) (fileState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileState{needHeader: true}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fileState{needHeader: true}, nil
	}

	header, err := readHeader(path)
	if err != nil {
		return fileState{}, err
	}
	if !slices.Equal(header, fields) {
		return fileState{}, fmt.Errorf("%w: %s has %v, append supplies %v", ErrHeaderMismatch, filepath.Base(path), header, fields)
	}

	last, err := lastByte(path, info.Size())
	if err != nil {
		return fileState{}, err
	}
	return fileState{missingNewline: last != '\n'}, nil
}

func lastByte(path string, size int64) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, size-1); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf[0], nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return dec.Header(), nil
}

// Header returns the default field order of a record type, taken from its
// csv struct tags.
func Header[T any]() ([]string, error) {
	var zero T
	return csvutil.Header(zero, "csv")
}

// LoadKeys returns the distinct values of keyField across all rows of the
// file at path. A missing or empty file yields an empty set.
func LoadKeys(path, keyField string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	dec, err := csvutil.NewDecoder(r)
	if errors.Is(err, io.EOF) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	idx := slices.Index(dec.Header(), keyField)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingKeyField, keyField, filepath.Base(path))
	}

	// The decoder consumed the header; the remaining rows are read raw.
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		keys[record[idx]] = struct{}{}
	}

	return keys, nil
}
