// Package logstore appends Deposit records to a CSV file that is never rewritten.
package logstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/devblac/deposit-listener/internal/record"
)

// ErrPersistence wraps any failure to create or write the log file.
var ErrPersistence = errors.New("persistence failure")

// Store is an append-only CSV log at a fixed path.
// Concurrent writers from separate processes are not coordinated.
type Store struct {
	path string
}

// New returns a store writing to path. The file is created lazily on the first non-empty append.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	return &Store{path: path}, nil
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Append writes the batch as one write call and returns the number of records written.
// A zero-length file (new or pre-existing) receives the header first. On a failed write the
// file is truncated back to its previous size so no partial row is left behind.
func (s *Store) Append(records []record.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrPersistence, s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", ErrPersistence, s.path, err)
	}
	size := info.Size()

	payload, err := encode(records, size == 0)
	if err != nil {
		return 0, fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	if size > 0 {
		terminated, err := endsWithNewline(s.path, size)
		if err != nil {
			return 0, fmt.Errorf("%w: read %s: %w", ErrPersistence, s.path, err)
		}
		if !terminated {
			payload = append([]byte{'\n'}, payload...)
		}
	}

	if _, err := f.Write(payload); err != nil {
		if terr := f.Truncate(size); terr != nil {
			err = errors.Join(err, fmt.Errorf("truncate: %w", terr))
		}
		return 0, fmt.Errorf("%w: write %s: %w", ErrPersistence, s.path, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("%w: sync %s: %w", ErrPersistence, s.path, err)
	}
	return len(records), nil
}

func encode(records []record.Record, header bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header {
		if err := w.Write(record.Columns); err != nil {
			return nil, err
		}
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadAll returns every persisted record. A missing file yields no records.
func (s *Store) ReadAll() ([]record.Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(record.Columns)

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, record.Columns) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []record.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec, err := record.FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// endsWithNewline reports whether the last byte of a file of the given size is '\n'.
func endsWithNewline(path string, size int64) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}
