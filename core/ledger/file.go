package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
)

type Store interface {
	// Load returns an empty ledger if nothing was saved for the period.
	Load(period string) (*Ledger, error)
	// Save replaces the stored ledger atomically.
	Save(ledger *Ledger) error
}

// StorageError is returned on ledger I/O failures.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FileStore keeps one JSON file per period in Dir.
type FileStore struct {
	Dir string
}

func (s FileStore) path(period string) string {
	return filepath.Join(s.Dir, period+".json")
}

func (s FileStore) Load(period string) (*Ledger, error) {
	path := s.path(period)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(period), nil
	} else if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	ledger := New(period)
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, &StorageError{Op: "decode", Path: path, Err: err}
	}

	return ledger, nil
}

func (s FileStore) Save(ledger *Ledger) error {
	path := s.path(ledger.Period)
	data, err := json.MarshalIndent(ledger, "", "    ")
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.Dir, Err: err}
	}

	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}

	return nil
}
