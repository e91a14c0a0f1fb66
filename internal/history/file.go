package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps the history as one JSON array, newest first, capped at a
// fixed number of records. Writers are serialized and each write replaces the
// file atomically, so concurrent appends never drop a record.
type FileStore struct {
	path     string
	capacity int
	mu       sync.Mutex
	now      func() time.Time
}

// NewFileStore opens (creating if needed) the history file at path.
func NewFileStore(path string, capacity int) (*FileStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("failed to initialize history file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat history file: %w", err)
	}
	return &FileStore{path: path, capacity: capacity, now: time.Now}, nil
}

// Backend implements Store.
func (s *FileStore) Backend() string { return "file:" + s.path }

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Append implements Store. When the file is full the oldest records go first.
func (s *FileStore) Append(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return Record{}, err
	}
	rec = stamp(rec, s.now())
	all = append([]Record{rec}, all...)
	if len(all) > s.capacity {
		all = all[:s.capacity]
	}
	if err := s.writeAll(all); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List implements Store. The cursor is a decimal offset.
func (s *FileStore) List(_ context.Context, limit int, cursor string) (*Page, error) {
	s.mu.Lock()
	all, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return pageOf(all, limit, cursor), nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, r := range all {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	return s.writeAll(kept)
}

// Stats implements Store.
func (s *FileStore) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// Records implements Store.
func (s *FileStore) Records(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *FileStore) readAll() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var all []Record
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	if all == nil {
		all = []Record{}
	}
	return all, nil
}

func (s *FileStore) writeAll(all []Record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp history file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
