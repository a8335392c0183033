// Package store keeps one canonical tax return record per year in a JSON
// file on local disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dgallion1/taxgest/internal/taxreturn"
)

// ErrCorrupt is returned when the store file exists but cannot be decoded.
// A corrupt file is never silently skipped or overwritten.
var ErrCorrupt = errors.New("record store is corrupt")

// Entry is the stored form of one year's record.
type Entry struct {
	Record      taxreturn.Record `json:"record"`
	ContentHash string           `json:"content_hash"`
	Filename    string           `json:"filename"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Summary is the listing view of an entry.
type Summary struct {
	Year        int       `json:"year"`
	Name        string    `json:"name"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	NetPosition float64   `json:"net_position"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is a year-keyed record file. Every write rewrites the whole file
// through a temp file and rename.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[int]Entry
	log     *slog.Logger
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		path:    path,
		entries: make(map[int]Entry),
		log:     log,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	for key, e := range raw {
		year, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad year key %q", ErrCorrupt, path, key)
		}
		s.entries[year] = e
	}
	log.Info("record store loaded", "path", path, "years", len(s.entries))
	return s, nil
}

// Get returns the entry for year.
func (s *Store) Get(year int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[year]
	if ok {
		e.Record = e.Record.Clone()
	}
	return e, ok
}

// HasContent reports whether year is stored with the given content hash.
func (s *Store) HasContent(year int, contentHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[year]
	return ok && contentHash != "" && e.ContentHash == contentHash
}

// Put stores or replaces the entry for year and persists the file.
func (s *Store) Put(year int, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	e.Record = e.Record.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.entries[year]
	s.entries[year] = e
	if err := s.saveLocked(); err != nil {
		if had {
			s.entries[year] = prev
		} else {
			delete(s.entries, year)
		}
		return err
	}
	return nil
}

// Delete removes year. It reports whether an entry existed.
func (s *Store) Delete(year int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[year]
	if !ok {
		return false, nil
	}
	delete(s.entries, year)
	if err := s.saveLocked(); err != nil {
		s.entries[year] = prev
		return false, err
	}
	return true, nil
}

// List returns one summary per stored year, newest year first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.entries))
	for year, e := range s.entries {
		out = append(out, Summary{
			Year:        year,
			Name:        e.Record.Name,
			Filename:    e.Filename,
			ContentHash: e.ContentHash,
			NetPosition: e.Record.Summary.NetPosition,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out
}

func (s *Store) saveLocked() error {
	raw := make(map[string]Entry, len(s.entries))
	for year, e := range s.entries {
		raw[strconv.Itoa(year)] = e
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".records-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename store: %w", err)
	}
	s.log.Debug("record store saved", "path", s.path, "years", len(s.entries))
	return nil
}
