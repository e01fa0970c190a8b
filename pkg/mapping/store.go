// Package mapping keeps the durable link between a source message and the
// destination message it produced. Every mutation persists the full state to
// a JSON file before returning, so a crash immediately after a successful
// call loses nothing.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyland-inc/relayx/pkg/logger"
)

// Record links one source message to its delivered counterpart.
type Record struct {
	DestinationID string    `json:"destination_message_id"`
	PairName      string    `json:"pair_name"`
	CreatedAt     time.Time `json:"created_at"`
	EditCount     int       `json:"edit_count"`
}

// Store is a single-writer mapping store backed by a JSON file keyed by
// source message id. Reads and writes share one mutex; the critical section
// covers the file write so persisted state always reflects a serial history.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	now     func() time.Time
}

// NewStore opens the store at path, loading any existing state. A missing
// file starts empty; an unreadable or corrupt file is logged and also starts
// empty rather than refusing to run.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		records: make(map[string]Record),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("mapping", "Could not read mapping file, starting empty", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
		return s
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		logger.WarnCF("mapping", "Corrupt mapping file, starting empty", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		s.records = make(map[string]Record)
		return s
	}

	logger.InfoCF("mapping", "Loaded mapping store", map[string]any{
		"path":  path,
		"count": len(s.records),
	})
	return s
}

// Insert records a delivered message. An existing record for the same source
// id is replaced. The caller must only insert after delivery succeeded.
func (s *Store) Insert(sourceID, destinationID, pairName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[sourceID] = Record{
		DestinationID: destinationID,
		PairName:      pairName,
		CreatedAt:     s.now(),
		EditCount:     0,
	}
	return s.persistLocked()
}

// Get returns the record for a source message id.
func (s *Store) Get(sourceID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sourceID]
	return rec, ok
}

// IncrementEdit bumps the edit count for a known source id and returns the
// new count. An unknown id is a no-op returning 0; no record is created.
func (s *Store) IncrementEdit(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sourceID]
	if !ok {
		return 0
	}
	rec.EditCount++
	s.records[sourceID] = rec
	if err := s.persistLocked(); err != nil {
		logger.ErrorCF("mapping", "Persist failed after edit increment", map[string]any{
			"source_id": sourceID,
			"error":     err.Error(),
		})
	}
	return rec.EditCount
}

// Delete removes the record for a source id, returning whether it existed.
func (s *Store) Delete(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sourceID]; !ok {
		return false
	}
	delete(s.records, sourceID)
	if err := s.persistLocked(); err != nil {
		logger.ErrorCF("mapping", "Persist failed after delete", map[string]any{
			"source_id": sourceID,
			"error":     err.Error(),
		})
	}
	return true
}

// EvictOlderThan removes every record created strictly before now-maxAge and
// returns how many were removed. A record exactly at the boundary is
// retained.
func (s *Store) EvictOlderThan(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	var evicted int
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			evicted++
		}
	}
	if evicted == 0 {
		return 0, nil
	}
	return evicted, s.persistLocked()
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating mapping dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}
