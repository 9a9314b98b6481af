// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// RecordStore keeps render records in memory, ordered by creation time.
type RecordStore struct {
	mu      sync.RWMutex
	records []snapshot.RenderRecord
	window  time.Duration
	clock   snapshot.Clock
}

// NewRecordStore constructs a RecordStore with the given freshness window.
func NewRecordStore(window time.Duration, clock snapshot.Clock) *RecordStore {
	return &RecordStore{window: window, clock: clock}
}

// FindFresh returns the newest record matching the key within the
// freshness window, or nil when there is none.
func (s *RecordStore) FindFresh(_ context.Context, key snapshot.CacheKey) (*snapshot.RenderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.clock.Now().Add(-s.window)
	var newest *snapshot.RenderRecord
	for i := range s.records {
		rec := s.records[i]
		if rec.URL != key.URL || rec.Width != key.Width || rec.Height != key.Height || rec.FullPage != key.FullPage {
			continue
		}
		if !rec.CreatedAt.After(cutoff) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			copied := rec
			newest = &copied
		}
	}
	return newest, nil
}

// Save appends a record, rejecting id collisions.
func (s *RecordStore) Save(_ context.Context, record snapshot.RenderRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			return errors.New("record id already exists")
		}
	}
	s.records = append(s.records, record)
	return nil
}

// DeleteStale removes every record older than the freshness window and
// returns the artifact URLs the removed rows referenced.
func (s *RecordStore) DeleteStale(_ context.Context) (snapshot.StaleBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.window)
	var batch snapshot.StaleBatch
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.CreatedAt.After(cutoff) {
			kept = append(kept, rec)
			continue
		}
		batch.Deleted++
		if rec.ArtifactURL != "" {
			batch.ArtifactURLs = append(batch.ArtifactURLs, rec.ArtifactURL)
		}
	}
	s.records = kept
	return batch, nil
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
