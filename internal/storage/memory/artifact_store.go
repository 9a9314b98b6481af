package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// ArtifactStore keeps artifact bytes in memory and returns pseudo URLs.
// It also counts adapter calls so tests can assert on write/delete traffic.
type ArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	seq     int

	uploads int
	deletes int

	failDelete bool
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{objects: make(map[string][]byte)}
}

// FailDeletes makes subsequent Delete and DeleteBatch calls fail, for
// exercising best-effort cleanup paths.
func (s *ArtifactStore) FailDeletes(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fail
}

// Upload stores the image and returns a memory:// URL.
func (s *ArtifactStore) Upload(_ context.Context, image []byte, _ string, req snapshot.NormalizedRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.uploads++
	url := fmt.Sprintf("memory://artifacts/%d_%dx%d", s.seq, req.Width, req.Height)
	s.objects[url] = append([]byte(nil), image...)
	return url, nil
}

// Delete removes one artifact.
func (s *ArtifactStore) Delete(_ context.Context, artifactURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failDelete {
		return fmt.Errorf("delete %s: store unavailable", artifactURL)
	}
	delete(s.objects, artifactURL)
	return nil
}

// DeleteBatch removes artifacts best-effort and returns the success count.
func (s *ArtifactStore) DeleteBatch(ctx context.Context, artifactURLs []string) int {
	deleted := 0
	for _, u := range artifactURLs {
		if err := s.Delete(ctx, u); err == nil {
			deleted++
		}
	}
	return deleted
}

// HealthCheck always reports healthy.
func (s *ArtifactStore) HealthCheck(context.Context) error {
	return nil
}

// Uploads reports how many uploads were performed.
func (s *ArtifactStore) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}

// Deletes reports how many delete calls were issued.
func (s *ArtifactStore) Deletes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deletes
}

// Len reports the number of stored artifacts.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
