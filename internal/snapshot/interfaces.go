package snapshot

import (
	"context"
	"time"
)

// Renderer drives the shared headless engine to produce one capture.
type Renderer interface {
	Capture(ctx context.Context, req NormalizedRequest) (Capture, error)
}

// RecordStore persists render records.
type RecordStore interface {
	// FindFresh returns the newest record matching the key whose createdAt
	// is within the freshness window, or nil when there is none.
	FindFresh(ctx context.Context, key CacheKey) (*RenderRecord, error)
	// Save inserts a record. The id is supplied by the caller; an id
	// collision is an internal error, not a normal path.
	Save(ctx context.Context, record RenderRecord) error
	// DeleteStale removes all records older than the freshness window and
	// returns their artifact URLs. Row deletion is committed regardless of
	// what the caller does with the URLs.
	DeleteStale(ctx context.Context) (StaleBatch, error)
}

// ArtifactStore writes captured images to durable storage.
type ArtifactStore interface {
	// Upload persists the image and returns its retrieval URL.
	Upload(ctx context.Context, image []byte, pageURL string, req NormalizedRequest) (string, error)
	// Delete removes one artifact. The returned error is informational
	// only: callers log it and move on, never propagate it.
	Delete(ctx context.Context, artifactURL string) error
	// DeleteBatch removes artifacts best-effort and returns how many
	// deletions succeeded.
	DeleteBatch(ctx context.Context, artifactURLs []string) int
	// HealthCheck verifies connectivity to the storage backend.
	HealthCheck(ctx context.Context) error
}

// Publisher pushes capture-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used for artifact object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
