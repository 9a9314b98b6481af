// Package gcs provides an ArtifactStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

const (
	contentType = "image/png"
	// Artifacts are immutable once written, so downstream caches may hold
	// them for a year.
	cacheControl = "public, max-age=31536000"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// ArtifactStore writes captured images to a configured GCS bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
	hasher snapshot.Hasher
	clock  snapshot.Clock
	logger *zap.Logger
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config, hasher snapshot.Hasher, clock snapshot.Clock, logger *zap.Logger) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "screenshots"
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(prefix, "/"),
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}, nil
}

// Upload persists the image under a content-derived object name and
// returns its public retrieval URL.
func (s *ArtifactStore) Upload(ctx context.Context, image []byte, pageURL string, req snapshot.NormalizedRequest) (string, error) {
	digest, err := s.hasher.Hash([]byte(pageURL))
	if err != nil {
		return "", fmt.Errorf("hash page url: %w", err)
	}
	object := objectName(s.prefix, digest, req, s.clock.Now().UnixMilli())

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = cacheControl
	if _, err := io.Copy(writer, bytes.NewReader(image)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write artifact: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, object), nil
}

// Delete removes one artifact. Callers log the returned error and move on;
// deletion is best-effort by contract.
func (s *ArtifactStore) Delete(ctx context.Context, artifactURL string) error {
	object, err := objectFromURL(artifactURL, s.bucket)
	if err != nil {
		return fmt.Errorf("resolve artifact object: %w", err)
	}
	if err := s.client.Bucket(s.bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("delete artifact %s: %w", object, err)
	}
	return nil
}

// DeleteBatch removes artifacts best-effort and returns how many
// deletions succeeded. Failures are logged, never returned.
func (s *ArtifactStore) DeleteBatch(ctx context.Context, artifactURLs []string) int {
	deleted := 0
	for _, u := range artifactURLs {
		if err := s.Delete(ctx, u); err != nil {
			s.logger.Warn("artifact delete failed", zap.String("artifact_url", u), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}

// HealthCheck verifies the bucket is reachable and accessible.
func (s *ArtifactStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s attrs: %w", s.bucket, err)
	}
	return nil
}

// objectName combines the page URL digest with a dimension/mode suffix and
// a timestamp so repeated captures of the same URL never collide.
func objectName(prefix, digest string, req snapshot.NormalizedRequest, unixMilli int64) string {
	suffix := fmt.Sprintf("%dx%d", req.Width, req.Height)
	if req.FullPage {
		suffix = "full"
	}
	return fmt.Sprintf("%s/%s_%s_%d.png", prefix, digest, suffix, unixMilli)
}

// objectFromURL extracts the object path from a retrieval URL, accepting
// both public https://storage.googleapis.com/<bucket>/<object> URLs and
// bucket-relative paths.
func objectFromURL(artifactURL, bucket string) (string, error) {
	parsed, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", artifactURL, err)
	}
	object := strings.TrimPrefix(parsed.Path, "/")
	if prefix := bucket + "/"; strings.HasPrefix(object, prefix) {
		object = strings.TrimPrefix(object, prefix)
	}
	if object == "" {
		return "", fmt.Errorf("no object path in %q", artifactURL)
	}
	return object, nil
}
