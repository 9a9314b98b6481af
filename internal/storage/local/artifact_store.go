// Package local implements a filesystem artifact store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// Config captures the parameters for the filesystem artifact store.
type Config struct {
	// BaseDir is the root directory where artifacts are stored.
	BaseDir string
	// Prefix is the subdirectory placed under BaseDir. Defaults to
	// "screenshots" to mirror the object-store layout.
	Prefix string
}

// ArtifactStore writes raster artifacts to the local filesystem and returns
// file:// URLs. Intended for development and single-host deployments.
type ArtifactStore struct {
	baseDir string
	prefix  string
	hasher  snapshot.Hasher
	clock   snapshot.Clock
	logger  *zap.Logger
}

// New creates a filesystem-backed artifact store rooted at cfg.BaseDir,
// creating the directory when it does not exist.
func New(cfg Config, hasher snapshot.Hasher, clock snapshot.Clock, logger *zap.Logger) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("hasher and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "screenshots"
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &ArtifactStore{
		baseDir: filepath.Clean(cfg.BaseDir),
		prefix:  cfg.Prefix,
		hasher:  hasher,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Upload writes the PNG under <base>/<prefix>/<digest>_<WxH|full>_<ms>.png
// and returns its file:// URL.
func (s *ArtifactStore) Upload(_ context.Context, image []byte, pageURL string, req snapshot.NormalizedRequest) (string, error) {
	digest, err := s.hasher.Hash([]byte(pageURL))
	if err != nil {
		return "", fmt.Errorf("hash page url: %w", err)
	}
	suffix := fmt.Sprintf("%dx%d", req.Width, req.Height)
	if req.FullPage {
		suffix = "full"
	}
	name := fmt.Sprintf("%s_%s_%d.png", digest, suffix, s.clock.Now().UnixMilli())
	fullPath := filepath.Join(s.baseDir, s.prefix, name)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(fullPath, image, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "file://" + fullPath, nil
}

// Delete removes one artifact. A missing file is treated as already deleted.
func (s *ArtifactStore) Delete(_ context.Context, artifactURL string) error {
	path, err := s.pathFromURL(artifactURL)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// DeleteBatch removes artifacts best-effort and returns the success count.
func (s *ArtifactStore) DeleteBatch(ctx context.Context, artifactURLs []string) int {
	deleted := 0
	for _, u := range artifactURLs {
		if err := s.Delete(ctx, u); err != nil {
			s.logger.Warn("artifact delete failed",
				zap.String("artifact_url", u),
				zap.Error(err),
			)
			continue
		}
		deleted++
	}
	return deleted
}

// HealthCheck verifies the base directory is still writable.
func (s *ArtifactStore) HealthCheck(context.Context) error {
	probe := filepath.Join(s.baseDir, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("base directory not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("clean health probe: %w", err)
	}
	return nil
}

// pathFromURL resolves a file:// URL back to a path, rejecting anything
// outside the base directory.
func (s *ArtifactStore) pathFromURL(artifactURL string) (string, error) {
	path := strings.TrimPrefix(artifactURL, "file://")
	if path == artifactURL {
		return "", fmt.Errorf("not a file url: %q", artifactURL)
	}
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes base directory", artifactURL)
	}
	return clean, nil
}
