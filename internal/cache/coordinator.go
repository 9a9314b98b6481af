// Package cache coordinates render requests against the record store, the
// artifact store and the render pool.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// Config controls coordinator behavior.
type Config struct {
	Limits snapshot.Limits
	// Topic receives capture-completed events when a publisher is set.
	Topic string
}

// Coordinator decides cache-hit vs cache-miss, deduplicates concurrent
// identical requests, and drives the miss path: render, upload, persist.
type Coordinator struct {
	records   snapshot.RecordStore
	artifacts snapshot.ArtifactStore
	renderer  snapshot.Renderer
	publisher snapshot.Publisher
	clock     snapshot.Clock
	idGen     snapshot.IDGenerator
	cfg       Config
	logger    *zap.Logger

	// mu guards the in-flight registry. Concurrent requests for the same
	// cache key join the render already in progress instead of spawning
	// duplicate engine invocations.
	mu       sync.Mutex
	inflight map[snapshot.CacheKey]*inflightRender
}

type inflightRender struct {
	done   chan struct{}
	result snapshot.RenderResult
	err    error
}

// New constructs a Coordinator. The publisher may be nil, in which case no
// capture events are emitted.
func New(
	records snapshot.RecordStore,
	artifacts snapshot.ArtifactStore,
	renderer snapshot.Renderer,
	publisher snapshot.Publisher,
	clock snapshot.Clock,
	idGen snapshot.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.Limits == (snapshot.Limits{}) {
		cfg.Limits = snapshot.DefaultLimits
	}
	return &Coordinator{
		records:   records,
		artifacts: artifacts,
		renderer:  renderer,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
		inflight:  make(map[snapshot.CacheKey]*inflightRender),
	}
}

// Resolve serves one render request: from the cache when a fresh record
// exists, otherwise through a full render. Steps on a miss run strictly in
// order: render, upload, persist, respond.
func (c *Coordinator) Resolve(ctx context.Context, req snapshot.RenderRequest) (snapshot.RenderResult, error) {
	norm := snapshot.Normalize(req, c.cfg.Limits)

	cached, err := c.records.FindFresh(ctx, norm.Key())
	if err != nil {
		metrics.ObserveResolve("error")
		metrics.ObserveRenderFailure("record_store")
		return snapshot.RenderResult{}, snapshot.RecordStoreError(err)
	}
	if cached != nil {
		metrics.ObserveResolve("hit")
		c.logger.Debug("cache hit",
			zap.String("url", norm.URL),
			zap.String("record_id", cached.ID),
		)
		return snapshot.RenderResult{RenderRecord: *cached, Cached: true}, nil
	}

	return c.resolveMiss(ctx, norm)
}

// resolveMiss runs or joins the single in-flight render for the key.
func (c *Coordinator) resolveMiss(ctx context.Context, norm snapshot.NormalizedRequest) (snapshot.RenderResult, error) {
	key := norm.Key()

	c.mu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return snapshot.RenderResult{}, call.err
			}
			metrics.ObserveResolve("join")
			return call.result, nil
		case <-ctx.Done():
			return snapshot.RenderResult{}, snapshot.RenderError(fmt.Errorf("wait for in-flight render: %w", ctx.Err()))
		}
	}
	call := &inflightRender{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	// The registry entry must go away on every exit path, or the key
	// would be stuck joining a render that never completes.
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		close(call.done)
	}()

	call.result, call.err = c.render(ctx, norm)
	return call.result, call.err
}

// render executes the miss path: capture, upload, persist, publish.
func (c *Coordinator) render(ctx context.Context, norm snapshot.NormalizedRequest) (snapshot.RenderResult, error) {
	start := c.clock.Now()

	capture, err := c.renderer.Capture(ctx, norm)
	if err != nil {
		metrics.ObserveResolve("error")
		metrics.ObserveRenderFailure(failureKind(err))
		return snapshot.RenderResult{}, err
	}

	artifactURL, err := c.artifacts.Upload(ctx, capture.Image, norm.URL, norm)
	if err != nil {
		// The render is discarded: a record must never exist without its
		// artifact URL.
		metrics.ObserveResolve("error")
		metrics.ObserveRenderFailure("artifact_store")
		return snapshot.RenderResult{}, snapshot.ArtifactStoreError(err)
	}

	id, err := c.idGen.NewID()
	if err != nil {
		metrics.ObserveResolve("error")
		metrics.ObserveRenderFailure("internal")
		return snapshot.RenderResult{}, fmt.Errorf("generate record id: %w", err)
	}

	record := snapshot.RenderRecord{
		ID:          id,
		URL:         norm.URL,
		Title:       capture.Title,
		Description: capture.Description,
		Keywords:    capture.Keywords,
		ArtifactURL: artifactURL,
		Width:       norm.Width,
		Height:      norm.Height,
		FullPage:    norm.FullPage,
		CreatedAt:   c.clock.Now(),
	}
	if err := c.records.Save(ctx, record); err != nil {
		// The uploaded artifact is orphaned. No compensating delete; a
		// retry re-uploads under a new timestamped key.
		c.logger.Error("record save failed, artifact orphaned",
			zap.String("url", norm.URL),
			zap.String("artifact_url", artifactURL),
			zap.Error(err),
		)
		metrics.ObserveResolve("error")
		metrics.ObserveRenderFailure("record_store")
		return snapshot.RenderResult{}, snapshot.RecordStoreError(err)
	}

	metrics.ObserveResolve("miss")
	metrics.ObserveRenderDuration(c.clock.Now().Sub(start))
	c.logger.Info("render completed",
		zap.String("url", norm.URL),
		zap.String("record_id", record.ID),
		zap.Int("width", record.Width),
		zap.Int("height", record.Height),
		zap.Bool("full_page", record.FullPage),
	)

	c.publishCaptured(ctx, record)

	return snapshot.RenderResult{RenderRecord: record, Cached: false}, nil
}

// publishCaptured emits a capture-completed event best-effort.
func (c *Coordinator) publishCaptured(ctx context.Context, record snapshot.RenderRecord) {
	if c.publisher == nil {
		return
	}
	event := snapshot.CaptureEvent{
		ID:          record.ID,
		URL:         record.URL,
		ArtifactURL: record.ArtifactURL,
		Width:       record.Width,
		Height:      record.Height,
		FullPage:    record.FullPage,
		CreatedAt:   record.CreatedAt,
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, event); err != nil {
		c.logger.Warn("capture event publish failed",
			zap.String("record_id", record.ID),
			zap.Error(err),
		)
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, snapshot.ErrRenderTimeout):
		return "render_timeout"
	case errors.Is(err, snapshot.ErrRenderFailure):
		return "render"
	case errors.Is(err, snapshot.ErrArtifactStore):
		return "artifact_store"
	case errors.Is(err, snapshot.ErrRecordStore):
		return "record_store"
	default:
		return "internal"
	}
}
