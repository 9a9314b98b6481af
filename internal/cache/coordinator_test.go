package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	publishermemory "github.com/pagesnap/pagesnap/internal/publisher/memory"
	"github.com/pagesnap/pagesnap/internal/snapshot"
	"github.com/pagesnap/pagesnap/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDGen struct {
	mu  sync.Mutex
	seq int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("id-%d", g.seq), nil
}

type stubRenderer struct {
	mu       sync.Mutex
	captures int
	delay    time.Duration
	err      error
}

func (r *stubRenderer) Capture(ctx context.Context, req snapshot.NormalizedRequest) (snapshot.Capture, error) {
	r.mu.Lock()
	r.captures++
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return snapshot.Capture{}, snapshot.RenderError(ctx.Err())
		}
	}
	if r.err != nil {
		return snapshot.Capture{}, r.err
	}
	return snapshot.Capture{
		Image:       []byte("png"),
		Title:       "Title of " + req.URL,
		Description: "desc",
		Keywords:    "kw",
	}, nil
}

func (r *stubRenderer) Captures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captures
}

type failingRecordStore struct {
	snapshot.RecordStore
	saveErr error
	findErr error
}

func (s *failingRecordStore) Save(ctx context.Context, rec snapshot.RenderRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.RecordStore.Save(ctx, rec)
}

func (s *failingRecordStore) FindFresh(ctx context.Context, key snapshot.CacheKey) (*snapshot.RenderRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.RecordStore.FindFresh(ctx, key)
}

type coordinatorFixture struct {
	coord     *Coordinator
	records   *memory.RecordStore
	artifacts *memory.ArtifactStore
	renderer  *stubRenderer
	clock     *fakeClock
	publisher *publishermemory.Publisher
}

func newFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	records := memory.NewRecordStore(7*24*time.Hour, clk)
	artifacts := memory.NewArtifactStore()
	renderer := &stubRenderer{}
	pub := publishermemory.New()

	coord := New(records, artifacts, renderer, pub, clk, &seqIDGen{},
		Config{Topic: "captures"}, zap.NewNop())
	return &coordinatorFixture{
		coord:     coord,
		records:   records,
		artifacts: artifacts,
		renderer:  renderer,
		clock:     clk,
		publisher: pub,
	}
}

var exampleReq = snapshot.RenderRequest{URL: "https://example.com", Width: 1200, Height: 800}

func TestResolve_MissThenHit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.NotEmpty(t, first.ID)
	require.NotEmpty(t, first.ArtifactURL)
	require.Equal(t, "Title of https://example.com", first.Title)
	require.Equal(t, 1, f.renderer.Captures())

	second, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.ArtifactURL, second.ArtifactURL)
	require.Equal(t, 1, f.renderer.Captures(), "hit must not re-render")
	require.Equal(t, 1, f.artifacts.Uploads(), "hit must not re-upload")
}

func TestResolve_ExpiredRecordIsMiss(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.False(t, first.Cached)

	f.clock.Advance(8 * 24 * time.Hour)

	second, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.False(t, second.Cached)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, f.renderer.Captures())
}

func TestResolve_DistinctKeysRenderSeparately(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)

	fullPage := exampleReq
	fullPage.FullPage = true
	res, err := f.coord.Resolve(ctx, fullPage)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, 2, f.renderer.Captures())
}

func TestResolve_ClampsBeforeLookupAndRender(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	oversized := snapshot.RenderRequest{URL: "https://example.com", Width: 5000, Height: 9000}
	res, err := f.coord.Resolve(ctx, oversized)
	require.NoError(t, err)
	require.Equal(t, 1920, res.Width)
	require.Equal(t, 1080, res.Height)

	// The clamped request shares its cache key with an in-range request
	// for the same dimensions.
	inRange := snapshot.RenderRequest{URL: "https://example.com", Width: 1920, Height: 1080}
	hit, err := f.coord.Resolve(ctx, inRange)
	require.NoError(t, err)
	require.True(t, hit.Cached)
	require.Equal(t, res.ID, hit.ID)
}

func TestResolve_ConcurrentIdenticalRequestsShareOneRender(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.renderer.delay = 100 * time.Millisecond
	ctx := context.Background()

	const callers = 8
	results := make([]snapshot.RenderResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coord.Resolve(ctx, exampleReq)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, f.renderer.Captures(), "concurrent identical requests must share one render")
	require.Equal(t, 1, f.artifacts.Uploads())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].ID, results[i].ID)
		require.Equal(t, results[0].ArtifactURL, results[i].ArtifactURL)
	}
}

func TestResolve_RenderFailureWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.renderer.err = snapshot.RenderError(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	ctx := context.Background()

	_, err := f.coord.Resolve(ctx, snapshot.RenderRequest{URL: "https://unreachable.invalid", Width: 800, Height: 600})
	require.ErrorIs(t, err, snapshot.ErrRenderFailure)
	require.Equal(t, 0, f.artifacts.Uploads(), "failed capture must not upload")
	require.Equal(t, 0, f.records.Len(), "failed capture must not persist")
}

func TestResolve_RegistryClearedAfterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.renderer.err = snapshot.RenderError(errors.New("boom"))
	ctx := context.Background()

	_, err := f.coord.Resolve(ctx, exampleReq)
	require.Error(t, err)

	f.renderer.err = nil
	res, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, 2, f.renderer.Captures())
}

func TestResolve_UploadFailureDiscardsRender(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	records := memory.NewRecordStore(7*24*time.Hour, clk)
	renderer := &stubRenderer{}
	coord := New(records, &failingArtifactStore{}, renderer, nil, clk, &seqIDGen{}, Config{}, zap.NewNop())

	_, err := coord.Resolve(context.Background(), exampleReq)
	require.ErrorIs(t, err, snapshot.ErrArtifactStore)
	require.Equal(t, 0, records.Len(), "no record without an artifact URL")
}

func TestResolve_SaveFailureLeavesOrphanedArtifact(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	base := memory.NewRecordStore(7*24*time.Hour, clk)
	records := &failingRecordStore{RecordStore: base, saveErr: errors.New("insert failed")}
	artifacts := memory.NewArtifactStore()
	coord := New(records, artifacts, &stubRenderer{}, nil, clk, &seqIDGen{}, Config{}, zap.NewNop())

	_, err := coord.Resolve(context.Background(), exampleReq)
	require.ErrorIs(t, err, snapshot.ErrRecordStore)
	require.Equal(t, 1, artifacts.Uploads(), "artifact was uploaded before the save failed")
	require.Equal(t, 0, base.Len())
}

func TestResolve_LookupFailureIsRecordStoreError(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	base := memory.NewRecordStore(7*24*time.Hour, clk)
	records := &failingRecordStore{RecordStore: base, findErr: errors.New("connection refused")}
	renderer := &stubRenderer{}
	coord := New(records, memory.NewArtifactStore(), renderer, nil, clk, &seqIDGen{}, Config{}, zap.NewNop())

	_, err := coord.Resolve(context.Background(), exampleReq)
	require.ErrorIs(t, err, snapshot.ErrRecordStore)
	require.Equal(t, 0, renderer.Captures(), "lookup failure must not trigger a render")
}

func TestResolve_PublishesCaptureEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "captures", msgs[0].Topic)
	event, ok := msgs[0].Payload.(snapshot.CaptureEvent)
	require.True(t, ok)
	require.Equal(t, res.ID, event.ID)
	require.Equal(t, res.ArtifactURL, event.ArtifactURL)

	// A hit publishes nothing.
	_, err = f.coord.Resolve(ctx, exampleReq)
	require.NoError(t, err)
	require.Len(t, f.publisher.Messages(), 1)
}

type failingArtifactStore struct{}

func (f *failingArtifactStore) Upload(context.Context, []byte, string, snapshot.NormalizedRequest) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (f *failingArtifactStore) Delete(context.Context, string) error { return nil }

func (f *failingArtifactStore) DeleteBatch(context.Context, []string) int { return 0 }

func (f *failingArtifactStore) HealthCheck(context.Context) error { return nil }
