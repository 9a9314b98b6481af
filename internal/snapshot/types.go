package snapshot

import "time"

// RenderRequest captures the parameters of an inbound screenshot request
// before normalization.
type RenderRequest struct {
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FullPage bool   `json:"full_page"`
}

// Limits bounds the viewport dimensions a request may ask for. The routing
// layer validates against these, but the engine imposes hard device limits,
// so the core re-clamps before every capture.
type Limits struct {
	MinWidth  int
	MaxWidth  int
	MinHeight int
	MaxHeight int
}

// DefaultLimits matches the engine's supported device metrics.
var DefaultLimits = Limits{
	MinWidth:  320,
	MaxWidth:  1920,
	MinHeight: 240,
	MaxHeight: 1080,
}

// Viewport defaults applied when a request leaves a dimension unset.
const (
	DefaultWidth  = 1200
	DefaultHeight = 800
)

// NormalizedRequest is a RenderRequest whose dimensions have been clamped
// into the allowed ranges. Only normalized requests reach the renderer.
type NormalizedRequest struct {
	URL      string
	Width    int
	Height   int
	FullPage bool
}

// Key derives the cache identity of the request.
func (r NormalizedRequest) Key() CacheKey {
	return CacheKey{URL: r.URL, Width: r.Width, Height: r.Height, FullPage: r.FullPage}
}

// CacheKey identifies cache equivalence: two requests with the same key,
// both created within the freshness window, share one rendered artifact.
type CacheKey struct {
	URL      string
	Width    int
	Height   int
	FullPage bool
}

// Capture is the raw output of one render: the raster bytes plus the page
// metadata extracted in-page.
type Capture struct {
	Image       []byte
	Title       string
	Description string
	Keywords    string
}

// RenderRecord is persisted for each completed render. Records are
// immutable once created; there is no update path, only create and delete.
type RenderRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    string    `json:"keywords"`
	ArtifactURL string    `json:"artifact_url"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FullPage    bool      `json:"full_page"`
	CreatedAt   time.Time `json:"created_at"`
}

// RenderResult is the unified response shape returned for both cache hits
// and fresh renders.
type RenderResult struct {
	RenderRecord
	Cached bool `json:"cached"`
}

// StaleBatch is returned by a stale-record deletion: the number of rows
// removed plus the artifact URLs they referenced, so the caller can clean
// up storage afterwards.
type StaleBatch struct {
	Deleted      int64
	ArtifactURLs []string
}

// CaptureEvent is published after each successful fresh render.
type CaptureEvent struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ArtifactURL string    `json:"artifact_url"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FullPage    bool      `json:"full_page"`
	CreatedAt   time.Time `json:"created_at"`
}
