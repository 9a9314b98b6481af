// Package chromedp drives headless Chrome to capture page screenshots.
package chromedp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config controls the behavior of the render pool.
type Config struct {
	// Timeout bounds one navigation plus capture.
	Timeout time.Duration
	// SettleDelay is the fixed extra wait after DOM-ready that lets
	// late-rendering content paint. A heuristic, not a guarantee.
	SettleDelay time.Duration
	// MaxParallel caps concurrent captures against the shared engine.
	// Zero means unlimited.
	MaxParallel int
	UserAgent   string
	Limits      snapshot.Limits
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Limits == (snapshot.Limits{}) {
		c.Limits = snapshot.DefaultLimits
	}
	return c
}

// Pool owns one shared headless Chrome engine and hands out isolated
// capture contexts. The engine is expensive to start, so it is launched
// lazily on first use and reused until Close.
type Pool struct {
	cfg    Config
	logger *zap.Logger
	sem    chan struct{}

	allocator   context.Context
	allocCancel context.CancelFunc

	// mu guards lazy engine startup so concurrent first captures cannot
	// spawn duplicate browser processes. A failed start leaves the pool
	// unstarted; the next capture retries.
	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// New creates a render pool. The browser process itself is not started
// until the first capture.
func New(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg = cfg.withDefaults()

	var sem chan struct{}
	if cfg.MaxParallel > 0 {
		sem = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Pool{
		cfg:         cfg,
		logger:      logger,
		sem:         sem,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close terminates the shared engine and the allocator. In-flight captures
// are aborted.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.browserCancel != nil {
		p.browserCancel()
	}
	p.allocCancel()
}

// Capture renders the requested page in an isolated tab and returns the
// raster bytes plus extracted page metadata. The tab is torn down on every
// exit path; the shared engine survives individual failures.
func (p *Pool) Capture(ctx context.Context, req snapshot.NormalizedRequest) (snapshot.Capture, error) {
	// The engine imposes hard device limits, so re-clamp regardless of
	// what upstream validation did.
	req = snapshot.Normalize(snapshot.RenderRequest{
		URL:      req.URL,
		Width:    req.Width,
		Height:   req.Height,
		FullPage: req.FullPage,
	}, p.cfg.Limits)

	release, err := p.acquireSlot(ctx)
	if err != nil {
		return snapshot.Capture{}, err
	}
	defer release()

	browserCtx, err := p.engine()
	if err != nil {
		return snapshot.Capture{}, snapshot.RenderError(err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, p.cfg.Timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	capture, err := p.runCapture(taskCtx, req)
	if err != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		p.logger.Warn("capture failed",
			zap.String("url", req.URL),
			zap.Int("width", req.Width),
			zap.Int("height", req.Height),
			zap.Error(err),
		)
		return snapshot.Capture{}, snapshot.RenderError(err)
	}
	return capture, nil
}

// engine returns the shared browser context, starting the browser process
// under the startup barrier if this is the first use.
func (p *Pool) engine() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("render pool is closed")
	}
	if p.browserCtx != nil {
		return p.browserCtx, nil
	}

	browserCtx, browserCancel := chromedp.NewContext(p.allocator)
	// Running an empty task list forces the browser process to spawn now,
	// so a broken Chrome install fails here instead of mid-capture.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		return nil, fmt.Errorf("start browser engine: %w", err)
	}
	p.logger.Info("browser engine started")
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	return p.browserCtx, nil
}

func (p *Pool) runCapture(ctx context.Context, req snapshot.NormalizedRequest) (snapshot.Capture, error) {
	var (
		title string
		meta  pageMeta
		image []byte
	)

	shot := chromedp.CaptureScreenshot(&image)
	if req.FullPage {
		shot = chromedp.FullScreenshot(&image, 100)
	}

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(p.cfg.UserAgent),
		chromedp.EmulateViewport(int64(req.Width), int64(req.Height)),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(p.cfg.SettleDelay),
		chromedp.Title(&title),
		chromedp.Evaluate(pageMetaJS, &meta),
		shot,
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return snapshot.Capture{}, fmt.Errorf("chromedp run: %w", err)
	}

	return snapshot.Capture{
		Image:       image,
		Title:       title,
		Description: meta.Description,
		Keywords:    meta.Keywords,
	}, nil
}

func (p *Pool) acquireSlot(ctx context.Context) (func(), error) {
	if p.sem == nil {
		return func() {}, nil
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, snapshot.RenderError(fmt.Errorf("acquire capture slot: %w", ctx.Err()))
	}
}

// forwardCancel aborts the capture when the caller's context ends, without
// tying the tab context's lifetime to the request context directly.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type pageMeta struct {
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// pageMetaJS pulls the standard description (falling back to the social
// preview tag) and keywords out of the rendered document.
const pageMetaJS = `(() => {
	const content = (sel) => {
		const el = document.querySelector(sel);
		return el ? (el.getAttribute('content') || '') : '';
	};
	return {
		description: content('meta[name="description"]') || content('meta[property="og:description"]'),
		keywords: content('meta[name="keywords"]'),
	};
})()`
