package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pageshot-ai/pageshot/config"
)

// ChromedpEngine renders pages with chromedp. Each capture checks an exec
// allocator out of a pool and runs in its own browser context, so no two
// captures ever share state. It serves as the fallback when rod fails.
type ChromedpEngine struct {
	allocators *sync.Pool
	cfg        config.BrowserConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewChromedpEngine creates the engine and pre-warms the allocator pool.
func NewChromedpEngine(cfg config.BrowserConfig) *ChromedpEngine {
	e := &ChromedpEngine{cfg: cfg}

	e.allocators = &sync.Pool{
		New: func() any {
			opts := append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", cfg.Headless),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("disable-dev-shm-usage", true),
				chromedp.Flag("hide-scrollbars", true),
			)
			if cfg.NoSandbox {
				opts = append(opts, chromedp.Flag("no-sandbox", true))
			}
			if cfg.BrowserBin != "" {
				opts = append(opts, chromedp.ExecPath(cfg.BrowserBin))
			}
			if cfg.UserAgent != "" {
				opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
			}
			allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
			e.mu.Lock()
			e.cancels = append(e.cancels, cancel)
			e.mu.Unlock()
			return allocCtx
		},
	}

	return e
}

func (e *ChromedpEngine) Name() string { return "chromedp" }

// Capture renders the URL in a fresh browser context and screenshots it.
func (e *ChromedpEngine) Capture(ctx context.Context, req *CaptureRequest) (*Shot, error) {
	allocCtx := e.allocators.Get().(context.Context)
	defer e.allocators.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, req.Timeout)
	defer timeoutCancel()

	// Propagate cancellation from the caller's context: chromedp contexts
	// descend from the allocator, not from ctx.
	stop := context.AfterFunc(ctx, timeoutCancel)
	defer stop()

	actions := []chromedp.Action{
		chromedp.EmulateViewport(
			int64(e.cfg.ViewportWidth),
			int64(e.cfg.ViewportHeight),
			chromedp.EmulateScale(e.cfg.ScaleFactor),
		),
	}

	if len(req.Headers) > 0 {
		hdrs := make(network.Headers, len(req.Headers))
		for k, v := range req.Headers {
			hdrs[k] = v
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(hdrs))
	}

	actions = append(actions, chromedp.Navigate(req.URL))

	// chromedp has no request-idle or DOM-stable waiter; body readiness
	// plus the post-load delay below is the closest equivalent for every
	// readiness mode.
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))

	if req.PostLoadDelay > 0 {
		actions = append(actions, chromedp.Sleep(req.PostLoadDelay))
	}

	if req.ScrollPercent > 0 {
		scrollJS := fmt.Sprintf(
			`window.scrollTo({top: document.body.scrollHeight * %f, behavior: 'smooth'});`,
			req.ScrollPercent,
		)
		actions = append(actions,
			chromedp.Evaluate(scrollJS, nil),
			chromedp.Sleep(time.Second),
			chromedp.Evaluate(`window.scrollTo(0, 0);`, nil),
			chromedp.Sleep(500*time.Millisecond),
		)
	}

	var png []byte
	var title, finalURL string
	if req.FullPage {
		actions = append(actions, chromedp.FullScreenshot(&png, 100))
	} else {
		actions = append(actions, chromedp.CaptureScreenshot(&png))
	}
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, wrapChromedpError(err, req.URL)
	}

	if finalURL == "" {
		finalURL = req.URL
	}

	return &Shot{
		PNG:        png,
		EngineName: e.Name(),
		FinalURL:   finalURL,
		Title:      title,
		CapturedAt: time.Now(),
		FullPage:   req.FullPage,
	}, nil
}

// Close shuts down every allocator the pool ever created.
func (e *ChromedpEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
}

func wrapChromedpError(err error, url string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("chromedp: timed out capturing %s: %w", url, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("chromedp: capture of %s cancelled: %w", url, err)
	default:
		return fmt.Errorf("chromedp: capture of %s failed: %w", url, err)
	}
}
