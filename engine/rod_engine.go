package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/pageshot-ai/pageshot/config"
)

// RodEngine renders pages with a shared headless Chromium controlled via
// go-rod. Pages are borrowed from a pool so concurrent captures never share
// a tab. Safe for concurrent use.
type RodEngine struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	cfg      config.BrowserConfig
}

// NewRodEngine launches a headless browser and initialises the page pool.
func NewRodEngine(cfg config.BrowserConfig) (*RodEngine, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("hide-scrollbars"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod: failed to launch browser: %w", err)
	}
	slog.Info("rod browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("rod: failed to connect to browser: %w", err)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	slog.Info("rod page pool created", "maxPages", cfg.MaxPages)

	return &RodEngine{
		browser:  browser,
		pagePool: pool,
		cfg:      cfg,
	}, nil
}

func (e *RodEngine) Name() string { return "rod" }

// Capture navigates to the URL on a pooled page and screenshots it.
//
// Order matters inside: stealth injection and header overrides only take
// effect for navigations that happen after they are installed, and the
// cleanup defer uses the original page reference (without the request
// context) so the pool gets its page back even after a timeout.
func (e *RodEngine) Capture(ctx context.Context, req *CaptureRequest) (*Shot, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	page, acquireErr := e.pagePool.Get(func() (*rod.Page, error) {
		return e.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, fmt.Errorf("rod: failed to acquire page from pool: %w", acquireErr)
	}

	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("rod cleanup: failed to navigate to about:blank", "error", navErr)
		}
		e.pagePool.Put(page)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("rod: stealth injection failed, proceeding without", "error", evalErr)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: e.cfg.ScaleFactor,
		Mobile:            false,
	}); err != nil {
		slog.Warn("rod: failed to set viewport", "error", err)
	}

	if e.cfg.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: e.cfg.UserAgent}.Call(page)
	}
	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
	}

	p := page.Context(ctx)

	if err := p.Navigate(req.URL); err != nil {
		return nil, wrapNavError(err, req.URL)
	}

	switch req.ReadyState {
	case ReadyLoad:
		if err := p.WaitLoad(); err != nil {
			return nil, wrapNavError(err, req.URL)
		}
	case ReadyNetworkIdle:
		waitIdle := p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		waitIdle()
	default: // ReadyDOMStable
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("rod: WaitDOMStable did not converge, proceeding", "error", err)
		}
	}

	if err := sleepCtx(ctx, req.PostLoadDelay); err != nil {
		return nil, wrapNavError(err, req.URL)
	}

	if req.ScrollPercent > 0 {
		scrollAndSettle(ctx, p, req.ScrollPercent)
	}

	png, shotErr := p.Screenshot(req.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if shotErr != nil {
		return nil, wrapNavError(shotErr, req.URL)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
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

// Close drains the page pool and kills the browser process. Call this on
// graceful shutdown to prevent zombie Chrome processes.
func (e *RodEngine) Close() {
	slog.Info("rod engine shutting down: draining page pool")
	e.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	e.browser.MustClose()
	slog.Info("rod engine shutdown complete")
}

// scrollAndSettle scrolls down to the requested fraction of the page and
// back to the top, with short settle pauses, the way a reader would.
func scrollAndSettle(ctx context.Context, p *rod.Page, percent float64) {
	js := fmt.Sprintf(`() => {
		window.scrollTo({
			top: document.body.scrollHeight * %f,
			behavior: 'smooth'
		});
	}`, percent)
	_, _ = p.Eval(js)
	_ = sleepCtx(ctx, time.Second)
	_, _ = p.Eval(`() => window.scrollTo(0, 0)`)
	_ = sleepCtx(ctx, 500*time.Millisecond)
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wrapNavError(err error, url string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("rod: timed out capturing %s: %w", url, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("rod: capture of %s cancelled: %w", url, err)
	default:
		return fmt.Errorf("rod: capture of %s failed: %w", url, err)
	}
}
