package engine

import (
	"context"
	"time"
)

// ReadyState selects when navigation counts as complete.
type ReadyState string

const (
	// ReadyLoad waits for the load event only.
	ReadyLoad ReadyState = "load"

	// ReadyDOMStable waits until the DOM stops changing.
	ReadyDOMStable ReadyState = "domstable"

	// ReadyNetworkIdle waits until the network goes quiet.
	ReadyNetworkIdle ReadyState = "networkidle"
)

// Engine is the interface all rendering engines implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "rod", "chromedp").
	Name() string

	// Capture navigates to the requested URL and returns a screenshot.
	Capture(ctx context.Context, req *CaptureRequest) (*Shot, error)

	// Close releases the engine's browser resources.
	Close()
}

// CaptureRequest contains everything an engine needs to render one page
// and take a screenshot of it.
type CaptureRequest struct {
	URL           string
	ReadyState    ReadyState
	Timeout       time.Duration
	PostLoadDelay time.Duration

	// ScrollPercent scrolls down this fraction of the page and back up
	// before the shot, triggering lazy-loaded content. 0 disables.
	ScrollPercent float64

	FullPage bool
	Headers  map[string]string
}

// Shot is the output of a successful engine capture.
type Shot struct {
	PNG        []byte
	EngineName string
	FinalURL   string
	Title      string
	CapturedAt time.Time
	FullPage   bool
}
