package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	VLM       VLMConfig
	Batch     BatchConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser engines.
type BrowserConfig struct {
	// Headless controls whether browsers run headless.
	Headless bool // default: true

	// MaxPages is the rod page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// ViewportWidth/ViewportHeight set the emulated viewport.
	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080

	// ScaleFactor is the device scale factor for screenshots.
	ScaleFactor float64 // default: 2.0

	// UserAgent overrides the browser user agent.
	UserAgent string
}

// CaptureConfig controls the capture stage (engine order, attempts, waits).
type CaptureConfig struct {
	// Engines is the ordered engine fallback list.
	// default: ["rod", "chromedp"]
	Engines []string

	// AttemptsPerEngine bounds retries on each engine before falling back.
	AttemptsPerEngine int // default: 2

	// RetryBackoff is the fixed delay between attempts on the same engine.
	RetryBackoff time.Duration // default: 1s

	// Timeout is the per-attempt navigation+capture deadline.
	Timeout time.Duration // default: 45s

	// ReadyState is when navigation counts as complete:
	// "load", "domstable", or "networkidle". default: "domstable"
	ReadyState string

	// PostLoadDelay is the fixed wait after readiness, letting late
	// content settle before the screenshot.
	PostLoadDelay time.Duration // default: 3s

	// ScrollPercent is how far down the page to scroll before shooting
	// back to the top (triggers lazy-loaded content). 0 disables.
	ScrollPercent float64 // default: 0.6

	// FullPage captures the whole page instead of the viewport.
	FullPage bool // default: true

	// EngineMemoryTTL is how long a per-domain engine preference is kept.
	EngineMemoryTTL time.Duration // default: 24h

	// PipelineRetry re-runs the whole item once (capture included) after
	// a failed extraction.
	PipelineRetry bool // default: false
}

// VLMConfig controls the vision inference client.
type VLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible API) or "gemini".
	Provider string // default: "gemini"

	// APIKey authenticates against the provider.
	APIKey string

	// Model is the vision model name.
	Model string // default: "gemini-2.0-flash" / "gpt-4o-mini"

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Timeout bounds a single inference call.
	Timeout time.Duration // default: 60s

	// DefaultKind is the fallback record kind when none is registered
	// for the requested one.
	DefaultKind string // default: "product"
}

// BatchConfig controls the batch orchestrator defaults.
type BatchConfig struct {
	// Concurrency is the default worker count.
	Concurrency int // default: 3

	// MaxURLs bounds the batch size accepted by the API.
	MaxURLs int // default: 100
}

// StorageConfig controls screenshot and record persistence.
type StorageConfig struct {
	// OutputDir is where screenshots and record JSON files land.
	OutputDir string // default: "./screenshots"

	// KeepDays is the retention window for persisted files.
	KeepDays int // default: 7

	// CleanupShots deletes the screenshot once its record is extracted.
	CleanupShots bool // default: false
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	MaxEntries int // default: 1000
}

// WebhookConfig controls signed event delivery.
type WebhookConfig struct {
	// Secret signs outgoing event payloads with HMAC-SHA256 when set.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PAGESHOT_HOST", "0.0.0.0"),
			Port: envIntOr("PAGESHOT_PORT", 8080),
			Mode: envOr("PAGESHOT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("PAGESHOT_HEADLESS", true),
			MaxPages:       envIntOr("PAGESHOT_MAX_PAGES", 10),
			NoSandbox:      envBoolOr("PAGESHOT_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PAGESHOT_BROWSER_BIN"),
			ViewportWidth:  envIntOr("PAGESHOT_VIEWPORT_WIDTH", 1920),
			ViewportHeight: envIntOr("PAGESHOT_VIEWPORT_HEIGHT", 1080),
			ScaleFactor:    envFloatOr("PAGESHOT_SCALE_FACTOR", 2.0),
			UserAgent:      os.Getenv("PAGESHOT_USER_AGENT"),
		},
		Capture: CaptureConfig{
			Engines:           envSliceOr("PAGESHOT_ENGINES", []string{"rod", "chromedp"}),
			AttemptsPerEngine: envIntOr("PAGESHOT_ATTEMPTS_PER_ENGINE", 2),
			RetryBackoff:      envDurationOr("PAGESHOT_RETRY_BACKOFF", time.Second),
			Timeout:           envDurationOr("PAGESHOT_CAPTURE_TIMEOUT", 45*time.Second),
			ReadyState:        envOr("PAGESHOT_READY_STATE", "domstable"),
			PostLoadDelay:     envDurationOr("PAGESHOT_POST_LOAD_DELAY", 3*time.Second),
			ScrollPercent:     envFloatOr("PAGESHOT_SCROLL_PERCENT", 0.6),
			FullPage:          envBoolOr("PAGESHOT_FULL_PAGE", true),
			EngineMemoryTTL:   envDurationOr("PAGESHOT_ENGINE_MEMORY_TTL", 24*time.Hour),
			PipelineRetry:     envBoolOr("PAGESHOT_PIPELINE_RETRY", false),
		},
		VLM: VLMConfig{
			Provider:    envOr("PAGESHOT_VLM_PROVIDER", "gemini"),
			APIKey:      os.Getenv("PAGESHOT_VLM_API_KEY"),
			Model:       os.Getenv("PAGESHOT_VLM_MODEL"),
			BaseURL:     os.Getenv("PAGESHOT_VLM_BASE_URL"),
			Timeout:     envDurationOr("PAGESHOT_VLM_TIMEOUT", 60*time.Second),
			DefaultKind: envOr("PAGESHOT_DEFAULT_KIND", "product"),
		},
		Batch: BatchConfig{
			Concurrency: envIntOr("PAGESHOT_CONCURRENCY", 3),
			MaxURLs:     envIntOr("PAGESHOT_MAX_URLS", 100),
		},
		Storage: StorageConfig{
			OutputDir:    envOr("PAGESHOT_OUTPUT_DIR", "./screenshots"),
			KeepDays:     envIntOr("PAGESHOT_KEEP_DAYS", 7),
			CleanupShots: envBoolOr("PAGESHOT_CLEANUP_SHOTS", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGESHOT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PAGESHOT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGESHOT_RATE_RPS", 5.0),
			Burst:             envIntOr("PAGESHOT_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PAGESHOT_CACHE_MAX_ENTRIES", 1000),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("PAGESHOT_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("PAGESHOT_LOG_LEVEL", "info"),
			Format: envOr("PAGESHOT_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
