// Package capture drives per-URL screenshot capture across an ordered list
// of rendering engines, with a bounded number of attempts per engine.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/engine"
	"github.com/pageshot-ai/pageshot/models"
)

// Overrides carry per-request deviations from the configured defaults.
// Zero values mean "use the config".
type Overrides struct {
	FullPage *bool
	Timeout  time.Duration
}

// Stage captures one URL at a time: engines are tried in order, each up to
// AttemptsPerEngine times with a fixed backoff between attempts. The first
// successful attempt short-circuits everything that remains. The stage
// fails only after every engine has exhausted its budget, and the failure
// records the last error seen per engine.
type Stage struct {
	engines []engine.Engine
	memory  *engine.Memory
	cfg     config.CaptureConfig
}

// NewStage creates a capture stage. memory may be nil to disable the
// per-domain engine preference.
func NewStage(engines []engine.Engine, memory *engine.Memory, cfg config.CaptureConfig) *Stage {
	if cfg.AttemptsPerEngine < 1 {
		cfg.AttemptsPerEngine = 1
	}
	return &Stage{engines: engines, memory: memory, cfg: cfg}
}

// Run captures the URL. It returns the artifact, the total number of
// attempts made across all engines, and an error of type
// *models.PipelineError when every engine failed.
func (s *Stage) Run(ctx context.Context, url string, ov Overrides) (*models.CaptureArtifact, int, error) {
	req := s.buildRequest(url, ov)
	domain := engine.Domain(url)
	ordered := s.orderEngines(domain)

	attempts := 0
	engineErrs := make([]string, 0, len(ordered))

	for _, eng := range ordered {
		shot, n, err := s.tryEngine(ctx, eng, req)
		attempts += n

		if err == nil {
			if s.memory != nil {
				s.memory.Set(domain, eng.Name())
			}
			slog.Debug("capture succeeded",
				"url", url, "engine", eng.Name(), "attempts", attempts)
			return shotToArtifact(shot), attempts, nil
		}

		engineErrs = append(engineErrs, fmt.Sprintf("%s: %v", eng.Name(), err))
		slog.Debug("engine exhausted, falling back",
			"url", url, "engine", eng.Name(), "error", err)

		if s.memory != nil && s.memory.Get(domain) == eng.Name() {
			s.memory.Delete(domain)
		}

		if ctx.Err() != nil {
			return nil, attempts, models.NewPipelineError(
				models.FailCancelled, models.StageCapture,
				fmt.Sprintf("capture of %s cancelled", url), ctx.Err())
		}
	}

	return nil, attempts, models.NewPipelineError(
		models.FailCapture, models.StageCapture,
		fmt.Sprintf("all engines exhausted for %s: %s", url, strings.Join(engineErrs, "; ")),
		nil)
}

// tryEngine runs up to AttemptsPerEngine attempts on a single engine with a
// constant backoff between them. It returns the shot, the number of
// attempts actually made, and the last error.
func (s *Stage) tryEngine(ctx context.Context, eng engine.Engine, req *engine.CaptureRequest) (*engine.Shot, int, error) {
	var shot *engine.Shot
	attempts := 0

	op := func() error {
		attempts++
		result, err := eng.Capture(ctx, req)
		if err != nil {
			return err
		}
		shot = result
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.cfg.RetryBackoff),
			uint64(s.cfg.AttemptsPerEngine-1),
		),
		ctx,
	)

	if err := backoff.Retry(op, b); err != nil {
		return nil, attempts, err
	}
	return shot, attempts, nil
}

// orderEngines returns the engine list, with the domain's remembered
// engine moved to the front when the memory has one.
func (s *Stage) orderEngines(domain string) []engine.Engine {
	if s.memory == nil {
		return s.engines
	}
	remembered := s.memory.Get(domain)
	if remembered == "" {
		return s.engines
	}
	for i, eng := range s.engines {
		if eng.Name() == remembered && i > 0 {
			ordered := make([]engine.Engine, 0, len(s.engines))
			ordered = append(ordered, eng)
			ordered = append(ordered, s.engines[:i]...)
			ordered = append(ordered, s.engines[i+1:]...)
			return ordered
		}
	}
	return s.engines
}

func (s *Stage) buildRequest(url string, ov Overrides) *engine.CaptureRequest {
	fullPage := s.cfg.FullPage
	if ov.FullPage != nil {
		fullPage = *ov.FullPage
	}
	timeout := s.cfg.Timeout
	if ov.Timeout > 0 {
		timeout = ov.Timeout
	}
	return &engine.CaptureRequest{
		URL:           url,
		ReadyState:    engine.ReadyState(s.cfg.ReadyState),
		Timeout:       timeout,
		PostLoadDelay: s.cfg.PostLoadDelay,
		ScrollPercent: s.cfg.ScrollPercent,
		FullPage:      fullPage,
	}
}

func shotToArtifact(shot *engine.Shot) *models.CaptureArtifact {
	return &models.CaptureArtifact{
		PNG:        shot.PNG,
		Engine:     shot.EngineName,
		CapturedAt: shot.CapturedAt,
		FullPage:   shot.FullPage,
		FinalURL:   shot.FinalURL,
		Title:      shot.Title,
	}
}
