package engine

import (
	"fmt"

	"github.com/pageshot-ai/pageshot/config"
)

// Build constructs the named engines in fallback order.
func Build(names []string, cfg config.BrowserConfig) ([]Engine, error) {
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		switch name {
		case "rod":
			e, err := NewRodEngine(cfg)
			if err != nil {
				closeAll(engines)
				return nil, fmt.Errorf("engine: init rod: %w", err)
			}
			engines = append(engines, e)
		case "chromedp":
			engines = append(engines, NewChromedpEngine(cfg))
		default:
			closeAll(engines)
			return nil, fmt.Errorf("engine: unknown engine %q", name)
		}
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("engine: no engines configured")
	}
	return engines, nil
}

func closeAll(engines []Engine) {
	for _, e := range engines {
		e.Close()
	}
}
