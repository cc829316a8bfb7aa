// Package vlm talks to vision-capable inference services. The pipeline is
// polymorphic over any provider that can answer a prompt about an image;
// it never inspects the provider's model identity.
package vlm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pageshot-ai/pageshot/config"
)

// Client is the single capability the extraction stage needs: one image
// plus one instruction in, text out.
type Client interface {
	// Infer sends the PNG screenshot and instruction to the provider and
	// returns the raw text response. Respects ctx cancellation/deadline.
	Infer(ctx context.Context, png []byte, instruction string) (string, error)
}

// New builds a Client for the configured provider.
func New(cfg config.VLMConfig, httpClient *http.Client) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg, httpClient), nil
	case "gemini", "":
		return NewGeminiClient(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("vlm: unknown provider %q", cfg.Provider)
	}
}
