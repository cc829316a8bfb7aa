package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pageshot-ai/pageshot/config"
)

// GeminiClient talks to the Gemini generateContent REST API, sending the
// screenshot as inline data alongside the instruction.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGeminiClient creates a Gemini vision client.
// Pass nil to use a default http.Client.
func NewGeminiClient(cfg config.VLMConfig, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &GeminiClient{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inline_data,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Infer sends the screenshot plus instruction to generateContent and
// concatenates the candidate's text parts.
func (c *GeminiClient) Infer(ctx context.Context, png []byte, instruction string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Parts: []geminiPart{
					{InlineData: &geminiBlobPart{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(png),
					}},
					{Text: instruction},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("vlm: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.baseURL, "/"), c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("vlm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vlm: inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("vlm: read response: %w", err)
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return "", fmt.Errorf("vlm: parse response (status %d): %w", resp.StatusCode, err)
	}
	if gemResp.Error != nil {
		return "", fmt.Errorf("vlm: provider error %d: %s", gemResp.Error.Code, gemResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vlm: provider returned status %d", resp.StatusCode)
	}
	if len(gemResp.Candidates) == 0 {
		return "", fmt.Errorf("vlm: provider returned no candidates")
	}

	var sb strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
