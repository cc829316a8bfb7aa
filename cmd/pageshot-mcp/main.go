package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// extractRequest mirrors the Pageshot API request model.
type extractRequest struct {
	URL         string `json:"url"`
	RecordKind  string `json:"record_kind,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// extractResponse mirrors the Pageshot API response model.
type extractResponse struct {
	Success bool                       `json:"success"`
	Record  map[string]json.RawMessage `json:"record"`
	Error   *struct {
		Kind    string `json:"kind"`
		Stage   string `json:"stage"`
		Message string `json:"message"`
	} `json:"error"`
	TotalMs int64 `json:"total_ms"`
}

// batchResponse mirrors the Pageshot batch API response.
type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// batchStatusResponse mirrors the Pageshot batch status API response.
type batchStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Result    *struct {
		Items []struct {
			URL     string          `json:"url"`
			Success bool            `json:"success"`
			Record  json.RawMessage `json:"record"`
			Failure *struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"failure"`
		} `json:"items"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"result"`
}

func main() {
	apiURL := os.Getenv("PAGESHOT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGESHOT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PAGESHOT_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"pageshot",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractPageTool := mcp.NewTool("extract_page",
		mcp.WithDescription("Capture a screenshot of a web page and extract structured data from it with a vision model. Works on JavaScript-heavy pages because the page is fully rendered before the shot."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to extract from"),
		),
		mcp.WithString("record_kind",
			mcp.Description("The kind of record to extract: 'product' (default), 'article', or 'real_estate'"),
			mcp.Enum("product", "article", "real_estate"),
		),
		mcp.WithString("instruction",
			mcp.Description("Custom extraction instruction replacing the built-in template. The instruction should ask for a single JSON object."),
		),
	)
	s.AddTool(extractPageTool, handleExtractPage(apiURL, apiKey))

	batchExtractTool := mcp.NewTool("batch_extract",
		mcp.WithDescription("Capture and extract structured data from many web pages in one batch. Failed pages are reported individually and never abort the rest."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to extract from"),
		),
		mcp.WithString("record_kind",
			mcp.Description("The kind of record to extract from every page: 'product' (default), 'article', or 'real_estate'"),
			mcp.Enum("product", "article", "real_estate"),
		),
	)
	s.AddTool(batchExtractTool, handleBatchExtract(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the Pageshot API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

func handleExtractPage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := extractRequest{
			URL:         url,
			RecordKind:  request.GetString("record_kind", ""),
			Instruction: request.GetString("instruction", ""),
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/extract", reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract request failed: %v", err)), nil
		}

		var extractResp extractResponse
		if err := json.Unmarshal(respBody, &extractResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !extractResp.Success {
			errMsg := "extraction failed"
			if extractResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", extractResp.Error.Kind, extractResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		pretty, err := json.MarshalIndent(extractResp.Record, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format record: %v", err)), nil
		}
		return mcp.NewToolResultText(string(pretty)), nil
	}
}

func handleBatchExtract(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		payload := map[string]any{
			"urls":        urls,
			"record_kind": request.GetString("record_kind", ""),
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/batch", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batchResp batchResponse
		if err := json.Unmarshal(respBody, &batchResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if batchResp.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/batch/"+batchResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var statusResp batchStatusResponse
		if err := json.Unmarshal(resultBody, &statusResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch status: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Batch %s: %s (%d/%d completed)\n\n",
			statusResp.ID, statusResp.Status, statusResp.Completed, statusResp.Total))

		if statusResp.Result != nil {
			for i, item := range statusResp.Result.Items {
				if item.Success {
					sb.WriteString(fmt.Sprintf("--- [%d] %s ---\n%s\n\n", i+1, item.URL, item.Record))
				} else {
					errMsg := "unknown error"
					if item.Failure != nil {
						errMsg = fmt.Sprintf("[%s] %s", item.Failure.Kind, item.Failure.Message)
					}
					sb.WriteString(fmt.Sprintf("--- [%d] %s FAILED: %s ---\n\n", i+1, item.URL, errMsg))
				}
			}
			sb.WriteString(fmt.Sprintf("Succeeded: %d, failed: %d",
				statusResp.Result.Succeeded, statusResp.Result.Failed))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}
