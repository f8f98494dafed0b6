// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pdiddy/cafe-collector/internal/httputil"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// anthropicURL is the Claude Messages API endpoint. Package-level var for test substitution.
var anthropicURL = "https://api.anthropic.com/v1/messages"

// AnthropicBackend calls the Claude Messages API.
type AnthropicBackend struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	UserAgent   string
	Client      *http.Client

	// URL overrides the endpoint when set.
	URL string
}

// anthropicRequest is the request body for the Claude Messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

// anthropicMessage is a single message in the conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the response body from the Claude Messages API.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Backend. Prompt.JSON is expressed in the system
// prompt since the Messages API has no JSON response mode.
func (b *AnthropicBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	maxTokens := b.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	req := anthropicRequest{
		Model:     b.Model,
		MaxTokens: maxTokens,
		System:    p.System,
		Messages:  []anthropicMessage{{Role: "user", Content: p.User}},
	}
	if b.Temperature > 0 {
		t := b.Temperature
		req.Temperature = &t
	}
	if p.JSON {
		req.System = strings.TrimSpace(req.System + "\n\nRespond with a single JSON object and no other text.")
	}

	headers := map[string]string{
		"x-api-key":         b.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if b.UserAgent != "" {
		headers["User-Agent"] = b.UserAgent
	}
	url := b.URL
	if url == "" {
		url = anthropicURL
	}
	data, err := httputil.DoJSON(ctx, b.Client, b.Name(), http.MethodPost, url, headers, req)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", types.Malformed("decoding anthropic response: %v", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", types.Malformed("no text content in anthropic response (stop_reason %q)", resp.StopReason)
}
