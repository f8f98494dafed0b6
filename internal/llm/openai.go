// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pdiddy/cafe-collector/internal/httputil"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// openAIURL is the chat completions endpoint. Package-level var for test substitution.
var openAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIBackend calls the OpenAI chat completions API.
type OpenAIBackend struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	UserAgent   string
	Client      *http.Client

	// URL overrides the endpoint when set.
	URL string
}

type openAIRequest struct {
	Model               string            `json:"model"`
	Messages            []openAIMessage   `json:"messages"`
	Temperature         *float64          `json:"temperature,omitempty"`
	MaxCompletionTokens int               `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *openAIRespFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	req := openAIRequest{
		Model:               b.Model,
		MaxCompletionTokens: b.MaxTokens,
	}
	if b.Temperature > 0 {
		t := b.Temperature
		req.Temperature = &t
	}
	if p.System != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, openAIMessage{Role: "user", Content: p.User})
	if p.JSON {
		req.ResponseFormat = &openAIRespFormat{Type: "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + b.APIKey}
	if b.UserAgent != "" {
		headers["User-Agent"] = b.UserAgent
	}
	url := b.URL
	if url == "" {
		url = openAIURL
	}
	data, err := httputil.DoJSON(ctx, b.Client, b.Name(), http.MethodPost, url, headers, req)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", types.Malformed("decoding openai response: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.Malformed("openai response has no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", types.Malformed("openai refused the request: %s", msg.Refusal)
	}
	if msg.Content == "" {
		return "", types.Malformed("openai response is empty (finish_reason %q)", resp.Choices[0].FinishReason)
	}
	return msg.Content, nil
}
