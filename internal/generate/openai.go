package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIProvider calls an OpenAI-compatible Responses endpoint.
type OpenAIProvider struct {
	client *resty.Client
	model  string
}

func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &OpenAIProvider{client: client, model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string           `json:"model"`
	Input []responsesInput `json:"input"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var out responsesResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(responsesRequest{
			Model: p.model,
			Input: []responsesInput{{Role: "user", Content: prompt}},
		}).
		SetResult(&out).
		Post("/v1/responses")
	if err != nil {
		return "", fmt.Errorf("openai: request: %w", err)
	}
	if resp.IsError() {
		return "", &openAIHTTPError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	return extractOutputText(out), nil
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				out.WriteString(c.Text)
			}
		}
	}
	return out.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
