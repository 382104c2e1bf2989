package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	// The messages API requires max_tokens; used when the request does
	// not set one.
	anthropicDefaultMaxTokens = 4096
)

// Anthropic streams from the Anthropic messages API, which sends
// incremental events over the delimited event-stream convention.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropic(apiKey, baseURL string) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newStreamClient(),
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildAnthropicPayload(req Request) anthropicRequest {
	payload := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Stream:      true,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = anthropicDefaultMaxTokens
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return payload
}

// Stream opens one streaming call. The returned channel closes after the
// terminal delta.
func (a *Anthropic) Stream(ctx context.Context, req Request) <-chan StreamDelta {
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)

		body, err := json.Marshal(buildAnthropicPayload(req))
		if err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("failed to marshal request: %w", err)}
			return
		}
		url := a.baseURL + "/v1/messages"

		resp, err := openStream(ctx, a.httpClient, "anthropic", func() (*http.Request, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")
			httpReq.Header.Set("x-api-key", a.apiKey)
			httpReq.Header.Set("anthropic-version", anthropicVersion)
			return httpReq, nil
		})
		if err != nil {
			ch <- StreamDelta{Err: err}
			return
		}
		defer resp.Body.Close()

		dec := &eventDecoder{provider: "anthropic", classify: anthropicClassify}
		pump(resp.Body, dec, ch)
	}()
	return ch
}
