package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI streams from the chat-completions API. The wire convention is the
// same delimited event stream Anthropic uses, with a different payload
// schema and a [DONE] terminal sentinel.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newStreamClient(),
	}
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildOpenAIPayload(req Request) openaiRequest {
	payload := openaiRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, openaiMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}
	return payload
}

// Stream opens one streaming call. The returned channel closes after the
// terminal delta.
func (o *OpenAI) Stream(ctx context.Context, req Request) <-chan StreamDelta {
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)

		body, err := json.Marshal(buildOpenAIPayload(req))
		if err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("failed to marshal request: %w", err)}
			return
		}
		url := o.baseURL + "/v1/chat/completions"

		resp, err := openStream(ctx, o.httpClient, "openai", func() (*http.Request, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")
			httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
			return httpReq, nil
		})
		if err != nil {
			ch <- StreamDelta{Err: err}
			return
		}
		defer resp.Body.Close()

		dec := &eventDecoder{provider: "openai", classify: openaiClassify}
		pump(resp.Body, dec, ch)
	}()
	return ch
}
