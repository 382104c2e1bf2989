package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1"
	generativeLanguageScope = "https://www.googleapis.com/auth/generative-language"
)

// Gemini streams from the Google generative-language API, which sends
// cumulative frames: each one repeats the entire generated text so far.
// Auth is either an API key passed as a query parameter or, when no key is
// configured, a service-account bearer token.
type Gemini struct {
	apiKey     string
	tokenSrc   oauth2.TokenSource
	baseURL    string
	httpClient *http.Client
}

func newGemini(apiKey, baseURL string) *Gemini {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newStreamClient(),
	}
}

func newGeminiServiceAccount(tokenSrc oauth2.TokenSource, baseURL string) *Gemini {
	g := newGemini("", baseURL)
	g.tokenSrc = tokenSrc
	return g
}

// serviceAccountTokenSource builds a bearer token source from a
// service-account JSON file. The source caches the token and refreshes it
// on expiry.
func serviceAccountTokenSource(path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account JSON at %s: %w", path, err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(data, generativeLanguageScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	return jwtCfg.TokenSource(context.Background()), nil
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generation_config,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

func buildGeminiPayload(req Request) geminiRequest {
	payload := geminiRequest{}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{
			Role:  "system",
			Parts: []geminiPart{{Text: req.System}},
		}
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		payload.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return payload
}

// Stream opens one streaming call. The returned channel closes after the
// terminal delta.
func (g *Gemini) Stream(ctx context.Context, req Request) <-chan StreamDelta {
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)

		body, err := json.Marshal(buildGeminiPayload(req))
		if err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("failed to marshal request: %w", err)}
			return
		}
		url := fmt.Sprintf("%s/models/%s:streamGenerateContent", g.baseURL, req.Model)
		if g.apiKey != "" {
			url += "?key=" + g.apiKey
		}

		resp, err := openStream(ctx, g.httpClient, "google", func() (*http.Request, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			// The API key wins when both credentials are configured.
			if g.apiKey == "" {
				token, err := g.tokenSrc.Token()
				if err != nil {
					return nil, fmt.Errorf("failed to obtain oauth token: %w", err)
				}
				token.SetAuthHeader(httpReq)
			}
			return httpReq, nil
		})
		if err != nil {
			ch <- StreamDelta{Err: err}
			return
		}
		defer resp.Body.Close()

		dec := &snapshotDecoder{provider: "google"}
		pump(resp.Body, dec, ch)
	}()
	return ch
}
