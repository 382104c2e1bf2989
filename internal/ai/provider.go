package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"polychat/internal/config"
	"polychat/internal/logging"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-agnostic chat message.
type Message struct {
	Role    string
	Content string
}

// Request describes one chat call. The conversation is read-only to the
// provider; accumulated response text is handed back through the stream.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Provider opens streaming chat calls against one remote service. Stream
// returns a lazy, single-pass, finite delta sequence: the channel closes
// after a terminal element (Done or Err), and a retry requires a new call.
type Provider interface {
	Stream(ctx context.Context, req Request) <-chan StreamDelta
}

// New builds the provider implementation for a config entry, selected once
// from its kind tag. passphraseEnv names the variable holding the
// passphrase for encrypted keys.
func New(name string, cfg *config.Provider, passphraseEnv string) (Provider, error) {
	key, err := cfg.ResolveKey(passphraseEnv)
	if err != nil {
		// Google providers can authenticate with a service account
		// instead of a key.
		if cfg.Kind != config.KindGoogle || cfg.ServiceAccountFile == "" {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
	}
	switch cfg.Kind {
	case config.KindGoogle:
		if key != "" {
			return newGemini(key, cfg.BaseURL), nil
		}
		tokenSrc, err := serviceAccountTokenSource(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		return newGeminiServiceAccount(tokenSrc, cfg.BaseURL), nil
	case config.KindAnthropic:
		return newAnthropic(key, cfg.BaseURL), nil
	case config.KindOpenAI:
		return newOpenAI(key, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("provider %q has unsupported kind %q", name, cfg.Kind)
	}
}

// Complete runs one call to completion and returns the full response text.
func Complete(ctx context.Context, p Provider, req Request) (string, error) {
	return Collect(p.Stream(ctx, req))
}

const (
	requestTimeout = 5 * time.Minute
	maxAttempts    = 3
)

func newStreamClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// openStream issues the request, retrying rate-limited and failed attempts
// with backoff. Retries stop once a response body starts streaming; a
// broken stream is surfaced, not retried.
func openStream(ctx context.Context, client *http.Client, provider string, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if waitErr := backoff(ctx, 250*time.Millisecond*time.Duration(attempt+1)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts-1 {
			resp.Body.Close()
			logging.L().Debugw("rate limited, backing off", "provider", provider, "attempt", attempt+1)
			if waitErr := backoff(ctx, 500*time.Millisecond*time.Duration(attempt+1)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &ProviderError{
				Provider: provider,
				Status:   resp.StatusCode,
				Message:  strings.TrimSpace(string(body)),
			}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("could not reach %s after %d attempts: %w", provider, maxAttempts, lastErr)
}

func backoff(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
