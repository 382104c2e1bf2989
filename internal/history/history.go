// Package history persists chat transcripts. Transcripts are exported as
// JSON or Markdown to an explicit path or to timestamped files under a
// history directory, and can additionally be pushed to a webhook.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"polychat/internal/ai"
	"polychat/internal/config"
)

const (
	historySubdir  = "history"
	webhookTimeout = 10 * time.Second
)

// Format selects the transcript export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, Format("md"):
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown save format %q (want json or markdown)", name)
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return "json"
}

func (f Format) contentType() string {
	if f == FormatMarkdown {
		return "text/markdown"
	}
	return "application/json"
}

// transcript is the JSON export payload.
type transcript struct {
	SessionID string              `json:"session_id"`
	SavedAt   time.Time           `json:"saved_at"`
	Messages  []transcriptMessage `json:"messages"`
}

type transcriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Save writes the transcript to path, creating parent directories as
// needed. The system prompt, when present, is recorded as the first turn.
func Save(path string, format Format, system string, messages []ai.Message) error {
	payload, err := render(format, system, messages)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write transcript to %s: %w", path, err)
	}
	return nil
}

// DefaultDir returns the directory used for --auto-save when no
// --history-dir is given.
func DefaultDir() string {
	return filepath.Join(config.Dir(), historySubdir)
}

// TimestampedPath builds a per-session filename under baseDir.
func TimestampedPath(baseDir, provider string, format Format) string {
	return timestampedPath(baseDir, provider, format, time.Now().UTC())
}

func timestampedPath(baseDir, provider string, format Format, now time.Time) string {
	name := fmt.Sprintf("%s-%s.%s", now.Format("20060102-150405"), sanitizeProvider(provider), format.Extension())
	return filepath.Join(baseDir, name)
}

// sanitizeProvider reduces a provider label to a filename-safe chunk.
func sanitizeProvider(provider string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(provider) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		return "session"
	}
	return cleaned
}

func render(format Format, system string, messages []ai.Message) ([]byte, error) {
	if format == FormatMarkdown {
		return renderMarkdown(system, messages), nil
	}
	return renderJSON(system, messages)
}

func renderJSON(system string, messages []ai.Message) ([]byte, error) {
	t := transcript{
		SessionID: uuid.NewString(),
		SavedAt:   time.Now().UTC(),
	}
	if system != "" {
		t.Messages = append(t.Messages, transcriptMessage{Role: ai.RoleSystem, Content: system})
	}
	for _, m := range messages {
		t.Messages = append(t.Messages, transcriptMessage{Role: m.Role, Content: m.Content})
	}
	return json.MarshalIndent(t, "", "  ")
}

func renderMarkdown(system string, messages []ai.Message) []byte {
	var b bytes.Buffer
	b.WriteString("# Chat Transcript\n\n")
	if system != "" {
		appendMarkdownEntry(&b, ai.RoleSystem, system)
	}
	for _, m := range messages {
		appendMarkdownEntry(&b, m.Role, m.Content)
	}
	return b.Bytes()
}

func appendMarkdownEntry(b *bytes.Buffer, role, content string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", role, content)
}

// PushWebhook POSTs the rendered transcript to url.
func PushWebhook(ctx context.Context, url string, format Format, system string, messages []ai.Message) error {
	payload, err := render(format, system, messages)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", format.contentType())

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST transcript: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
