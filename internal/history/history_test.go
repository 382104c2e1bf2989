package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polychat/internal/ai"
)

var sampleMessages = []ai.Message{
	{Role: ai.RoleUser, Content: "Ping"},
	{Role: ai.RoleAssistant, Content: "Pong"},
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("toml")
	assert.Error(t, err)
}

func TestSave_JSONIncludesSystemAndSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	require.NoError(t, Save(path, FormatJSON, "Stay helpful", sampleMessages))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var payload transcript
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.NotEmpty(t, payload.SessionID)
	require.Len(t, payload.Messages, 3)
	assert.Equal(t, "system", payload.Messages[0].Role)
	assert.Equal(t, "user", payload.Messages[1].Role)
	assert.Equal(t, "assistant", payload.Messages[2].Role)
}

func TestSave_MarkdownCapturesRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "chat.md")
	require.NoError(t, Save(path, FormatMarkdown, "", sampleMessages))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "## user")
	assert.Contains(t, md, "## assistant")
	assert.Contains(t, md, "Pong")
	assert.NotContains(t, md, "## system", "no system prompt was given")
}

func TestTimestampedPath_Deterministic(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	path := timestampedPath("/tmp/history", "Prod#Provider", FormatMarkdown, now)
	assert.Equal(t, "20240501-123045-prod-provider.md", filepath.Base(path))
}

func TestSanitizeProvider(t *testing.T) {
	assert.Equal(t, "work-google", sanitizeProvider("Work Google"))
	assert.Equal(t, "session", sanitizeProvider("###"))
}

func TestPushWebhook(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	err := PushWebhook(context.Background(), server.URL, FormatJSON, "", sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)

	var payload transcript
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Len(t, payload.Messages, 2)
}

func TestPushWebhook_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := PushWebhook(context.Background(), server.URL, FormatJSON, "", sampleMessages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
