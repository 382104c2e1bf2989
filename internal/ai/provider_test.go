package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"polychat/internal/config"
)

func TestNew_DispatchesOnKind(t *testing.T) {
	tests := []struct {
		kind config.Kind
		want any
	}{
		{config.KindGoogle, &Gemini{}},
		{config.KindAnthropic, &Anthropic{}},
		{config.KindOpenAI, &OpenAI{}},
	}
	for _, tt := range tests {
		p, err := New("test", &config.Provider{Kind: tt.kind, APIKey: "k"}, "")
		require.NoError(t, err, tt.kind)
		assert.IsType(t, tt.want, p, tt.kind)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("test", &config.Provider{Kind: "mistral", APIKey: "k"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported kind")
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New("work", &config.Provider{Kind: config.KindAnthropic}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestGemini_Stream(t *testing.T) {
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-pro:streamGenerateContent")
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		io.WriteString(w, `[{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]},`)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Hello!"}]},"finishReason":"STOP"}]}]`)
	}))
	defer server.Close()

	g := newGemini("secret", server.URL)
	text, err := Complete(context.Background(), g, Request{
		Model:  "gemini-pro",
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "again"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)

	// System prompt travels as system_instruction, not as a content turn.
	require.NotNil(t, gotBody.SystemInstruction)
	assert.Equal(t, "be brief", gotBody.SystemInstruction.Parts[0].Text)
	require.Len(t, gotBody.Contents, 3)
	assert.Equal(t, "user", gotBody.Contents[0].Role)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
}

func TestGemini_ServiceAccountBearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sa-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("key"), "bearer auth must not also send a key")
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	tokenSrc := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "sa-token"})
	g := newGeminiServiceAccount(tokenSrc, server.URL)
	text, err := Complete(context.Background(), g, Request{Model: "gemini-pro"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestNew_GoogleServiceAccountWithoutKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")

	// An unreadable credentials file surfaces instead of the missing-key
	// error: the service-account path was taken.
	_, err := New("work", &config.Provider{
		Kind:               config.KindGoogle,
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account")
}

func TestNew_GoogleKeyWinsOverServiceAccount(t *testing.T) {
	// With both credentials configured the key is used, so the
	// service-account file is never even read.
	p, err := New("work", &config.Provider{
		Kind:               config.KindGoogle,
		APIKey:             "k",
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	}, "")
	require.NoError(t, err)
	g, ok := p.(*Gemini)
	require.True(t, ok)
	assert.Equal(t, "k", g.apiKey)
	assert.Nil(t, g.tokenSrc)
}

func TestGemini_StreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	g := newGemini("bad", server.URL)
	_, err := Complete(context.Background(), g, Request{Model: "gemini-pro"})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusForbidden, provErr.Status)
}

func TestGemini_RetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	g := newGemini("k", server.URL)
	text, err := Complete(context.Background(), g, Request{Model: "gemini-pro"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, attempts)
}

func TestAnthropic_Stream(t *testing.T) {
	var gotBody anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		io.WriteString(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\" there\"}}\n\n")
		io.WriteString(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	a := newAnthropic("secret", server.URL)
	text, err := Complete(context.Background(), a, Request{
		Model:    "claude-sonnet",
		System:   "persona",
		Messages: []Message{{Role: RoleUser, Content: "hey"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)

	assert.True(t, gotBody.Stream)
	assert.Equal(t, "persona", gotBody.System)
	assert.Equal(t, anthropicDefaultMaxTokens, gotBody.MaxTokens, "max_tokens is mandatory upstream")
	require.Len(t, gotBody.Messages, 1)
}

func TestOpenAI_Stream(t *testing.T) {
	var gotBody openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"4\"},\"finish_reason\":null}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	o := newOpenAI("secret", server.URL)
	text, err := Complete(context.Background(), o, Request{
		Model:    "gpt-4o",
		System:   "terse",
		Messages: []Message{{Role: RoleUser, Content: "2+2?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "4", text)

	// System prompt becomes the leading system message.
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, RoleSystem, gotBody.Messages[0].Role)
	assert.True(t, gotBody.Stream)
}

func TestOpenAI_TruncatedStreamSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"half\"},\"finish_reason\":null}]}\n\n")
		// Connection closes with no finish_reason and no [DONE].
	}))
	defer server.Close()

	o := newOpenAI("k", server.URL)
	text, err := Complete(context.Background(), o, Request{Model: "gpt-4o"})

	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, "half", text, "partial text is preserved alongside the failure")
}

func TestComplete_JoinsDeltas(t *testing.T) {
	ch := make(chan StreamDelta, 4)
	ch <- StreamDelta{Token: "a"}
	ch <- StreamDelta{Token: "b"}
	ch <- StreamDelta{Done: true}
	close(ch)

	text, err := Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestCollect_ReturnsPartialOnError(t *testing.T) {
	ch := make(chan StreamDelta, 3)
	ch <- StreamDelta{Token: "partial"}
	ch <- StreamDelta{Err: ErrTruncated}
	close(ch)

	text, err := Collect(ch)
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, "partial", text)
}
