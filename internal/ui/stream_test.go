package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polychat/internal/ai"
)

func TestRenderStream_BasicTokens(t *testing.T) {
	ch := make(chan ai.StreamDelta, 4)
	ch <- ai.StreamDelta{Token: "hello"}
	ch <- ai.StreamDelta{Token: " world"}
	ch <- ai.StreamDelta{Done: true}
	close(ch)

	var buf bytes.Buffer
	result, err := RenderStream(&buf, ch, "  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
	assert.True(t, strings.HasPrefix(buf.String(), "  hello"), "prefix goes before the first token")
}

func TestRenderStream_ErrorReturnsPartialText(t *testing.T) {
	streamErr := errors.New("connection reset")
	ch := make(chan ai.StreamDelta, 3)
	ch <- ai.StreamDelta{Token: "partial"}
	ch <- ai.StreamDelta{Err: streamErr}
	close(ch)

	var buf bytes.Buffer
	result, err := RenderStream(&buf, ch, "")
	require.ErrorIs(t, err, streamErr)
	assert.Equal(t, "partial", result, "already-rendered text is not lost")
	assert.Contains(t, buf.String(), "partial")
}

func TestRenderStream_SkipsEmptyTokens(t *testing.T) {
	ch := make(chan ai.StreamDelta, 5)
	ch <- ai.StreamDelta{Token: ""}
	ch <- ai.StreamDelta{Token: "hello"}
	ch <- ai.StreamDelta{Token: ""}
	ch <- ai.StreamDelta{Done: true}
	close(ch)

	var buf bytes.Buffer
	result, err := RenderStream(&buf, ch, ">> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
	assert.True(t, strings.HasPrefix(buf.String(), ">> hello"), "prefix waits for the first real token")
}

func TestRenderStream_EmptyStream(t *testing.T) {
	ch := make(chan ai.StreamDelta, 1)
	ch <- ai.StreamDelta{Done: true}
	close(ch)

	var buf bytes.Buffer
	result, err := RenderStream(&buf, ch, ">> ")
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NotContains(t, buf.String(), ">>", "no prefix without output")
}

func TestRenderStream_AddsTrailingNewline(t *testing.T) {
	ch := make(chan ai.StreamDelta, 2)
	ch <- ai.StreamDelta{Token: "no newline at end"}
	ch <- ai.StreamDelta{Done: true}
	close(ch)

	var buf bytes.Buffer
	_, err := RenderStream(&buf, ch, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
