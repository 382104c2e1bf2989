// Package ai talks to remote text-generation services over HTTP and
// normalizes their streaming wire formats into one provider-neutral
// sequence of text deltas.
package ai

import (
	"fmt"
	"io"
	"strings"
)

// StreamDelta is a single normalized chunk of a streaming response.
// Exactly one terminal element ends every stream: either Done is set
// (provider signalled completion) or Err is non-nil.
type StreamDelta struct {
	// Token is the text fragment. Empty on the terminal element.
	Token string
	// Done is true when the provider signalled the end of the response.
	Done bool
	// Err is non-nil if the stream failed. Deltas emitted before the
	// failure remain valid.
	Err error
}

// Collect drains a stream and returns the concatenated text. Non-streaming
// callers consume the same delta sequence and simply join it; on error the
// text accumulated so far is returned alongside.
func Collect(ch <-chan StreamDelta) (string, error) {
	var full strings.Builder
	for delta := range ch {
		if delta.Err != nil {
			return full.String(), delta.Err
		}
		full.WriteString(delta.Token)
	}
	return full.String(), nil
}

// streamDecoder turns arbitrarily-chunked raw bytes into deltas. feed is
// synchronous and may return zero or more deltas per chunk; finish is
// called at end of input and reports whether the stream terminated cleanly.
// Decoder state is owned by a single call and discarded with it.
type streamDecoder interface {
	feed(chunk []byte) ([]StreamDelta, error)
	finish() error
}

// readBufferSize is the transport read granularity. Chunk boundaries carry
// no meaning; decoders produce identical output for any splitting.
const readBufferSize = 4096

// pump reads the response body and forwards decoder output on ch until the
// stream completes, fails, or the body ends.
func pump(body io.Reader, dec streamDecoder, ch chan<- StreamDelta) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			deltas, decErr := dec.feed(buf[:n])
			for _, delta := range deltas {
				ch <- delta
				if delta.Done {
					return
				}
			}
			if decErr != nil {
				ch <- StreamDelta{Err: decErr}
				return
			}
		}
		if err == io.EOF {
			if finErr := dec.finish(); finErr != nil {
				ch <- StreamDelta{Err: finErr}
			}
			return
		}
		if err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("failed to read stream: %w", err)}
			return
		}
	}
}
