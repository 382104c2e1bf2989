package ai

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"polychat/internal/logging"
)

// snapshotDecoder handles the cumulative wire convention: the provider
// periodically sends a complete JSON object holding the full generated
// text so far, and the decoder converts successive snapshots into
// incremental deltas. Objects may be split across chunks or concatenated
// within one chunk; array punctuation, "data:" prefixes and the [DONE]
// sentinel are all inter-frame noise.
type snapshotDecoder struct {
	provider string
	buf      []byte
	snapshot string
	done     bool
}

func (d *snapshotDecoder) feed(chunk []byte) ([]StreamDelta, error) {
	d.buf = append(d.buf, chunk...)
	var out []StreamDelta
	for !d.done {
		frame, ok := d.nextFrame()
		if !ok {
			break
		}
		deltas, err := d.decodeFrame(frame)
		out = append(out, deltas...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *snapshotDecoder) finish() error {
	if !d.done {
		return ErrTruncated
	}
	return nil
}

// nextFrame cuts one syntactically complete JSON object off the front of
// the buffer. Anything before the next '{' cannot start a frame and is
// discarded.
func (d *snapshotDecoder) nextFrame() ([]byte, bool) {
	start := bytes.IndexByte(d.buf, '{')
	if start < 0 {
		d.buf = d.buf[:0]
		return nil, false
	}
	if start > 0 {
		d.buf = append(d.buf[:0], d.buf[start:]...)
	}
	end, ok := scanObject(d.buf)
	if !ok {
		return nil, false
	}
	frame := append([]byte(nil), d.buf[:end]...)
	d.buf = append(d.buf[:0], d.buf[end:]...)
	return frame, true
}

// scanObject returns the index one past the closing brace of the JSON
// object starting at buf[0], or false while it is still incomplete. Naive
// substring search fails on braces embedded in string content, so braces
// are only counted outside string literals, with escape awareness.
func scanObject(buf []byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// decodeFrame parses one frame, diffs its full text against the prior
// snapshot, and emits the increment. A frame with a finish reason is
// terminal. Frames are self-contained, so a malformed one aborts the call.
func (d *snapshotDecoder) decodeFrame(frame []byte) ([]StreamDelta, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("malformed stream frame: %.80s", frame)
	}
	if errMsg := gjson.GetBytes(frame, "error.message"); errMsg.Exists() {
		return nil, &ProviderError{
			Provider: d.provider,
			Message:  errMsg.String(),
		}
	}
	if block := gjson.GetBytes(frame, "promptFeedback.blockReason"); block.Exists() {
		return nil, &ProviderError{
			Provider: d.provider,
			Message:  fmt.Sprintf("prompt blocked: %s", block.String()),
		}
	}

	var full strings.Builder
	for _, part := range gjson.GetBytes(frame, "candidates.0.content.parts").Array() {
		full.WriteString(part.Get("text").String())
	}

	var out []StreamDelta
	// Frames without text (metadata-only) are skipped, not emitted as
	// empty deltas.
	if text := full.String(); text != "" {
		if delta := d.diff(text); delta != "" {
			out = append(out, StreamDelta{Token: delta})
		}
	}
	if reason := gjson.GetBytes(frame, "candidates.0.finishReason").String(); reason != "" {
		d.done = true
		out = append(out, StreamDelta{Done: true})
	}
	return out, nil
}

// diff turns a full-text snapshot into the increment beyond the previous
// snapshot. When the new text is not a strict extension (the provider
// occasionally resends a shorter, corrected answer) the whole new text is
// replayed as the delta rather than failing the call.
func (d *snapshotDecoder) diff(full string) string {
	prior := d.snapshot
	d.snapshot = full
	switch {
	case full == prior:
		return ""
	case strings.HasPrefix(full, prior):
		return full[len(prior):]
	default:
		logging.L().Debugw("snapshot diverged from prior text, replaying whole frame",
			"provider", d.provider, "prior_len", len(prior), "new_len", len(full))
		return full
	}
}
