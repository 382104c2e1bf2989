package ai

import (
	"bytes"

	"github.com/tidwall/gjson"

	"polychat/internal/logging"
)

// doneSentinel is the literal end-of-stream payload some providers send in
// place of JSON.
var doneSentinel = []byte("[DONE]")

// eventVerdict is a classifier's reading of one event payload.
type eventVerdict struct {
	text  string
	final bool
	skip  bool
}

// classifier interprets one event's JSON payload for a provider family.
// A returned error is fatal to the call (provider-reported failure);
// payloads that carry no text and no completion signal come back as skip.
type classifier func(payload []byte) (eventVerdict, error)

// eventDecoder handles the delimited wire convention shared by the
// Anthropic and OpenAI families: blank-line-terminated events whose data
// line carries a JSON payload with incremental text. No diffing is needed;
// every payload supplies only new text.
type eventDecoder struct {
	provider string
	classify classifier
	buf      []byte
	done     bool
}

func (d *eventDecoder) feed(chunk []byte) ([]StreamDelta, error) {
	d.buf = append(d.buf, chunk...)
	var out []StreamDelta
	for !d.done {
		block, ok := d.nextEvent()
		if !ok {
			break
		}
		deltas, err := d.decodeEvent(block)
		out = append(out, deltas...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *eventDecoder) finish() error {
	if !d.done {
		return ErrTruncated
	}
	return nil
}

// nextEvent cuts one delimiter-terminated event block off the front of the
// buffer. Bytes after the last delimiter stay buffered awaiting more input.
func (d *eventDecoder) nextEvent() ([]byte, bool) {
	cut, width := -1, 0
	if i := bytes.Index(d.buf, []byte("\n\n")); i >= 0 {
		cut, width = i, 2
	}
	if i := bytes.Index(d.buf, []byte("\r\n\r\n")); i >= 0 && (cut < 0 || i < cut) {
		cut, width = i, 4
	}
	if cut < 0 {
		return nil, false
	}
	block := append([]byte(nil), d.buf[:cut]...)
	d.buf = append(d.buf[:0], d.buf[cut+width:]...)
	return block, true
}

// decodeEvent extracts the event's data payload and classifies it. A
// malformed payload is absorbed rather than failing the call, since the
// next event may be fine.
func (d *eventDecoder) decodeEvent(block []byte) ([]StreamDelta, error) {
	payload := dataPayload(block)
	if payload == nil {
		// Comment-only or dataless control event.
		return nil, nil
	}
	if bytes.Equal(bytes.TrimSpace(payload), doneSentinel) {
		d.done = true
		return []StreamDelta{{Done: true}}, nil
	}
	if !gjson.ValidBytes(payload) {
		logging.L().Debugw("skipping malformed stream event",
			"provider", d.provider, "payload", truncateForLog(payload))
		return nil, nil
	}

	verdict, err := d.classify(payload)
	if err != nil {
		return nil, err
	}
	if verdict.skip {
		return nil, nil
	}
	var out []StreamDelta
	if verdict.text != "" {
		out = append(out, StreamDelta{Token: verdict.text})
	}
	if verdict.final {
		d.done = true
		out = append(out, StreamDelta{Done: true})
	}
	return out, nil
}

// dataPayload collects the data-line payload of one event block. Heartbeat
// lines starting with ':' are skipped without being parsed; multiple data
// lines are joined with a newline per the event-stream convention. Returns
// nil when the block has no data line at all.
func dataPayload(block []byte) []byte {
	var payload []byte
	found := false
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		rest, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		if found {
			payload = append(payload, '\n')
		}
		payload = append(payload, bytes.TrimPrefix(rest, []byte(" "))...)
		found = true
	}
	if !found {
		return nil
	}
	return payload
}

func truncateForLog(payload []byte) string {
	const max = 120
	if len(payload) > max {
		payload = payload[:max]
	}
	return string(payload)
}

// anthropicClassify maps Anthropic message-stream events onto deltas.
// Unknown event kinds are ignored so schema additions don't break us.
func anthropicClassify(payload []byte) (eventVerdict, error) {
	switch gjson.GetBytes(payload, "type").String() {
	case "content_block_delta":
		return eventVerdict{text: gjson.GetBytes(payload, "delta.text").String()}, nil
	case "message_stop":
		return eventVerdict{final: true}, nil
	case "error":
		return eventVerdict{}, &ProviderError{
			Provider: "anthropic",
			Message:  gjson.GetBytes(payload, "error.message").String(),
		}
	default:
		// message_start, message_delta, content_block_start,
		// content_block_stop, ping and anything newer.
		return eventVerdict{skip: true}, nil
	}
}

// openaiClassify maps chat-completion chunks onto deltas. The [DONE]
// sentinel arrives after the finish_reason chunk and is handled by the
// decoder itself.
func openaiClassify(payload []byte) (eventVerdict, error) {
	if errMsg := gjson.GetBytes(payload, "error.message"); errMsg.Exists() {
		return eventVerdict{}, &ProviderError{
			Provider: "openai",
			Message:  errMsg.String(),
		}
	}
	choice := gjson.GetBytes(payload, "choices.0")
	if !choice.Exists() {
		return eventVerdict{skip: true}, nil
	}
	verdict := eventVerdict{
		text:  choice.Get("delta.content").String(),
		final: choice.Get("finish_reason").String() != "",
	}
	if verdict.text == "" && !verdict.final {
		verdict.skip = true
	}
	return verdict, nil
}
