package ai

import (
	"errors"
	"fmt"
)

// ErrTruncated reports a stream that ended before the provider signalled
// completion. Deltas already emitted remain valid; the caller decides
// whether to keep the partial text.
var ErrTruncated = errors.New("stream ended before completion")

// ProviderError is an error the provider itself reported, either as a
// non-2xx HTTP response or as an explicit error payload in the stream.
type ProviderError struct {
	Provider string
	Status   int // HTTP status, 0 for in-stream errors
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s reported an error: %s", e.Provider, e.Message)
}
