// Package ui provides terminal UI helpers.
package ui

import (
	"fmt"
	"io"
	"strings"

	"polychat/internal/ai"
)

// RenderStream is the delta consumer for interactive use: it writes each
// fragment to w the moment it arrives and assembles the full reply for the
// conversation history. The prefix is printed before the first fragment
// (e.g. the "bot → " marker). Returns whatever text was rendered before an
// error, so a failed turn keeps its partial output.
func RenderStream(w io.Writer, ch <-chan ai.StreamDelta, prefix string) (string, error) {
	var full strings.Builder
	first := true

	for delta := range ch {
		if delta.Err != nil {
			if full.Len() > 0 {
				fmt.Fprintln(w)
			}
			return full.String(), delta.Err
		}
		if delta.Done {
			break
		}
		if delta.Token == "" {
			continue
		}

		if first {
			fmt.Fprint(w, prefix)
			first = false
		}
		fmt.Fprint(w, delta.Token)
		full.WriteString(delta.Token)
	}

	if full.Len() > 0 && !strings.HasSuffix(full.String(), "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	return strings.TrimSpace(full.String()), nil
}
