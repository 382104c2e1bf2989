package ui

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Spinner wraps a terminal spinner shown while waiting for a full,
// non-streaming response.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = "  " + msg
	s.Color("cyan")
	return &Spinner{s: s}
}

// Start begins the spinner animation.
func (sp *Spinner) Start() {
	sp.s.Start()
}

// Stop halts the spinner and clears the line.
func (sp *Spinner) Stop() {
	sp.s.Stop()
}

// Fail stops the spinner and prints a red cross with the message.
func (sp *Spinner) Fail(msg string) {
	sp.s.Stop()
	red := color.New(color.FgRed)
	red.Fprintf(os.Stderr, "  ✗ %s\n", msg)
}
