package diag

import (
	"strings"
	"testing"
)

func TestLineSinkPrefixes(t *testing.T) {
	var buf strings.Builder
	sink := NewLineSink(&buf)

	sink.Info("No user credential lookup configured")
	sink.Error("No usable credentials were found")

	got := buf.String()
	want := "[GitCredentials] - No user credential lookup configured\n" +
		"[GitCredentials] - [ERROR] - No usable credentials were found\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDiscardDoesNothing(t *testing.T) {
	// Must not panic.
	Discard.Info("x")
	Discard.Error("y")
}
