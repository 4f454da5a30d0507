// Package diag emits build-log diagnostics for the git credentials step.
// The sink writes to the build's own console log, not the operator log —
// every line a job owner sees about credential resolution goes through here.
// Private-key material must never be passed to a Sink.
package diag

import (
	"io"
	"sync"
)

const (
	infoPrefix  = "[GitCredentials] - "
	errorPrefix = "[GitCredentials] - [ERROR] - "
)

// Sink receives line-oriented diagnostics destined for the build log.
type Sink interface {
	Info(msg string)
	Error(msg string)
}

// LineSink writes prefixed diagnostic lines to a build log writer.
// Safe for concurrent use.
type LineSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineSink creates a LineSink writing to w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

func (s *LineSink) Info(msg string) {
	s.writeLine(infoPrefix, msg)
}

func (s *LineSink) Error(msg string) {
	s.writeLine(errorPrefix, msg)
}

func (s *LineSink) writeLine(prefix, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Write failures are swallowed: a broken build log must not take the
	// credential step down with it.
	_, _ = io.WriteString(s.w, prefix+msg+"\n")
}

// Discard is a Sink that drops all diagnostics. Useful in tests and as a
// fallback when no build log is attached.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Info(string)  {}
func (discardSink) Error(string) {}
