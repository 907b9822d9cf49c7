// Package testlogger adapts testing.TB into an io.Writer, so server
// and client diagnostics end up attributed to the test that triggered
// them instead of the test binary's stderr.
package testlogger

import "testing"

// Writer relays each Write call to t.Logf.
type Writer struct {
	t testing.TB
}

// New returns a Writer backed by t.
func New(t testing.TB) *Writer {
	return &Writer{t: t}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Logf("%s", p)
	return len(p), nil
}
