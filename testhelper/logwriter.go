// Package testhelper holds small pieces shared across this module's test
// files, starting with a bridge from a Session's Logger option to go
// test's own per-test output.
package testhelper

import (
	"log"
	"strings"
	"testing"
)

// logWriter adapts an io.Writer to testing.T.Log, the same bridge the
// teacher's inttest package uses (inttest/util_test.go) to route a
// session's diagnostics into the test log instead of the process-wide
// stderr, so `go test -v` attributes each line to the test that produced
// it.
type logWriter struct {
	t      *testing.T
	prefix string
}

func newLogWriter(prefix string, t *testing.T) *logWriter {
	return &logWriter{t: t, prefix: prefix}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Log(w.prefix, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewLogger returns a *log.Logger — which already satisfies
// wirerpc.Logger's Printf method — that writes every diagnostic line
// through t.Log under prefix, for passing to wirerpc.WithLogger in
// tests.
func NewLogger(t *testing.T, prefix string) *log.Logger {
	return log.New(newLogWriter(prefix, t), "", 0)
}
