package wirerpc

import (
	"log"
	"os"
)

// Logger receives the non-fatal diagnostics spec §7 calls out: a handler
// that left a request unanswered, a handler error reported after it had
// already replied, and a Response packet discarded for an unknown or
// stale id. None of these close the session; they're visibility only.
//
// The teacher logs the equivalent conditions (failed recv, a missing
// session-id) with the standard log package rather than a structured
// logging library, so wirerpc keeps the same ambient shape instead of
// pulling one in.
type Logger interface {
	Printf(format string, args ...any)
}

var defaultLogger Logger = log.New(os.Stderr, "wirerpc: ", log.LstdFlags)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}
