// Package transport defines the duplex, message-oriented channel a
// [wirerpc] Session is driven over, plus a couple of reference
// implementations good enough to test and ship with.
package transport

import (
	"errors"
)

// ErrDisconnected is returned by Recv once the peer has gone away or
// Close has been called. Send reports the same condition by returning
// false.
var ErrDisconnected = errors.New("transport: disconnected")

// ErrNoData is returned by Recv when the implementation woke up without a
// full message available (e.g. a poll interruption) and the caller should
// just call Recv again.
var ErrNoData = errors.New("transport: no data")

// Frame is a single, already-framed message. The transport treats it as
// opaque and is responsible for preserving its boundaries; wirerpc never
// inspects anything but the MessagePack payload inside it.
type Frame []byte

// Transport is the capability contract any concrete duplex channel
// (WebSocket, shared memory, an in-memory pipe, a length-prefixed TCP
// stream) must satisfy for a Session to drive it. Send and Recv must be
// safe to call concurrently with each other; Recv is only ever called
// from one goroutine at a time per Session (the Session enforces this with
// its own try-lock, see recvMu in session.go), but Send may be called
// from many goroutines concurrently and must serialize its own writes.
type Transport interface {
	// Send atomically transmits one frame and reports whether the
	// transport accepted it.
	Send(f Frame) bool

	// Recv blocks until one complete frame arrives, returning
	// ErrDisconnected if the peer has closed the connection or ErrNoData
	// if the implementation was interrupted with nothing to deliver.
	Recv() (Frame, error)

	// Connected is a best-effort liveness check.
	Connected() bool

	// Close initiates teardown. After Close, Recv must return
	// ErrDisconnected and Send must return false.
	Close() error
}
