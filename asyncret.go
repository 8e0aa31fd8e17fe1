package wirerpc

import (
	"fmt"
	"sync/atomic"
)

// AsyncRet is an owning, detachable reply handle produced by
// Ret.IntoAsync. It lets a Service hand off a request and reply to it
// later, from any goroutine, after Handle has returned. Exactly one
// reply may be sent; replying twice is a no-op after the first.
type AsyncRet struct {
	s    *Session
	id   uint32
	used atomic.Bool
}

func (r *AsyncRet) take() bool {
	return !r.used.Swap(true)
}

// Reply encodes v and sends a successful Response.
func (r *AsyncRet) Reply(v any) error {
	if !r.take() {
		return nil
	}
	frame, err := buildResponse(r.id, v)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding async reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// ReplyRaw splices already-encoded MessagePack bytes in as the result.
func (r *AsyncRet) ReplyRaw(raw []byte) error {
	if !r.take() {
		return nil
	}
	frame, err := buildResponseRaw(r.id, raw)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding async raw reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// ReplyError sends a failure Response carrying msg as the error field.
func (r *AsyncRet) ReplyError(msg string) error {
	if !r.take() {
		return nil
	}
	frame, err := buildResponseError(r.id, msg)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding async error reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// Forward replies with an already-assembled Response.
func (r *AsyncRet) Forward(resp Response) error {
	if resp.IsError() {
		return r.ReplyError(resp.Err())
	}
	raw, err := resp.Raw()
	if err != nil {
		return err
	}
	return r.ReplyRaw(raw)
}
