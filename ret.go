package wirerpc

import (
	"fmt"
	"sync"
)

// Ret is the single-use reply handle handed to a Service for one inbound
// packet. For a Request it is armed with that request's id; for a
// Notify it is constructed already spent, so any reply attempt is
// silently a no-op (spec §4.5, "Notify silence").
type Ret struct {
	s *Session

	mu        sync.Mutex
	id        uint32
	armed     bool
	isRequest bool
}

func newRet(s *Session, id uint32, armed bool) *Ret {
	return &Ret{s: s, id: id, armed: armed, isRequest: armed}
}

// take consumes the reply slot, returning false if it was already spent
// (either by a prior reply or because this Ret was never armed).
func (r *Ret) take() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return 0, false
	}
	r.armed = false
	return r.id, true
}

// armedID reports the id and whether the slot is still unconsumed,
// without consuming it. Used by Session to decide whether a handler left
// a request unanswered (spec §4.5, MissingResponse diagnostic).
func (r *Ret) armedID() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.armed
}

// Reply encodes v and sends a successful Response. It is a no-op if the
// reply was already sent or this Ret belongs to a Notify.
func (r *Ret) Reply(v any) error {
	id, ok := r.take()
	if !ok {
		return nil
	}
	frame, err := buildResponse(id, v)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// ReplyRaw splices already-encoded MessagePack bytes in as the result,
// after a nil error field, without re-encoding them.
func (r *Ret) ReplyRaw(raw []byte) error {
	id, ok := r.take()
	if !ok {
		return nil
	}
	frame, err := buildResponseRaw(id, raw)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding raw reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// ReplyError sends a failure Response carrying msg as the error field.
func (r *Ret) ReplyError(msg string) error {
	id, ok := r.take()
	if !ok {
		return nil
	}
	frame, err := buildResponseError(id, msg)
	if err != nil {
		return fmt.Errorf("wirerpc: encoding error reply: %w", err)
	}
	return r.s.sendFrame(frame)
}

// Forward replies with an already-assembled Response, typically one
// received from another Session being proxied through this one.
func (r *Ret) Forward(resp Response) error {
	if resp.IsError() {
		return r.ReplyError(resp.Err())
	}
	raw, err := resp.Raw()
	if err != nil {
		return err
	}
	return r.ReplyRaw(raw)
}

// IsRequest reports whether this Ret came from a Request (true) or a
// Notify (false), regardless of whether it has already been spent.
func (r *Ret) IsRequest() bool {
	return r.isRequest
}

// IntoAsync consumes an armed Ret and returns an AsyncRet that can reply
// from any goroutine after the Service.Handle call that received it has
// returned. It returns false if the Ret was already spent or belonged to
// a Notify.
//
// Unlike the reference implementation this Ret is generalized from
// (spec §9, "Arc-from-raw for into_async"), there is no unsafe
// reconstruction of a shared handle here: Ret already carries the same
// *Session pointer AsyncRet needs, since Go has no analog to a bare
// reference that isn't already behind a real pointer.
func (r *Ret) IntoAsync() (*AsyncRet, bool) {
	id, ok := r.take()
	if !ok {
		return nil, false
	}
	return &AsyncRet{s: r.s, id: id}, true
}
