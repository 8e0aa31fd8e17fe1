package wirerpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Response is the caller-side view of a completed Request, returned by
// Session.Request. Exactly one of its two states is meaningful: Data for
// a successful reply, Err for a handler-reported failure.
type Response struct {
	// frame is the entire received Response packet; payloadOffset is
	// where the result value begins in it. Keeping the whole frame lets
	// Decode read the result without copying it out first.
	frame         []byte
	payloadOffset int

	err string
	isErr bool
}

// IsError reports whether the peer's handler returned a failure instead
// of a result.
func (r Response) IsError() bool { return r.isErr }

// Err returns the textual error the peer's handler reported, or "" for a
// successful Response.
func (r Response) Err() string { return r.err }

// Decode unmarshals the successful result into v. It returns an error
// both when the Response carries a handler error (use Err/IsError to
// inspect that case instead) and when v doesn't match the payload shape.
func (r Response) Decode(v any) error {
	if r.isErr {
		return fmt.Errorf("wirerpc: remote error: %s", r.err)
	}
	return msgpack.Unmarshal(r.frame[r.payloadOffset:], v)
}

// Raw returns the undecoded result payload bytes of a successful
// Response, for callers that want to forward it verbatim (see
// Session.RequestTransfer).
func (r Response) Raw() ([]byte, error) {
	if r.isErr {
		return nil, fmt.Errorf("wirerpc: remote error: %s", r.err)
	}
	return r.frame[r.payloadOffset:], nil
}

func dataResponse(frame []byte, payloadOffset int) Response {
	return Response{frame: frame, payloadOffset: payloadOffset}
}

func errorResponse(msg string) Response {
	return Response{err: msg, isErr: true}
}
