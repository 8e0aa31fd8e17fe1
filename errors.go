package wirerpc

import "errors"

// ErrTransportLost is returned to every caller affected when the
// underlying Transport is observed to be gone: Recv returned
// transport.ErrDisconnected, Send returned false, or the session was
// closed out from under a pending request.
var ErrTransportLost = errors.New("wirerpc: transport lost")

// ErrRecvContended is returned by RecvPacket when another goroutine is
// already blocked receiving for this Session. It is transient: the
// caller either retries or, in the request path, waits on its own reply
// slot instead.
var ErrRecvContended = errors.New("wirerpc: receive already in progress")

// ErrProtocol indicates a malformed frame: a bad array length, an
// unknown packet tag, or a method field that is neither an integer nor a
// string. It is fatal for the session that observed it.
var ErrProtocol = errors.New("wirerpc: protocol error")

// ErrMethodUnknown is a convenience error Services may return from
// Handle for a method they don't implement; EmptyService always returns
// it.
var ErrMethodUnknown = errors.New("wirerpc: no such method")

// ErrClosed is returned by Request/Notify once the session has been
// closed or its transport loss has been observed. A Request that was
// already pending at that moment gets ErrTransportLost instead.
var ErrClosed = errors.New("wirerpc: session closed")
