package wirerpc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wirerpc/wirerpc/transport"
)

// noDataBackoff bounds how long waitResponse sleeps between retries when
// the transport reports ErrNoData, a poll-interruption signal rather
// than an error. Spec §9 flags this path as an open question between
// retrying and parking on the reply slot; parking risks starving a
// caller that is also the only goroutine able to pump (nothing else
// will ever call RecvPacket on its behalf), so a short, capped backoff
// is used instead. Neither Pair nor Stream ever produces ErrNoData;
// this only matters for a Transport that polls.
var noDataBackoff = []time.Duration{
	0,
	time.Millisecond,
	2 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
}

// Session is a bidirectional RPC endpoint driven over a single
// transport.Transport. Both peers are symmetric: either side may issue
// Request/Notify and either side may receive them, exactly as spec §2
// describes. There is no built-in I/O loop goroutine; a caller drives
// receipt either by calling LoopHandle in a dedicated goroutine or by
// letting Request/RequestTransfer pump on demand, the same "whoever's
// free does the work" design the reference implementation uses.
type Session struct {
	tr  transport.Transport
	svc Service

	logger        Logger
	onIDCollision func(id uint32)

	idCounter atomic.Uint32

	recvMu sync.Mutex // try-lock only: recv_lock in spec §4.6

	mu      sync.Mutex
	pending map[uint32]chan Response

	closed    atomic.Bool
	closeOnce sync.Once
}

// New builds a Session over tr, dispatching inbound Requests and
// Notifies to svc. A nil svc behaves like EmptyService.
func New(tr transport.Transport, svc Service, opts ...SessionOption) *Session {
	cfg := defaultSessionConfig()
	for _, o := range opts {
		o.apply(&cfg)
	}
	if svc == nil {
		svc = EmptyService{}
	}

	s := &Session{
		tr:            tr,
		svc:           svc,
		logger:        cfg.logger,
		onIDCollision: cfg.onIDCollision,
		pending:       make(map[uint32]chan Response),
	}
	s.idCounter.Store(1)
	return s
}

func (s *Session) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func (s *Session) isClosed() bool { return s.closed.Load() }

// nextID allocates the next request id, wrapping per spec §4.4's
// "id_counter ... wraps arithmetically" rather than erroring at
// exhaustion.
func (s *Session) nextID() uint32 {
	return s.idCounter.Add(1) - 1
}

func (s *Session) registerPending(id uint32, ch chan Response) {
	s.mu.Lock()
	if _, exists := s.pending[id]; exists && s.onIDCollision != nil {
		s.onIDCollision(id)
	}
	s.pending[id] = ch
	s.mu.Unlock()
}

func (s *Session) unregisterPending(id uint32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// sendFrame is the single choke point Ret, AsyncRet, Request and Notify
// all send frames through.
func (s *Session) sendFrame(frame transport.Frame) error {
	if !s.tr.Send(frame) {
		return ErrTransportLost
	}
	return nil
}

// RecvPacket attempts to receive and return exactly one inbound frame.
// It takes the session's try-lock-only recv lock (spec §4.6's
// recv_lock) for the duration of one underlying Transport.Recv call,
// returning ErrRecvContended immediately if another goroutine already
// holds it rather than blocking for it. Most callers want HandlePacket
// or LoopHandle instead; RecvPacket is exposed for callers that want to
// drive the frame/dispatch split themselves.
func (s *Session) RecvPacket() (transport.Frame, error) {
	if !s.recvMu.TryLock() {
		return nil, ErrRecvContended
	}
	defer s.recvMu.Unlock()

	frame, err := s.tr.Recv()
	if err != nil {
		if errors.Is(err, transport.ErrDisconnected) {
			s.drainOnDisconnect()
			return nil, ErrTransportLost
		}
		return nil, err
	}
	return frame, nil
}

// drainOnDisconnect is the fix spec §9 calls "required": once transport
// loss is observed, every caller still waiting on a pending request must
// be woken with an error instead of left blocked forever. It closes
// each pending channel exactly like the teacher's recv loop does on its
// own exit, so Request's `resp, ok := <-ch` sees ok == false.
func (s *Session) drainOnDisconnect() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint32]chan Response)
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// HandlePacket decodes one received frame and routes it: a Request or
// Notify goes to the Service, a Response is delivered to its waiting
// caller. It returns a non-nil error only for a malformed frame
// (wrapping ErrProtocol); that error is fatal to the session, per spec
// §4.5's "Protocol errors are returned, not panics".
func (s *Session) HandlePacket(frame transport.Frame) error {
	hdr, err := decodeHeader(frame)
	if err != nil {
		return err
	}

	switch hdr.tag {
	case tagRequest:
		if hdr.length != 4 {
			return fmt.Errorf("%w: request packet has %d elements, want 4", ErrProtocol, hdr.length)
		}
		return s.handleRequest(frame, hdr.pos)
	case tagNotify:
		if hdr.length != 3 {
			return fmt.Errorf("%w: notify packet has %d elements, want 3", ErrProtocol, hdr.length)
		}
		return s.handleNotify(frame, hdr.pos)
	case tagResponse:
		if hdr.length != 4 {
			return fmt.Errorf("%w: response packet has %d elements, want 4", ErrProtocol, hdr.length)
		}
		return s.handleResponse(frame, hdr.pos)
	default:
		return fmt.Errorf("%w: unknown packet tag %d", ErrProtocol, hdr.tag)
	}
}

func (s *Session) handleRequest(frame []byte, pos int) error {
	id, n, err := decodeUint(frame[pos:])
	if err != nil {
		return fmt.Errorf("%w: reading request id: %w", ErrProtocol, err)
	}
	pos += n

	method, n, err := decodeMethodAt(frame[pos:])
	if err != nil {
		return err
	}
	pos += n

	arg := Arg{Method: method, ID: uint32(id), Bytes: frame[pos:]}
	ret := newRet(s, uint32(id), true)

	handleErr := s.svc.Handle(s, arg, ret)
	_, stillArmed := ret.armedID()

	switch {
	case handleErr != nil && stillArmed:
		if replyErr := ret.ReplyError(handleErr.Error()); replyErr != nil {
			s.logf("request %s (id %d): sending error reply: %v", method, id, replyErr)
		}
	case handleErr != nil:
		s.logf("request %s (id %d): handler returned %v after already replying", method, id, handleErr)
	case stillArmed:
		s.logf("request %s (id %d): handler returned without replying", method, id)
	}
	return nil
}

func (s *Session) handleNotify(frame []byte, pos int) error {
	method, n, err := decodeMethodAt(frame[pos:])
	if err != nil {
		return err
	}
	pos += n

	arg := Arg{Method: method, Bytes: frame[pos:]}
	ret := newRet(s, 0, false)

	// A Notify expects no reply; any error the handler returns is
	// discarded rather than surfaced anywhere (spec §4.5, "Notify
	// silence" extends to handler errors too, since there is no peer
	// waiting to receive them).
	_ = s.svc.Handle(s, arg, ret)
	return nil
}

func (s *Session) handleResponse(frame []byte, pos int) error {
	id, n, err := decodeUint(frame[pos:])
	if err != nil {
		return fmt.Errorf("%w: reading response id: %w", ErrProtocol, err)
	}
	pos += n

	errMsg, isErr, n, err := decodeErrorAt(frame[pos:])
	if err != nil {
		return err
	}
	pos += n

	s.mu.Lock()
	ch, ok := s.pending[uint32(id)]
	if ok {
		delete(s.pending, uint32(id))
	}
	s.mu.Unlock()

	if !ok {
		s.logf("discarding response for unknown or stale request id %d", id)
		return nil
	}

	if isErr {
		ch <- errorResponse(errMsg)
	} else {
		ch <- dataResponse(frame, pos)
	}
	return nil
}

// LoopHandle runs recv/dispatch in a loop until the transport
// disconnects or a malformed frame closes the session. It is meant to
// be run in its own goroutine by a server, or by a client that also
// wants to receive Notifies/Requests from its peer rather than only
// pumping on demand from Request.
func (s *Session) LoopHandle() {
	for {
		frame, err := s.RecvPacket()
		switch {
		case err == nil:
			if herr := s.HandlePacket(frame); herr != nil {
				s.logf("closing session: %v", herr)
				_ = s.Close()
				return
			}
		case errors.Is(err, ErrTransportLost):
			return
		case errors.Is(err, ErrRecvContended):
			// Someone else (e.g. a concurrent Request) is pumping right
			// now; give it a turn and try again.
			time.Sleep(time.Millisecond)
			continue
		case errors.Is(err, transport.ErrNoData):
			continue
		default:
			s.logf("closing session on unexpected recv error: %v", err)
			_ = s.Close()
			return
		}
	}
}

// waitResponse implements the rendezvous in spec §4.6: the caller
// either wins recv_lock and becomes the one pumping frames off the
// transport (handling whatever arrives, including other callers'
// responses and inbound Requests/Notifies) until its own reply shows
// up, or loses it and waits on its own reply channel, periodically
// retrying the lock in case the current pumper stops (e.g. because its
// own reply arrived first) before ours does.
func (s *Session) waitResponse(id uint32, ch chan Response) (Response, error) {
	noDataTries := 0
	for {
		frame, err := s.RecvPacket()
		switch {
		case err == nil:
			noDataTries = 0
			if herr := s.HandlePacket(frame); herr != nil {
				s.logf("closing session: %v", herr)
				_ = s.Close()
			}
			select {
			case resp, ok := <-ch:
				if !ok {
					return Response{}, ErrTransportLost
				}
				return resp, nil
			default:
				// Not ours; keep pumping.
			}

		case errors.Is(err, ErrRecvContended):
			select {
			case resp, ok := <-ch:
				if !ok {
					return Response{}, ErrTransportLost
				}
				return resp, nil
			case <-time.After(time.Millisecond):
				// The pumper may have stopped after collecting its own
				// reply; take another shot at the lock instead of
				// waiting on ch forever.
			}

		case errors.Is(err, transport.ErrNoData):
			if noDataTries < len(noDataBackoff) {
				noDataTries++
			}
			time.Sleep(noDataBackoff[noDataTries-1])

		case errors.Is(err, ErrTransportLost):
			return Response{}, ErrTransportLost

		default:
			return Response{}, err
		}
	}
}

// toMethod accepts a Method, a string, or an integer type as a method
// identifier, the Go shape of the reference implementation's generic
// `impl ToMethod` bound (spec §8, "method polymorphism").
func toMethod(v any) (Method, error) {
	switch t := v.(type) {
	case Method:
		return t, nil
	case string:
		return StrMethod(t), nil
	case uint32:
		return IntMethod(t), nil
	case int:
		if t < 0 {
			return Method{}, fmt.Errorf("wirerpc: negative method %d", t)
		}
		return IntMethod(uint32(t)), nil
	default:
		return Method{}, fmt.Errorf("wirerpc: %T is not a valid method (want string, uint32, int, or Method)", v)
	}
}

// Request sends args to method and blocks for the matching Response,
// assigning and tracking the request id itself.
func (s *Session) Request(method any, args any) (Response, error) {
	m, err := toMethod(method)
	if err != nil {
		return Response{}, err
	}
	if s.isClosed() {
		return Response{}, ErrClosed
	}

	id := s.nextID()
	ch := make(chan Response, 1)
	s.registerPending(id, ch)

	frame, err := buildRequest(id, m, args)
	if err != nil {
		s.unregisterPending(id)
		return Response{}, err
	}
	if err := s.sendFrame(frame); err != nil {
		s.unregisterPending(id)
		return Response{}, err
	}
	return s.waitResponse(id, ch)
}

// RequestTransfer is Request with an already-encoded MessagePack
// argument payload, for callers forwarding a value they never need to
// decode themselves (spec §4.6, "Transfer equivalence").
func (s *Session) RequestTransfer(method any, raw []byte) (Response, error) {
	m, err := toMethod(method)
	if err != nil {
		return Response{}, err
	}
	if s.isClosed() {
		return Response{}, ErrClosed
	}

	id := s.nextID()
	ch := make(chan Response, 1)
	s.registerPending(id, ch)

	frame, err := buildRequestRaw(id, m, raw)
	if err != nil {
		s.unregisterPending(id)
		return Response{}, err
	}
	if err := s.sendFrame(frame); err != nil {
		s.unregisterPending(id)
		return Response{}, err
	}
	return s.waitResponse(id, ch)
}

// Notify sends args to method and returns once the transport has
// accepted the frame; it never waits for, or expects, a reply.
func (s *Session) Notify(method any, args any) error {
	m, err := toMethod(method)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	frame, err := buildNotify(m, args)
	if err != nil {
		return err
	}
	return s.sendFrame(frame)
}

// NotifyTransfer is Notify with an already-encoded MessagePack argument
// payload.
func (s *Session) NotifyTransfer(method any, raw []byte) error {
	m, err := toMethod(method)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	frame, err := buildNotifyRaw(m, raw)
	if err != nil {
		return err
	}
	return s.sendFrame(frame)
}

// Close tears down the underlying transport and wakes every request
// still waiting on a reply with ErrTransportLost. It is safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.tr.Close()
		s.drainOnDisconnect()
	})
	return err
}
