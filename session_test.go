package wirerpc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/wirerpc/wirerpc/testhelper"
	"github.com/wirerpc/wirerpc/transport"
)

// echoService answers "echo" by replying with the decoded argument
// unchanged, and "boom" by returning an error without ever calling Reply,
// letting HandlePacket synthesize the error Response itself.
type echoService struct {
	asyncQueue chan *AsyncRet
}

func (e *echoService) Handle(s *Session, arg Arg, ret *Ret) error {
	switch {
	case arg.Method.IsStr("echo"):
		var v any
		if err := arg.Decode(&v); err != nil {
			return err
		}
		return ret.Reply(v)
	case arg.Method.IsStr("boom"):
		return errors.New("boom")
	case arg.Method.IsStr("defer"):
		async, ok := ret.IntoAsync()
		if !ok {
			return nil
		}
		e.asyncQueue <- async
		return nil
	case arg.Method.IsStr("silent"):
		// Deliberately never replies, to exercise the "handler left a
		// request unanswered" diagnostic path.
		return nil
	default:
		return ErrMethodUnknown
	}
}

func newLinkedSessions(t *testing.T, svcA, svcB Service) (*Session, *Session) {
	t.Helper()
	trA, trB := transport.NewPair()
	a := New(trA, svcA, WithLogger(testhelper.NewLogger(t, "a")))
	b := New(trB, svcB, WithLogger(testhelper.NewLogger(t, "b")))
	return a, b
}

func TestRequestEchoRoundTrip(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	resp, err := a.Request("echo", "hi")
	require.NoError(t, err)
	require.False(t, resp.IsError())

	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "hi", got)
}

func TestRequestHandlerErrorBecomesErrorResponse(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	resp, err := a.Request("boom", nil)
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Equal(t, "boom", resp.Err())
}

func TestRequestUnknownMethod(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	resp, err := a.Request("nope", nil)
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Contains(t, resp.Err(), "no such method")
}

func TestNotifyGetsNoResponseAndIsSilent(t *testing.T) {
	var handled sync.WaitGroup
	handled.Add(1)

	svc := ServiceFunc(func(s *Session, arg Arg, ret *Ret) error {
		defer handled.Done()
		assert.False(t, ret.IsRequest())
		var v int
		require.NoError(t, arg.Decode(&v))
		assert.Equal(t, 7, v)
		// Replying on a Notify's Ret must be a harmless no-op.
		return ret.Reply("ignored")
	})

	a, b := newLinkedSessions(t, EmptyService{}, svc)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Notify("tick", 7))

	// Drive one recv on the receiving side so the handler actually runs.
	frame, err := b.RecvPacket()
	require.NoError(t, err)
	require.NoError(t, b.HandlePacket(frame))

	handled.Wait()
}

func TestAsyncRetRepliesFromAnotherGoroutine(t *testing.T) {
	svc := &echoService{asyncQueue: make(chan *AsyncRet, 1)}
	a, b := newLinkedSessions(t, EmptyService{}, svc)
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	go func() {
		async := <-svc.asyncQueue
		time.Sleep(5 * time.Millisecond)
		_ = async.Reply("later")
	}()

	resp, err := a.Request("defer", nil)
	require.NoError(t, err)
	require.False(t, resp.IsError())

	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "later", got)
}

func TestConcurrentRequestsGetDistinctIDsAndCorrectReplies(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			resp, err := a.Request("echo", i)
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("unexpected error response: %s", resp.Err())
			}
			var got int
			if err := resp.Decode(&got); err != nil {
				return err
			}
			if got != i {
				return fmt.Errorf("got %d, want %d", got, i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestTransportLossDrainsPendingRequests(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, EmptyService{})
	defer a.Close()

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Request("whatever", nil)
		if !errors.Is(err, ErrTransportLost) {
			return fmt.Errorf("got %v, want ErrTransportLost", err)
		}
		return nil
	})

	// Give the request a moment to register itself as pending and start
	// pumping before the transport goes away.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Close())

	require.NoError(t, g.Wait())
}

func TestRequestAfterCloseReturnsErrClosed(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, EmptyService{})
	defer b.Close()
	require.NoError(t, a.Close())

	_, err := a.Request("whatever", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoopHandleServesRequestsUntilDisconnect(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()

	done := make(chan struct{})
	go func() {
		b.LoopHandle()
		close(done)
	}()

	resp, err := a.Request("echo", "via-loop")
	require.NoError(t, err)
	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "via-loop", got)

	require.NoError(t, a.Close())
	<-done
}

func TestIDCollisionHookFiresOnReusedPendingID(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, EmptyService{})
	defer a.Close()

	var collisions atomic.Int64
	var gotID uint32
	a.onIDCollision = func(id uint32) {
		collisions.Add(1)
		gotID = id
	}

	// A fresh session's nextID() call returns 1. Seed that slot with a
	// stale entry as if a prior request on id 1 were still outstanding,
	// so the next registerPending(1, ...) call collides with it.
	stale := make(chan Response, 1)
	a.mu.Lock()
	a.pending[1] = stale
	a.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Request("whatever", nil)
		if !errors.Is(err, ErrTransportLost) {
			return fmt.Errorf("got %v, want ErrTransportLost", err)
		}
		return nil
	})

	// Give the request a moment to register itself (and collide) before
	// the transport goes away and unblocks it.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), collisions.Load())
	assert.Equal(t, uint32(1), gotID)
}

func TestRequestTransferAndNotifyTransferSpliceRawPayload(t *testing.T) {
	a, b := newLinkedSessions(t, EmptyService{}, &echoService{})
	defer a.Close()
	defer b.Close()
	go b.LoopHandle()

	raw, err := msgpack.Marshal("transferred")
	require.NoError(t, err)

	resp, err := a.RequestTransfer("echo", raw)
	require.NoError(t, err)
	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "transferred", got)

	rawNotify, err := msgpack.Marshal(99)
	require.NoError(t, err)
	require.NoError(t, a.NotifyTransfer("tick", rawNotify))
}
