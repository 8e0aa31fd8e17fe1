package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// maxFrameSize guards against a corrupt or malicious length prefix
// allocating an unreasonable buffer.
const maxFrameSize = 64 << 20 // 64MiB

// Stream implements Transport by length-prefixing each Frame with a
// 4-byte big-endian size on top of any io.ReadWriteCloser. It works
// unmodified over a net.Conn or a *tls.Conn, since both satisfy that
// interface; wirerpc takes no position on how the connection got dialed
// or secured.
//
// This generalizes the teacher's RFC6242 transport.Framer (chunk/EOM
// framing with an Upgrade handshake between the two modes) down to the
// single fixed-width length prefix this spec actually needs: there is no
// "NETCONF 1.0 to 1.1" style upgrade to negotiate here.
type Stream struct {
	rwc io.ReadWriteCloser
	br  *bufio.Reader

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewStream wraps rwc as a Transport. rwc is closed when the returned
// Stream's Close method is called.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{
		rwc: rwc,
		br:  bufio.NewReader(rwc),
	}
}

func (s *Stream) Send(f Frame) bool {
	if len(f) > maxFrameSize {
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(f))) // #nosec: bounded above
	if _, err := s.rwc.Write(hdr[:]); err != nil {
		return false
	}
	if _, err := s.rwc.Write(f); err != nil {
		return false
	}
	return true
}

func (s *Stream) Recv() (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(s.br, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF || !s.Connected() {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > math.MaxInt32 || n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds limit", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF || !s.Connected() {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return Frame(buf), nil
}

func (s *Stream) Connected() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return !s.closed
}

func (s *Stream) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rwc.Close()
}
