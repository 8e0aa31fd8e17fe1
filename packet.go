package wirerpc

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wirerpc/wirerpc/transport"
)

// Packet type tags, per spec §3 and §6.
const (
	tagRequest  uint64 = 0
	tagResponse uint64 = 1
	tagNotify   uint64 = 2
)

// packetHeader is the decoded, common envelope of any inbound frame:
// its array length and type tag, plus the byte offset right after the
// tag where the per-type fields begin.
type packetHeader struct {
	length int
	tag    uint64
	pos    int
}

func decodeHeader(frame []byte) (packetHeader, error) {
	length, n, err := decodeArrayLen(frame)
	if err != nil {
		return packetHeader{}, err
	}
	pos := n

	tag, n, err := decodeUint(frame[pos:])
	if err != nil {
		return packetHeader{}, fmt.Errorf("%w: reading packet type tag: %w", ErrProtocol, err)
	}
	pos += n

	return packetHeader{length: length, tag: tag, pos: pos}, nil
}

// newFrameBuffer returns a buffer sized for a typical small packet;
// encoding grows it as needed.
func newFrameBuffer() *bytes.Buffer {
	return bytes.NewBuffer(make([]byte, 0, 64))
}

func writeRequestHeader(buf *bytes.Buffer, id uint32, m Method) error {
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeUint(tagRequest); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(id)); err != nil {
		return err
	}
	return encodeMethod(enc, m)
}

func writeNotifyHeader(buf *bytes.Buffer, m Method) error {
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	if err := enc.EncodeUint(tagNotify); err != nil {
		return err
	}
	return encodeMethod(enc, m)
}

// writeResponseHeader writes the array length, type tag and id of a
// Response packet; the caller still owes the error field and the result.
func writeResponseHeader(buf *bytes.Buffer, id uint32) error {
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeUint(tagResponse); err != nil {
		return err
	}
	return enc.EncodeUint(uint64(id))
}

// encodeArgs appends v, struct-mapped, to buf using the session's
// convention for request/notify/response payloads.
func encodeArgs(buf *bytes.Buffer, v any) error {
	enc := msgpack.NewEncoder(buf)
	enc.SetCustomStructTag("msgpack")
	enc.UseArrayEncodedStructs(false)
	return enc.Encode(v)
}

func buildRequest(id uint32, m Method, args any) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeRequestHeader(buf, id, m); err != nil {
		return nil, err
	}
	if err := encodeArgs(buf, args); err != nil {
		return nil, err
	}
	return transport.Frame(buf.Bytes()), nil
}

func buildRequestRaw(id uint32, m Method, raw []byte) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeRequestHeader(buf, id, m); err != nil {
		return nil, err
	}
	buf.Write(raw)
	return transport.Frame(buf.Bytes()), nil
}

func buildNotify(m Method, args any) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeNotifyHeader(buf, m); err != nil {
		return nil, err
	}
	if err := encodeArgs(buf, args); err != nil {
		return nil, err
	}
	return transport.Frame(buf.Bytes()), nil
}

func buildNotifyRaw(m Method, raw []byte) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeNotifyHeader(buf, m); err != nil {
		return nil, err
	}
	buf.Write(raw)
	return transport.Frame(buf.Bytes()), nil
}

func buildResponse(id uint32, v any) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeResponseHeader(buf, id); err != nil {
		return nil, err
	}
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeNil(); err != nil {
		return nil, err
	}
	if err := encodeArgs(buf, v); err != nil {
		return nil, err
	}
	return transport.Frame(buf.Bytes()), nil
}

func buildResponseRaw(id uint32, raw []byte) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeResponseHeader(buf, id); err != nil {
		return nil, err
	}
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeNil(); err != nil {
		return nil, err
	}
	buf.Write(raw)
	return transport.Frame(buf.Bytes()), nil
}

func buildResponseError(id uint32, msg string) (transport.Frame, error) {
	buf := newFrameBuffer()
	if err := writeResponseHeader(buf, id); err != nil {
		return nil, err
	}
	enc := msgpack.NewEncoder(buf)
	if err := enc.EncodeString(msg); err != nil {
		return nil, err
	}
	if err := enc.EncodeNil(); err != nil {
		return nil, err
	}
	return transport.Frame(buf.Bytes()), nil
}
