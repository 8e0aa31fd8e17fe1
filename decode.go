package wirerpc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// This file is the hand-rolled half of the codec helpers spec §4.2 calls
// for: reading the fixed packet header fields (array length, the packet
// type tag, a request id) and reading a self-describing value (for the
// Method and error fields) while knowing exactly how many bytes it
// consumed.
//
// That last part is the whole reason this isn't just calls into
// msgpack.Decoder: decoding the trailing args/result payload needs to
// start at an exact byte offset into the received frame so Response can
// hand it to the caller without copying (spec §3, "RespData ... offset").
// A streaming Decoder over the frame can't promise it hasn't buffered
// ahead past that point, so the header fields that aren't the packet's
// final element are parsed directly off the byte slice instead, mirroring
// how the reference implementation advances a raw `&[u8]` cursor with
// `rmp::decode`/`rmpv::decode::read_value`. The generic struct/slice
// payloads (Arg.Decode, Response.Decode, encodeArgs) still go through
// github.com/vmihailenco/msgpack/v5's Marshal/Unmarshal, which has no such
// ambiguity since it always works a fixed byte slice at a time.

func decodeArrayLen(b []byte) (length, n int, err error) {
	if len(b) < 1 {
		return 0, 0, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	c := b[0]
	switch {
	case c >= 0x90 && c <= 0x9f:
		return int(c & 0x0f), 1, nil
	case c == 0xdc:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("%w: truncated array16 header", ErrProtocol)
		}
		return int(binary.BigEndian.Uint16(b[1:3])), 3, nil
	case c == 0xdd:
		if len(b) < 5 {
			return 0, 0, fmt.Errorf("%w: truncated array32 header", ErrProtocol)
		}
		return int(binary.BigEndian.Uint32(b[1:5])), 5, nil
	default:
		return 0, 0, fmt.Errorf("%w: expected array, got byte 0x%02x", ErrProtocol, c)
	}
}

// decodeUint reads a non-negative integer value, which is all a packet
// type tag or a request id can ever legally be.
func decodeUint(b []byte) (v uint64, n int, err error) {
	val, n, err := decodeValue(b)
	if err != nil {
		return 0, 0, err
	}
	switch t := val.(type) {
	case uint64:
		return t, n, nil
	case int64:
		if t < 0 {
			return 0, 0, fmt.Errorf("%w: expected unsigned integer, got %d", ErrProtocol, t)
		}
		return uint64(t), n, nil
	default:
		return 0, 0, fmt.Errorf("%w: expected integer, got %T", ErrProtocol, val)
	}
}

// decodeValue parses exactly one self-describing scalar value (nil, an
// integer, or a string) and returns how many bytes it occupied. It is
// the subset of MessagePack spec §4.2/§6 requires for the Method and
// Response.error fields; nothing in this protocol ever puts an array,
// map, float, bool, or binary value in either position.
func decodeValue(b []byte) (v any, n int, err error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("%w: empty value", ErrProtocol)
	}
	c := b[0]

	switch {
	case c <= 0x7f: // positive fixint
		return uint64(c), 1, nil
	case c >= 0xe0: // negative fixint
		return int64(int8(c)), 1, nil
	case c >= 0xa0 && c <= 0xbf: // fixstr
		l := int(c & 0x1f)
		if len(b) < 1+l {
			return nil, 0, fmt.Errorf("%w: truncated fixstr", ErrProtocol)
		}
		return string(b[1 : 1+l]), 1 + l, nil
	}

	switch c {
	case 0xc0: // nil
		return nil, 1, nil
	case 0xcc: // uint8
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("%w: truncated uint8", ErrProtocol)
		}
		return uint64(b[1]), 2, nil
	case 0xcd: // uint16
		if len(b) < 3 {
			return nil, 0, fmt.Errorf("%w: truncated uint16", ErrProtocol)
		}
		return uint64(binary.BigEndian.Uint16(b[1:3])), 3, nil
	case 0xce: // uint32
		if len(b) < 5 {
			return nil, 0, fmt.Errorf("%w: truncated uint32", ErrProtocol)
		}
		return uint64(binary.BigEndian.Uint32(b[1:5])), 5, nil
	case 0xcf: // uint64
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("%w: truncated uint64", ErrProtocol)
		}
		return binary.BigEndian.Uint64(b[1:9]), 9, nil
	case 0xd0: // int8
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("%w: truncated int8", ErrProtocol)
		}
		return int64(int8(b[1])), 2, nil
	case 0xd1: // int16
		if len(b) < 3 {
			return nil, 0, fmt.Errorf("%w: truncated int16", ErrProtocol)
		}
		return int64(int16(binary.BigEndian.Uint16(b[1:3]))), 3, nil
	case 0xd2: // int32
		if len(b) < 5 {
			return nil, 0, fmt.Errorf("%w: truncated int32", ErrProtocol)
		}
		return int64(int32(binary.BigEndian.Uint32(b[1:5]))), 5, nil
	case 0xd3: // int64
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("%w: truncated int64", ErrProtocol)
		}
		v := binary.BigEndian.Uint64(b[1:9])
		if v > math.MaxInt64 {
			return nil, 0, fmt.Errorf("%w: int64 overflow", ErrProtocol)
		}
		return int64(v), 9, nil
	case 0xd9: // str8
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("%w: truncated str8 header", ErrProtocol)
		}
		l := int(b[1])
		if len(b) < 2+l {
			return nil, 0, fmt.Errorf("%w: truncated str8", ErrProtocol)
		}
		return string(b[2 : 2+l]), 2 + l, nil
	case 0xda: // str16
		if len(b) < 3 {
			return nil, 0, fmt.Errorf("%w: truncated str16 header", ErrProtocol)
		}
		l := int(binary.BigEndian.Uint16(b[1:3]))
		if len(b) < 3+l {
			return nil, 0, fmt.Errorf("%w: truncated str16", ErrProtocol)
		}
		return string(b[3 : 3+l]), 3 + l, nil
	case 0xdb: // str32
		if len(b) < 5 {
			return nil, 0, fmt.Errorf("%w: truncated str32 header", ErrProtocol)
		}
		l := int(binary.BigEndian.Uint32(b[1:5]))
		if len(b) < 5+l {
			return nil, 0, fmt.Errorf("%w: truncated str32", ErrProtocol)
		}
		return string(b[5 : 5+l]), 5 + l, nil
	default:
		return nil, 0, fmt.Errorf("%w: unsupported value tag 0x%02x in method/error position", ErrProtocol, c)
	}
}

// decodeMethodAt parses a Method (int or string) at b and returns how
// many bytes it occupied.
func decodeMethodAt(b []byte) (Method, int, error) {
	v, n, err := decodeValue(b)
	if err != nil {
		return Method{}, 0, fmt.Errorf("decoding method: %w", err)
	}
	switch t := v.(type) {
	case uint64:
		return IntMethod(uint32(t)), n, nil
	case int64:
		if t < 0 {
			return Method{}, 0, fmt.Errorf("%w: negative method tag %d", ErrProtocol, t)
		}
		return IntMethod(uint32(t)), n, nil
	case string:
		return StrMethod(t), n, nil
	default:
		return Method{}, 0, fmt.Errorf("%w: method must be an integer or string, got %T", ErrProtocol, v)
	}
}

// decodeErrorAt parses the Response error field (nil or string) at b.
func decodeErrorAt(b []byte) (errMsg string, isErr bool, n int, err error) {
	v, n, err := decodeValue(b)
	if err != nil {
		return "", false, 0, fmt.Errorf("decoding response error field: %w", err)
	}
	switch t := v.(type) {
	case nil:
		return "", false, n, nil
	case string:
		return t, true, n, nil
	default:
		return "", false, 0, fmt.Errorf("%w: response error field must be nil or string, got %T", ErrProtocol, v)
	}
}
