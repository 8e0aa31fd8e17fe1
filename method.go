package wirerpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MethodKind distinguishes the two wire representations a Method can
// take: a compact numeric tag or a human-readable name. Both are
// accepted from either peer on the same connection (spec §3).
type MethodKind uint8

const (
	MethodInt MethodKind = iota
	MethodStr
)

// Method identifies the remote procedure a Request or Notify targets.
// It is a closed two-case union rather than an interface so it can be
// compared and copied for free.
type Method struct {
	Kind MethodKind
	Int  uint32
	Str  string
}

// IntMethod builds a numeric Method, e.g. for compact wire protocols that
// prefer tags over names.
func IntMethod(i uint32) Method { return Method{Kind: MethodInt, Int: i} }

// StrMethod builds a named Method.
func StrMethod(s string) Method { return Method{Kind: MethodStr, Str: s} }

// Is reports whether m is the integer method i.
func (m Method) Is(i uint32) bool { return m.Kind == MethodInt && m.Int == i }

// IsStr reports whether m is the named method s.
func (m Method) IsStr(s string) bool { return m.Kind == MethodStr && m.Str == s }

func (m Method) String() string {
	switch m.Kind {
	case MethodInt:
		return fmt.Sprintf("#%d", m.Int)
	case MethodStr:
		return m.Str
	default:
		return "<invalid method>"
	}
}

func encodeMethod(enc *msgpack.Encoder, m Method) error {
	switch m.Kind {
	case MethodInt:
		return enc.EncodeUint(uint64(m.Int))
	case MethodStr:
		return enc.EncodeString(m.Str)
	default:
		return fmt.Errorf("%w: invalid method kind %d", ErrProtocol, m.Kind)
	}
}
