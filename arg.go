package wirerpc

import "github.com/vmihailenco/msgpack/v5"

// Arg is the handler-side view of an inbound Request or Notify. It is
// non-owning: method, the id (0 for notifications), and the undecoded
// payload bytes, valid only for the duration of the Service.Handle call
// that received it.
type Arg struct {
	Method Method
	ID     uint32
	Bytes  []byte
}

// Decode unmarshals the argument payload into v.
func (a Arg) Decode(v any) error {
	return msgpack.Unmarshal(a.Bytes, v)
}
