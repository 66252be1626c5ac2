package cache

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns projections into the bytes a Store holds.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgpackCodec is the default codec.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// JSONCodec stores values as JSON, which keeps redis entries readable.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// DefaultCodec returns the codec used when none is configured.
func DefaultCodec() Codec {
	return MsgpackCodec{}
}
