package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Message is implemented by every recovery RPC request/response type in
// pkg/rsrpc. Rather than generating message types with protoc (the
// payloads are a bespoke vi32/vi64/vstr format, not a protobuf schema),
// each type encodes and decodes itself, and this codec plugs that
// straight into grpc's transport -- connection pooling, HTTP/2 framing
// and streaming all come from google.golang.org/grpc unchanged.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Name is registered as grpc's default codec name ("proto"), so every
// client and server in this module uses it without extra dial/serve
// options, the same way a protobuf codec would be picked up implicitly.
const Name = "proto"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: %T does not implement wire.Message", v)
	}
	return m.Marshal()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: %T does not implement wire.Message", v)
	}
	return m.Unmarshal(data)
}

func (codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(codec{})
}
