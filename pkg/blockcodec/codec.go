// Package blockcodec implements the pluggable block-compression codecs
// fragment payloads may be wrapped in. Each compressed block is prefixed
// by a single codec-ID byte naming the codec that produced it.
package blockcodec

import "fmt"

// ID identifies which codec compressed a block.
type ID byte

const (
	None ID = iota
	Snappy
	Zstd
)

func (id ID) String() string {
	switch id {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(id))
	}
}

// Codec compresses and decompresses fragment blocks.
type Codec interface {
	ID() ID
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

var registry = map[ID]Codec{
	None:   noneCodec{},
	Snappy: snappyCodec{},
	Zstd:   zstdCodec{},
}

// EncodeBlock compresses src with the named codec and returns the block
// with its one-byte codec header prepended.
func EncodeBlock(id ID, src []byte) ([]byte, error) {
	c, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("blockcodec: unknown codec id %d", id)
	}
	enc, err := c.Encode(src)
	if err != nil {
		return nil, fmt.Errorf("blockcodec: encode with %s: %w", id, err)
	}
	out := make([]byte, 1+len(enc))
	out[0] = byte(id)
	copy(out[1:], enc)
	return out, nil
}

// DecodeBlock reads the codec header off block and decompresses the rest.
func DecodeBlock(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, fmt.Errorf("blockcodec: empty block")
	}
	id := ID(block[0])
	c, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("blockcodec: unknown codec id %d", id)
	}
	out, err := c.Decode(block[1:])
	if err != nil {
		return nil, fmt.Errorf("blockcodec: decode with %s: %w", id, err)
	}
	return out, nil
}

type noneCodec struct{}

func (noneCodec) ID() ID                         { return None }
func (noneCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (noneCodec) Decode(src []byte) ([]byte, error) { return src, nil }
