package blockcodec

import "github.com/klauspost/compress/zstd"

// zstdCodec offers a higher compression ratio than Snappy for fragments
// that are replayed rarely (most of a failed server's log is write-once,
// read-during-recovery), at the cost of slower compression.
type zstdCodec struct{}

func (zstdCodec) ID() ID { return Zstd }

func (zstdCodec) Encode(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func (zstdCodec) Decode(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, nil)
}
