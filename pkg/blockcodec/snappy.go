package blockcodec

import "github.com/golang/snappy"

type snappyCodec struct{}

func (snappyCodec) ID() ID { return Snappy }

func (snappyCodec) Encode(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decode(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}
