package codec

import "github.com/fxamacker/cbor/v2"

// CBORCodec encodes values as CBOR, one length-prefixed unit per value, and
// decodes every unit into a T.
type CBORCodec[T any] struct {
	LengthPrefixFramer
}

// CBOR returns a length-prefixed CBOR codec decoding into T.
func CBOR[T any]() Codec {
	return &CBORCodec[T]{}
}

// Encode implements Codec.
func (c *CBORCodec[T]) Encode(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, encodeError(err)
	}

	return data, nil
}

// Decode implements Codec.
func (c *CBORCodec[T]) Decode(data []byte) (any, error) {
	var out T
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, decodeError(data, err)
	}

	return out, nil
}
