package codec

import jsoniter "github.com/json-iterator/go"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec encodes values as single-line JSON documents and decodes every unit
// into a T.
type JSONCodec[T any] struct {
	LineFramer
}

// JSON returns a line-framed JSON codec decoding into T. Use JSON[any] for
// untyped payloads; numbers then decode as float64.
func JSON[T any]() Codec {
	return &JSONCodec[T]{}
}

// Encode implements Codec.
func (c *JSONCodec[T]) Encode(v any) ([]byte, error) {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, encodeError(err)
	}

	return data, nil
}

// Decode implements Codec.
func (c *JSONCodec[T]) Decode(data []byte) (any, error) {
	var out T
	if err := jsonAPI.Unmarshal(data, &out); err != nil {
		return nil, decodeError(data, err)
	}

	return out, nil
}
