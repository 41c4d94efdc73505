package codec

// BytesCodec passes byte sequences through unchanged, one line per unit. It is
// the default codec. Encode accepts []byte and string and always yields a copy;
// values containing '\n' or ending in '\r' are rejected. Decode always yields
// []byte.
type BytesCodec struct {
	LineFramer
}

// Bytes returns the default line-framed byte-sequence codec.
func Bytes() Codec {
	return &BytesCodec{}
}

// Encode implements Codec.
func (c *BytesCodec) Encode(v any) ([]byte, error) {
	var out []byte
	switch value := v.(type) {
	case []byte:
		out = append([]byte{}, value...)
	case string:
		out = []byte(value)
	default:
		return nil, encodeError(ErrUnsupportedType)
	}

	if !lineSafe(out) {
		return nil, encodeError(ErrDelimiterInPayload)
	}

	return out, nil
}

// Decode implements Codec. It never fails.
func (c *BytesCodec) Decode(data []byte) (any, error) {
	return append([]byte{}, data...), nil
}
