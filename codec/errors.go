package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned when a codec cannot encode the given value type.
	ErrUnsupportedType = errors.New("codec: unsupported value type")

	// ErrDelimiterInPayload is returned for line-framed payloads containing '\n'
	// or ending in '\r', which would not survive a read on the other side.
	ErrDelimiterInPayload = errors.New("codec: payload contains frame delimiter")

	// ErrFrameTooLarge is returned when a unit exceeds the framer's size limit.
	ErrFrameTooLarge = errors.New("codec: frame too large")
)

// CodecError reports a value that could not be encoded or bytes that could not
// be decoded. Data holds the original bytes for decode failures.
type CodecError struct {
	Op   string
	Data []byte
	Err  error
}

// Error implements error.
func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s failed (%d bytes): %v", e.Op, len(e.Data), e.Err)
}

// Unwrap returns the underlying cause.
func (e *CodecError) Unwrap() error {
	return e.Err
}

func decodeError(data []byte, err error) error {
	return &CodecError{Op: "decode", Data: append([]byte(nil), data...), Err: err}
}

func encodeError(err error) error {
	return &CodecError{Op: "encode", Err: err}
}
