// Package codec converts application values to transmissible byte sequences and
// back, and defines how encoded units are delimited on a byte stream. The
// connection engines treat every codec as opaque: they ask the Framer for the
// next unit and hand it to Decode without inspecting it.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Framer delimits encoded units on a byte stream.
type Framer interface {
	// ReadFrame reads the next complete unit from r. It returns io.EOF when the
	// stream ends cleanly on a unit boundary.
	//
	// Parameters:
	//   - r: The buffered stream to read from
	//
	// Returns:
	//   - The payload of the unit without any framing bytes
	//   - An error if the stream ended or the unit could not be delimited
	ReadFrame(r *bufio.Reader) ([]byte, error)

	// WriteFrame writes payload to w wrapped in the framing convention.
	//
	// Parameters:
	//   - w: The destination stream
	//   - payload: The encoded unit
	//
	// Returns:
	//   - An error if the payload cannot be framed or the write fails
	WriteFrame(w io.Writer, payload []byte) error
}

// Codec converts between application values and encoded units. For every value
// a codec supports, Decode(Encode(v)) must reproduce a value equal to v.
type Codec interface {
	Framer

	// Encode converts v into its encoded form.
	//
	// Parameters:
	//   - v: The application value
	//
	// Returns:
	//   - The encoded bytes
	//   - A *CodecError if v is not supported
	Encode(v any) ([]byte, error)

	// Decode converts an encoded unit back into an application value.
	//
	// Parameters:
	//   - data: One unit as returned by ReadFrame
	//
	// Returns:
	//   - The decoded value
	//   - A *CodecError carrying data if it is malformed
	Decode(data []byte) (any, error)
}

var byName = map[string]func() Codec{
	"bytes": Bytes,
	"json":  JSON[any],
	"cbor":  CBOR[any],
}

// ByName returns a new instance of the built-in codec registered under name.
// The json and cbor codecs returned here decode into untyped values.
//
// Parameters:
//   - name: One of the names returned by Names
//
// Returns:
//   - The codec
//   - An error if no codec is registered under name
func ByName(name string) (Codec, error) {
	factory, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}

	return factory(), nil
}

// Names lists the built-in codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}
