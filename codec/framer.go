package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// DefaultMaxFrameSize caps a single unit when a framer does not set its own limit.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// LineFramer delimits units with '\n'. A trailing '\r' is stripped, and a final
// unterminated line before end of stream is returned as a unit.
type LineFramer struct {
	// MaxSize is the longest accepted line in bytes; 0 means DefaultMaxFrameSize.
	MaxSize int
}

// ReadFrame implements Framer.
func (f LineFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	limit := f.MaxSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}

	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > limit+1 {
			return nil, ErrFrameTooLarge
		}

		if err == nil {
			break
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}

		return nil, err
	}

	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'}), nil
}

// WriteFrame implements Framer. Payloads that contain '\n' or end in '\r' are
// rejected since ReadFrame would not return them unchanged.
func (f LineFramer) WriteFrame(w io.Writer, payload []byte) error {
	if !lineSafe(payload) {
		return encodeError(ErrDelimiterInPayload)
	}

	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// lineSafe reports whether payload survives a LineFramer write and read.
func lineSafe(payload []byte) bool {
	return bytes.IndexByte(payload, '\n') < 0 && !bytes.HasSuffix(payload, []byte{'\r'})
}

// LengthPrefixFramer prefixes each unit with its length as a 4-byte
// little-endian integer. Zero-length units are skipped on read.
type LengthPrefixFramer struct {
	// MaxSize is the largest accepted unit in bytes; 0 means DefaultMaxFrameSize.
	MaxSize uint32
}

func (f LengthPrefixFramer) limit() uint32 {
	if f.MaxSize == 0 {
		return DefaultMaxFrameSize
	}

	return f.MaxSize
}

// ReadFrame implements Framer.
func (f LengthPrefixFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	var header [4]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, err
		}

		size := binary.LittleEndian.Uint32(header[:])
		if size == 0 {
			continue
		}

		if size > f.limit() {
			return nil, ErrFrameTooLarge
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}

			return nil, err
		}

		return payload, nil
	}
}

// WriteFrame implements Framer.
func (f LengthPrefixFramer) WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(f.limit()) {
		return encodeError(ErrFrameTooLarge)
	}

	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}
