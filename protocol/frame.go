// Package protocol implements the length-prefixed framing protocol shared
// by every server and client in the system: a 4-byte unsigned big-endian
// length header followed by a UTF-8 JSON payload of that many bytes.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"lobby-lab/errors"
)

// LengthLimit caps the payload size of a single frame. A frame declaring
// more than this is never read; the connection is closed instead of being
// silently truncated.
const LengthLimit = 65536

const headerSize = 4

// Encode marshals v and prepends the 4-byte length header.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	if len(payload) > LengthLimit {
		return nil, fmt.Errorf("%w: %d > %d", errors.ErrFrameTooLarge, len(payload), LengthLimit)
	}
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// Write frames v onto w. The header and payload go out in a single Write
// call so concurrent writers only need to serialize at the io.Writer.
func Write(w io.Writer, v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Read blocks until a full frame is available and returns its raw payload.
// A declared length of zero or above LengthLimit is unrecoverable because
// the stream can no longer be resynchronized.
func Read(r io.Reader) (json.RawMessage, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length == 0 || length > LengthLimit {
		return nil, fmt.Errorf("%w: declared %d bytes", errors.ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: %d bytes", errors.ErrMalformedPayload, length)
	}
	return payload, nil
}

// Decode reads one frame from r and unmarshals it into v.
func Decode(r io.Reader, v any) error {
	payload, err := Read(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	return nil
}
