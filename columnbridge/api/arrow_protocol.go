package api

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed frame payload (50MB).
const MaxMessageSize = 50 * 1024 * 1024

// ErrMessageTooLarge is returned when a frame exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")

// ReadMessage reads one frame from r.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes one frame to w.
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 || len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	// header and body in one write so frames never interleave
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) // #nosec G115 - bounds checked above
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one frame.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return WriteMessage(w, data)
}

// ReadJSON reads one frame and unmarshals it into v.
func ReadJSON(r io.Reader, v any) error {
	data, err := ReadMessage(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
