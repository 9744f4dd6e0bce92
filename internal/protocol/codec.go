package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const frameHeaderBytes = 4

// ErrFrameTooLarge is returned when an inbound frame exceeds the decoder's
// configured limit.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Encoder writes envelopes with a length-prefixed JSON frame.
type Encoder struct {
	writer io.Writer
}

// Decoder reads envelopes with a length-prefixed JSON frame.
type Decoder struct {
	reader   *bufio.Reader
	maxFrame uint32
}

// NewEncoder creates a new encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// NewDecoder creates a new decoder for the given reader. maxFrame bounds the
// accepted frame size; zero or negative means no limit.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	var limit uint32
	if maxFrame > 0 {
		limit = uint32(maxFrame)
	}
	return &Decoder{reader: bufio.NewReader(r), maxFrame: limit}
}

// Encode writes the envelope to the underlying writer.
func (e *Encoder) Encode(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	if _, err := e.writer.Write(header); err != nil {
		return err
	}

	_, err = e.writer.Write(data)
	return err
}

// Decode reads the next envelope from the stream.
func (d *Decoder) Decode(ctx context.Context) (Envelope, error) {
	var env Envelope

	header := make([]byte, frameHeaderBytes)
	if err := d.readFull(ctx, header); err != nil {
		return env, err
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return env, errors.New("frame length zero")
	}
	if d.maxFrame > 0 && length > d.maxFrame {
		return env, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if err := d.readFull(ctx, payload); err != nil {
		return env, err
	}

	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}

	return env, nil
}

func (d *Decoder) readFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.reader.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

// DecodePayload converts a freshly unmarshalled envelope payload (a generic
// JSON value) into the typed struct for its event.
func DecodePayload[T any](payload interface{}) (T, error) {
	var out T
	if payload == nil {
		return out, errors.New("payload empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
