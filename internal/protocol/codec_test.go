package protocol_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/StudyChat/internal/protocol"
)

func TestCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	encoder := protocol.NewEncoder(&buf)
	decoder := protocol.NewDecoder(&buf, 0)

	sent := protocol.Envelope{
		ID:        "env-1",
		Type:      protocol.EventSendMessage,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Payload: protocol.SendMessageRequest{
			RoomID: "room1",
			Body:   "hello",
		},
	}
	require.NoError(t, encoder.Encode(context.Background(), sent))

	got, err := decoder.Decode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Type, got.Type)

	payload, err := protocol.DecodePayload[protocol.SendMessageRequest](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "room1", payload.RoomID)
	assert.Equal(t, "hello", payload.Body)
}

func TestCodecMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	encoder := protocol.NewEncoder(&buf)
	decoder := protocol.NewDecoder(&buf, 0)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, encoder.Encode(context.Background(), protocol.Envelope{ID: id, Type: protocol.EventTyping}))
	}
	for _, id := range []string{"a", "b", "c"} {
		got, err := decoder.Decode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	}
	_, err := decoder.Decode(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	encoder := protocol.NewEncoder(&buf)
	env := protocol.Envelope{
		ID:      "big",
		Type:    protocol.EventSendMessage,
		Payload: protocol.SendMessageRequest{Body: string(bytes.Repeat([]byte{'x'}, 256))},
	}
	require.NoError(t, encoder.Encode(context.Background(), env))

	decoder := protocol.NewDecoder(&buf, 64)
	_, err := decoder.Decode(context.Background())
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
}

func TestDecodePayloadEmpty(t *testing.T) {
	_, err := protocol.DecodePayload[protocol.SendMessageRequest](nil)
	assert.Error(t, err)
}

func TestDecodeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decoder := protocol.NewDecoder(bytes.NewReader(nil), 0)
	_, err := decoder.Decode(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
