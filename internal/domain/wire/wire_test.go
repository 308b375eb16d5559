package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampMillisecondUTC(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)

	at := time.Date(2025, 3, 7, 15, 4, 5, 123456789, loc)
	assert.Equal(t, "2025-03-07T13:04:05.123Z", Stamp(at))

	utc := time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2025-03-07T15:04:05.000Z", Stamp(utc))
}

func TestEnvelopeTypingDefault(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"typing","recipient_id":"x"}`), &env))
	assert.True(t, env.Typing())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"typing","is_typing":false}`), &env))
	assert.False(t, env.Typing())
}

func TestAckShapes(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	direct, err := Encode(NewAck("m1", true, false, at))
	require.NoError(t, err)
	assert.NotContains(t, string(direct), "delivered_count")

	group, err := Encode(NewGroupAck("m2", 0, at))
	require.NoError(t, err)
	assert.Contains(t, string(group), `"delivered_count":0`)
	assert.Contains(t, string(group), `"delivered":false`)
}
