package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

func decodeFrame(t *testing.T, frame Frame) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(frame, &m))
	return m
}

func TestEncodeFlattensPayloadWithTypeAndTimestamp(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	frame, err := encodeAt(TypingIndicator{
		ChatID:   "7",
		UserID:   "alice",
		IsTyping: true,
	}, now)
	require.NoError(t, err)

	m := decodeFrame(t, frame)
	assert.Equal(t, "typing_indicator", m["type"])
	assert.Equal(t, "7", m["chat_id"])
	assert.Equal(t, "alice", m["user_id"])
	assert.Equal(t, true, m["is_typing"])
	assert.EqualValues(t, now.UnixMilli(), m["server_timestamp"])
}

func TestEncodeStampsCurrentTime(t *testing.T) {
	before := time.Now().UnixMilli()
	frame, err := Encode(Pong{})
	require.NoError(t, err)
	after := time.Now().UnixMilli()

	m := decodeFrame(t, frame)
	ts := int64(m["server_timestamp"].(float64))
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	frame, err := Encode(PresenceUpdate{
		UserID: "alice",
		Status: domain.StatusOnline,
	})
	require.NoError(t, err)

	m := decodeFrame(t, frame)
	assert.Equal(t, "presence_update", m["type"])
	assert.NotContains(t, m, "custom_status")
}

func TestEncodeCallEnded(t *testing.T) {
	frame, err := Encode(CallEnded{
		CallID:          "c1",
		ChatID:          "7",
		Status:          domain.CallEnded,
		Reason:          "last participant left",
		DurationSeconds: 42,
	})
	require.NoError(t, err)

	m := decodeFrame(t, frame)
	assert.Equal(t, "call_ended", m["type"])
	assert.Equal(t, "ended", m["status"])
	assert.EqualValues(t, 42, m["duration_seconds"])
}
