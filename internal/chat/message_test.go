package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhubgo/internal/auth"
)

var ada = auth.Identity{UserID: "u-1", DisplayName: "Ada Lovelace"}

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	m, err := NewMessage("R1", ada, "hello", "", now)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "R1", m.RoomID)
	assert.Equal(t, "u-1", m.SenderID)
	assert.Equal(t, "Ada Lovelace", m.SenderName)
	assert.Equal(t, "hello", m.Message)
	assert.Equal(t, TypeText, m.MessageType)
	assert.Equal(t, now.UTC(), m.Timestamp)
	assert.False(t, m.Edited)
}

func TestNewMessage_CustomType(t *testing.T) {
	m, err := NewMessage("R1", ada, "https://example.com/f.pdf", "file", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "file", m.MessageType)
}

func TestNewMessage_RejectsBlankBodies(t *testing.T) {
	for _, body := range []string{"", " ", "\n\t  "} {
		_, err := NewMessage("R1", ada, body, TypeText, time.Now())
		assert.ErrorIs(t, err, ErrEmptyMessage, "body %q", body)
	}
}

func TestNewMessage_IDsAreUnique(t *testing.T) {
	now := time.Now()
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		m, err := NewMessage("R1", ada, "spam", TypeText, now)
		require.NoError(t, err)
		_, dup := seen[m.ID]
		require.False(t, dup)
		seen[m.ID] = struct{}{}
	}
}

func TestNopStore(t *testing.T) {
	msgs, err := NopStore{}.ListMessages(context.Background(), "R1", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NotNil(t, msgs)
}
