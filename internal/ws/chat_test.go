package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhubgo/internal/chat"
	"studyhubgo/internal/presence"
)

type stubStore struct {
	msgs []chat.Message
	err  error

	gotRoom          string
	gotLimit, gotOff int
}

func (s *stubStore) ListMessages(_ context.Context, roomID string, limit, offset int) ([]chat.Message, error) {
	s.gotRoom, s.gotLimit, s.gotOff = roomID, limit, offset
	return s.msgs, s.err
}

func TestSendMessage_ReachesWholeRoomOnly(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	b, bcc := h.connect("B", "bob")
	c, _ := h.connect("C", "carol")
	h.send(acc, EventJoinRoom, RoomRequest{RoomID: "R1"})
	h.send(bcc, EventJoinRoom, RoomRequest{RoomID: "R1"})

	h.send(acc, EventSendMessage, SendMessageRequest{RoomID: "R1", Message: "hello"})

	for _, conn := range []*fakeConn{a, b} {
		got := conn.named(EventNewMessage)
		require.Len(t, got, 1, conn.id)
		msg := body[chat.Message](t, got[0])
		assert.Equal(t, "hello", msg.Message)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "alice Doe", msg.SenderName)
		assert.Equal(t, chat.TypeText, msg.MessageType)
		assert.Equal(t, "R1", msg.RoomID)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Edited)
	}
	assert.Empty(t, c.named(EventNewMessage))

	// same frame for everyone
	assert.Equal(t,
		body[chat.Message](t, a.named(EventNewMessage)[0]).ID,
		body[chat.Message](t, b.named(EventNewMessage)[0]).ID,
	)
}

func TestSendMessage_EmptyBodyIsRejected(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	b, bcc := h.connect("B", "bob")
	h.send(acc, EventJoinRoom, RoomRequest{RoomID: "R1"})
	h.send(bcc, EventJoinRoom, RoomRequest{RoomID: "R1"})

	for _, text := range []string{"", "   ", "\n\t"} {
		h.send(acc, EventSendMessage, SendMessageRequest{RoomID: "R1", Message: text})
		assert.Equal(t, "Message cannot be empty", lastError(t, a))
	}
	assert.Empty(t, a.named(EventNewMessage))
	assert.Empty(t, b.named(EventNewMessage))
	assert.Empty(t, b.named(EventError))
}

func TestSendMessage_CustomType(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	h.send(acc, EventJoinRoom, RoomRequest{RoomID: "R1"})

	h.send(acc, EventSendMessage, SendMessageRequest{RoomID: "R1", Message: "x.png", MessageType: "image"})

	got := a.named(EventNewMessage)
	require.Len(t, got, 1)
	assert.Equal(t, "image", body[chat.Message](t, got[0]).MessageType)
}

func TestTyping_OthersOnlyInOrder(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	b, bcc := h.connect("B", "bob")
	h.send(acc, EventJoinRoom, RoomRequest{RoomID: "R1"})
	h.send(bcc, EventJoinRoom, RoomRequest{RoomID: "R1"})

	h.send(acc, EventTypingStart, RoomRequest{RoomID: "R1"})
	h.send(acc, EventTypingStop, RoomRequest{RoomID: "R1"})

	assert.Empty(t, a.named(EventUserTyping))

	got := b.named(EventUserTyping)
	require.Len(t, got, 2)
	start := body[TypingBody](t, got[0])
	stop := body[TypingBody](t, got[1])
	assert.True(t, start.IsTyping)
	assert.False(t, stop.IsTyping)
	assert.Equal(t, TypingBody{RoomID: "R1", UserID: "alice", DisplayName: "alice Doe", IsTyping: true}, start)
}

func TestGetMessages(t *testing.T) {
	t.Run("default limit and hasMore", func(t *testing.T) {
		store := &stubStore{msgs: make([]chat.Message, chat.DefaultHistoryLimit)}
		h := newHarness(t, presence.LastWriteWins, store, Options{})
		a, acc := h.connect("A", "alice")

		h.send(acc, EventGetMessages, HistoryRequest{RoomID: "R1"})

		assert.Equal(t, "R1", store.gotRoom)
		assert.Equal(t, chat.DefaultHistoryLimit, store.gotLimit)
		assert.Zero(t, store.gotOff)

		got := a.named(EventMessagesHistory)
		require.Len(t, got, 1)
		hb := body[HistoryBody](t, got[0])
		assert.True(t, hb.HasMore)
		assert.Len(t, hb.Messages, chat.DefaultHistoryLimit)
	})

	t.Run("short page", func(t *testing.T) {
		store := &stubStore{msgs: []chat.Message{{ID: "m1", Message: "hi"}}}
		h := newHarness(t, presence.LastWriteWins, store, Options{})
		a, acc := h.connect("A", "alice")

		h.send(acc, EventGetMessages, HistoryRequest{RoomID: "R1", Limit: 10, Offset: 20})

		assert.Equal(t, 10, store.gotLimit)
		assert.Equal(t, 20, store.gotOff)
		hb := body[HistoryBody](t, a.named(EventMessagesHistory)[0])
		assert.False(t, hb.HasMore)
		assert.Equal(t, 20, hb.Offset)
		require.Len(t, hb.Messages, 1)
		assert.Equal(t, "m1", hb.Messages[0].ID)
	})

	t.Run("nil store page is empty list", func(t *testing.T) {
		h := newHarness(t, presence.LastWriteWins, nil, Options{})
		a, acc := h.connect("A", "alice")

		h.send(acc, EventGetMessages, HistoryRequest{RoomID: "R1"})

		got := a.named(EventMessagesHistory)
		require.Len(t, got, 1)
		assert.JSONEq(t, `{"roomId":"R1","messages":[],"hasMore":false,"limit":50,"offset":0}`, string(got[0].Body))
	})

	t.Run("store failure is generic", func(t *testing.T) {
		store := &stubStore{err: errors.New("connection refused")}
		h := newHarness(t, presence.LastWriteWins, store, Options{})
		a, acc := h.connect("A", "alice")

		h.send(acc, EventGetMessages, HistoryRequest{RoomID: "R1"})

		assert.Equal(t, "Failed to load messages", lastError(t, a))
		assert.Empty(t, a.named(EventMessagesHistory))
	})

	t.Run("limit over max", func(t *testing.T) {
		h := newHarness(t, presence.LastWriteWins, &stubStore{}, Options{})
		a, acc := h.connect("A", "alice")

		h.send(acc, EventGetMessages, HistoryRequest{RoomID: "R1", Limit: 500})

		assert.Equal(t, "limit must be at most 200", lastError(t, a))
	})
}
