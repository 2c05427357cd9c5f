package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhubgo/internal/membership"
	"studyhubgo/internal/presence"
)

func TestJoinCall_EveryoneGetsFullMemberList(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	b, bcc := h.connect("B", "bob")
	c, _ := h.connect("C", "carol")

	h.send(acc, EventJoinCall, "call-42")

	first := a.named(EventUserJoinedCall)
	require.Len(t, first, 1)
	assert.Equal(t, CallJoinedBody{ConnectionID: "A", Members: []string{"A"}}, body[CallJoinedBody](t, first[0]))

	h.send(bcc, EventJoinCall, "call-42")

	want := CallJoinedBody{ConnectionID: "B", Members: []string{"A", "B"}}
	aGot := a.named(EventUserJoinedCall)
	require.Len(t, aGot, 2)
	assert.Equal(t, want, body[CallJoinedBody](t, aGot[1]))

	bGot := b.named(EventUserJoinedCall)
	require.Len(t, bGot, 1)
	assert.Equal(t, want, body[CallJoinedBody](t, bGot[0]))

	assert.Empty(t, c.named(EventUserJoinedCall))

	// calls and rooms never share members
	assert.Zero(t, h.srv.groups.Count(membership.Room("call-42")))
}

func TestJoinCall_BlankPath(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")

	h.send(acc, EventJoinCall, "  ")
	assert.Equal(t, "callPath is required", lastError(t, a))

	h.send(acc, EventJoinCall, map[string]string{"callPath": "x"})
	assert.Equal(t, "invalid payload for join-call", lastError(t, a))
	assert.Empty(t, a.named(EventUserJoinedCall))
}

func TestSignal_RelaysVerbatim(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	b, _ := h.connect("B", "bob")
	a.reset()
	b.reset()

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)
	h.send(acc, EventSignal, SignalRequest{To: "B", Message: payload})

	got := b.named(EventSignal)
	require.Len(t, got, 1)
	sb := body[SignalBody](t, got[0])
	assert.Equal(t, "A", sb.From)
	assert.JSONEq(t, string(payload), string(sb.Message))
	assert.Empty(t, a.events())
}

func TestSignal_UnknownTargetIsSilent(t *testing.T) {
	h := newHarness(t, presence.LastWriteWins, nil, Options{})
	a, acc := h.connect("A", "alice")
	a.reset()

	h.send(acc, EventSignal, SignalRequest{To: "ghost", Message: json.RawMessage(`{"candidate":"x"}`)})
	assert.Empty(t, a.events())

	h.send(acc, EventSignal, map[string]string{"message": "x"})
	assert.Equal(t, "toConnectionId is required", lastError(t, a))
}
