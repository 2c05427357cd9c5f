package ws

import (
	"encoding/json"
	"errors"
	"time"

	"studyhubgo/internal/chat"
)

// Envelope wraps every WS frame in both directions.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "join_room"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON value
}

type outFrame struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// Inbound events.
const (
	EventJoinRoom            = "join_room"
	EventLeaveRoom           = "leave_room"
	EventGetRoomParticipants = "get_room_participants"
	EventSendMessage         = "send_message"
	EventGetMessages         = "get_messages"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventJoinCall            = "join-call"
	EventSignal              = "signal" // also outbound
)

// Outbound events.
const (
	EventOnlineUsersUpdated    = "online_users_updated"
	EventRoomJoined            = "room_joined"
	EventUserJoinedRoom        = "user_joined_room"
	EventRoomLeft              = "room_left"
	EventUserLeftRoom          = "user_left_room"
	EventRoomParticipantUpdate = "room_participant_update"
	EventRoomParticipants      = "room_participants"
	EventNewMessage            = "new_message"
	EventMessagesHistory       = "messages_history"
	EventUserTyping            = "user_typing"
	EventUserJoinedCall        = "user-joined"
	EventUserLeftCall          = "user-left"
	EventError                 = "error"
)

// ──────────────────────────── Request DTOs ─────────────────────────

// RoomRequest is the body for join_room, leave_room, get_room_participants
// and the typing events.
type RoomRequest struct {
	RoomID string `json:"roomId" validate:"required"`
}

type SendMessageRequest struct {
	RoomID      string `json:"roomId"                validate:"required"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty" validate:"omitempty,max=32"`
}

type HistoryRequest struct {
	RoomID string `json:"roomId"           validate:"required"`
	Limit  int    `json:"limit,omitempty"  validate:"min=0,max=200"`
	Offset int    `json:"offset,omitempty" validate:"min=0"`
}

// SignalRequest carries an opaque offer, answer or ICE candidate for one peer.
type SignalRequest struct {
	To      string          `json:"toConnectionId" validate:"required"`
	Message json.RawMessage `json:"message"`
}

// ──────────────────────────── Response bodies ─────────────────────────

type Participant struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Avatar       string `json:"avatar,omitempty"`
}

type RoomJoinedBody struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	JoinedAt     time.Time     `json:"joinedAt"`
}

type UserJoinedRoomBody struct {
	RoomID string `json:"roomId"`
	Participant
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomLeftBody struct {
	RoomID string    `json:"roomId"`
	LeftAt time.Time `json:"leftAt"`
}

type UserLeftRoomBody struct {
	RoomID       string    `json:"roomId"`
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	LeftAt       time.Time `json:"leftAt"`
}

type ParticipantCountBody struct {
	RoomID           string `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
}

type RoomParticipantsBody struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	Count        int           `json:"count"`
}

type HistoryBody struct {
	RoomID   string         `json:"roomId"`
	Messages []chat.Message `json:"messages"`
	HasMore  bool           `json:"hasMore"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

type TypingBody struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

type CallJoinedBody struct {
	ConnectionID string   `json:"connectionId"`
	Members      []string `json:"members"`
}

type CallLeftBody struct {
	ConnectionID string `json:"connectionId"`
}

type SignalBody struct {
	From    string          `json:"from"`
	Message json.RawMessage `json:"message"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Message string `json:"message"`
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errors.New("missing event name")
	}
	return env, nil
}

func encodeEvent(event string, body any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Body: body})
}
