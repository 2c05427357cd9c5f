// Package chat defines the ephemeral chat message relayed to study rooms and
// the contract of the store that serves past messages.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhubgo/internal/auth"
)

const (
	TypeText = "text"

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

var ErrEmptyMessage = errors.New("message cannot be empty")

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
	Edited      bool      `json:"edited"`
}

// NewMessage validates body and stamps a fresh random id. The body is kept
// as sent; only the emptiness check trims it.
func NewMessage(roomID string, sender auth.Identity, body, messageType string, now time.Time) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, ErrEmptyMessage
	}
	if messageType = strings.TrimSpace(messageType); messageType == "" {
		messageType = TypeText
	}
	return Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		Message:     body,
		MessageType: messageType,
		Timestamp:   now.UTC(),
	}, nil
}

// HistoryStore serves pages of a room's past messages, oldest first.
type HistoryStore interface {
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]Message, error)
}

// NopStore is used when no message store is configured.
type NopStore struct{}

func (NopStore) ListMessages(context.Context, string, int, int) ([]Message, error) {
	return []Message{}, nil
}
