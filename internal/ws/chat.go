package ws

import (
	"context"
	"errors"
	"fmt"

	"studyhubgo/internal/chat"
	"studyhubgo/internal/membership"
)

func (s *WsServer) registerChatHandlers() {
	Register(s.router, EventSendMessage, "Failed to send message", s.sendMessage)
	Register(s.router, EventGetMessages, "Failed to load messages", s.getMessages)
	Register(s.router, EventTypingStart, "Failed to update typing status", s.typing(true))
	Register(s.router, EventTypingStop, "Failed to update typing status", s.typing(false))
}

// sendMessage echoes the message to every room member, sender included.
func (s *WsServer) sendMessage(_ context.Context, cc *ConnContext, req SendMessageRequest) error {
	msg, err := chat.NewMessage(req.RoomID, cc.Identity, req.Message, req.MessageType, s.now())
	if errors.Is(err, chat.ErrEmptyMessage) {
		return invalid("Message cannot be empty")
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitMany(s.groups.Members(membership.Room(req.RoomID)), EventNewMessage, msg, "")
	return nil
}

func (s *WsServer) getMessages(ctx context.Context, cc *ConnContext, req HistoryRequest) error {
	limit := req.Limit
	if limit == 0 {
		limit = chat.DefaultHistoryLimit
	}

	msgs, err := s.history.ListMessages(ctx, req.RoomID, limit, req.Offset)
	if err != nil {
		return fmt.Errorf("list messages for %s: %w", req.RoomID, err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	s.emit(cc.ConnID, EventMessagesHistory, HistoryBody{
		RoomID:   req.RoomID,
		Messages: msgs,
		HasMore:  len(msgs) == limit,
		Limit:    limit,
		Offset:   req.Offset,
	})
	return nil
}

// typing relays the indicator to the other members only.
func (s *WsServer) typing(on bool) func(context.Context, *ConnContext, RoomRequest) error {
	return func(_ context.Context, cc *ConnContext, req RoomRequest) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.emitMany(s.groups.Members(membership.Room(req.RoomID)), EventUserTyping, TypingBody{
			RoomID:      req.RoomID,
			UserID:      cc.Identity.UserID,
			DisplayName: cc.Identity.DisplayName,
			IsTyping:    on,
		}, cc.ConnID)
		return nil
	}
}
