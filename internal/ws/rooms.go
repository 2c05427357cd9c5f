package ws

import (
	"context"

	"go.uber.org/zap"

	"studyhubgo/internal/membership"
)

func (s *WsServer) registerRoomHandlers() {
	Register(s.router, EventJoinRoom, "Failed to join room", s.joinRoom)
	Register(s.router, EventLeaveRoom, "Failed to leave room", s.leaveRoom)
	Register(s.router, EventGetRoomParticipants, "Failed to get participants", s.roomParticipants)
}

// joinRoom notifies the existing members, answers the joiner with everyone
// else in the room and then tells every client the new head count. Joining
// twice is harmless; the events are sent again.
func (s *WsServer) joinRoom(_ context.Context, cc *ConnContext, req RoomRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, added := s.groups.Join(membership.Room(req.RoomID), cc.ConnID)
	now := s.now().UTC()

	s.emitMany(members, EventUserJoinedRoom, UserJoinedRoomBody{
		RoomID:      req.RoomID,
		Participant: participantOf(cc.ConnID, cc.Identity),
		JoinedAt:    now,
	}, cc.ConnID)

	s.emit(cc.ConnID, EventRoomJoined, RoomJoinedBody{
		RoomID:       req.RoomID,
		Participants: s.participants(members, cc.ConnID),
		JoinedAt:     now,
	})

	s.broadcastRoomCount(req.RoomID)

	zap.L().Debug("room.join",
		zap.String("conn_id", cc.ConnID),
		zap.String("room_id", req.RoomID),
		zap.Bool("added", added),
		zap.Int("members", len(members)),
	)
	return nil
}

// leaveRoom always confirms to the caller. Only an actual member produces a
// user_left_room for the others.
func (s *WsServer) leaveRoom(_ context.Context, cc *ConnContext, req RoomRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, wasMember := s.groups.Leave(membership.Room(req.RoomID), cc.ConnID)
	now := s.now().UTC()

	if wasMember {
		s.emitMany(remaining, EventUserLeftRoom, UserLeftRoomBody{
			RoomID:       req.RoomID,
			ConnectionID: cc.ConnID,
			UserID:       cc.Identity.UserID,
			DisplayName:  cc.Identity.DisplayName,
			LeftAt:       now,
		}, "")
	}

	s.emit(cc.ConnID, EventRoomLeft, RoomLeftBody{RoomID: req.RoomID, LeftAt: now})
	s.broadcastRoomCount(req.RoomID)

	zap.L().Debug("room.leave",
		zap.String("conn_id", cc.ConnID),
		zap.String("room_id", req.RoomID),
		zap.Bool("was_member", wasMember),
	)
	return nil
}

func (s *WsServer) roomParticipants(_ context.Context, cc *ConnContext, req RoomRequest) error {
	list := s.RoomParticipants(req.RoomID)
	s.emit(cc.ConnID, EventRoomParticipants, RoomParticipantsBody{
		RoomID:       req.RoomID,
		Participants: list,
		Count:        len(list),
	})
	return nil
}
