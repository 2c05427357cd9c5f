package ws

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"studyhubgo/internal/membership"
)

func (s *WsServer) registerSignalingHandlers() {
	Register(s.router, EventJoinCall, "Failed to join call", s.joinCall)
	Register(s.router, EventSignal, "Failed to relay signal", s.relaySignal)
}

// joinCall's body is the bare call path string. Every member, the joiner
// included, learns the full member list so mesh peers can dial each other.
func (s *WsServer) joinCall(_ context.Context, cc *ConnContext, callPath string) error {
	if strings.TrimSpace(callPath) == "" {
		return invalid("callPath is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, _ := s.groups.Join(membership.Call(callPath), cc.ConnID)
	s.emitMany(members, EventUserJoinedCall, CallJoinedBody{
		ConnectionID: cc.ConnID,
		Members:      members,
	}, "")

	zap.L().Debug("call.join",
		zap.String("conn_id", cc.ConnID),
		zap.String("call", callPath),
		zap.Int("members", len(members)),
	)
	return nil
}

// relaySignal forwards the payload untouched. An unknown target is dropped.
func (s *WsServer) relaySignal(_ context.Context, cc *ConnContext, req SignalRequest) error {
	frame, err := encodeEvent(EventSignal, SignalBody{From: cc.ConnID, Message: req.Message})
	if err != nil {
		return err
	}
	if !s.hub.Send(req.To, frame) {
		zap.L().Debug("signal.dropped", zap.String("from", cc.ConnID), zap.String("to", req.To))
	}
	return nil
}
