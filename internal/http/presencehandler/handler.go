package presencehandler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studyhubgo/internal/auth"
	"studyhubgo/internal/chat"
	"studyhubgo/internal/presence"
	"studyhubgo/internal/ws"
)

// Views is the read side of the realtime server.
type Views interface {
	OnlineUsers() []presence.User
	RoomParticipants(roomID string) []ws.Participant
	Stats() ws.Stats
	IsOnline(userID string) bool
	Sessions(userID string) []ws.Session
}

// History serves stored room messages. Optional.
type History interface {
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]chat.Message, error)
	CountMessages(ctx context.Context, roomID string) (int, error)
}

type Handler struct {
	views   Views
	history History
}

func New(views Views, history History) *Handler {
	return &Handler{views: views, history: history}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/presence/online", h.online)
	r.GET("/presence/stats", h.stats)
	r.GET("/presence/me", h.me)
	r.GET("/rooms/:roomId/participants", h.participants)
	if h.history != nil {
		r.GET("/rooms/:roomId/messages", h.messages)
	}
}

// @Summary		Health check
// @Tags			Health
// @Success		200	{object}	HealthResponse
// @Router			/healthz [get]
func Health(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// @Summary		Online users
// @Description	Everyone holding at least one open realtime connection, in arrival order.
// @Tags			Presence
// @Security		BearerAuth
// @Success		200	{array}		presence.User
// @Failure		401	{object}	ErrorResponse
// @Router			/presence/online [get]
func (h *Handler) online(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, h.views.OnlineUsers())
}

// @Summary		Connection statistics
// @Tags			Presence
// @Security		BearerAuth
// @Success		200	{object}	ws.Stats
// @Failure		401	{object}	ErrorResponse
// @Router			/presence/stats [get]
func (h *Handler) stats(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, h.views.Stats())
}

// @Summary		Caller's presence
// @Description	The caller's own live connections and the rooms and calls each one has joined.
// @Tags			Presence
// @Security		BearerAuth
// @Success		200	{object}	MeResponse
// @Failure		401	{object}	ErrorResponse
// @Router			/presence/me [get]
func (h *Handler) me(ginCtx *gin.Context) {
	id, ok := auth.FromGin(ginCtx)
	if !ok {
		ginCtx.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	ginCtx.JSON(http.StatusOK, MeResponse{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Online:      h.views.IsOnline(id.UserID),
		Sessions:    h.views.Sessions(id.UserID),
	})
}

// @Summary		Room participants
// @Description	Connections currently joined to a room. Unknown rooms are simply empty.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			roomId	path		string	true	"Room ID"	default(room-1)
// @Success		200		{object}	ParticipantsResponse
// @Failure		401		{object}	ErrorResponse
// @Router			/rooms/{roomId}/participants [get]
func (h *Handler) participants(ginCtx *gin.Context) {
	roomID := ginCtx.Param("roomId")
	list := h.views.RoomParticipants(roomID)
	ginCtx.JSON(http.StatusOK, ParticipantsResponse{
		RoomID:       roomID,
		Participants: list,
		Count:        len(list),
	})
}

// @Summary		Room message history
// @Description	One page of stored messages, oldest first.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			roomId	path		string	true	"Room ID"				default(room-1)
// @Param			limit	query		int		false	"Page size (0‑200)"		minimum(0)	maximum(200)	default(50)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{object}	MessagesResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		401		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/rooms/{roomId}/messages [get]
func (h *Handler) messages(ginCtx *gin.Context) {
	var q MessagesQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = chat.DefaultHistoryLimit
	}

	roomID := ginCtx.Param("roomId")
	ctx := ginCtx.Request.Context()

	msgs, err := h.history.ListMessages(ctx, roomID, q.Limit, q.Offset)
	if err != nil {
		zap.L().Error("http.messages", zap.String("room_id", roomID), zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load messages"})
		return
	}
	total, err := h.history.CountMessages(ctx, roomID)
	if err != nil {
		zap.L().Error("http.messages_count", zap.String("room_id", roomID), zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load messages"})
		return
	}

	ginCtx.JSON(http.StatusOK, MessagesResponse{
		RoomID:   roomID,
		Messages: msgs,
		Total:    total,
		HasMore:  q.Offset+len(msgs) < total,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
}
