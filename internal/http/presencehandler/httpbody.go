package presencehandler

import (
	"studyhubgo/internal/chat"
	"studyhubgo/internal/ws"
)

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
} // @name HealthResponse

type MeResponse struct {
	UserID      string       `json:"userId"      example:"u1"`
	DisplayName string       `json:"displayName" example:"Ada Lovelace"`
	Online      bool         `json:"online"`
	Sessions    []ws.Session `json:"sessions"`
} // @name MeResponse

type ParticipantsResponse struct {
	RoomID       string           `json:"roomId" example:"room-1"`
	Participants []ws.Participant `json:"participants"`
	Count        int              `json:"count"  example:"2"`
} // @name ParticipantsResponse

type MessagesQuery struct {
	Limit  int `form:"limit,default=50" binding:"gte=0,lte=200"`
	Offset int `form:"offset,default=0" binding:"gte=0"`
} // @name MessagesQuery

type MessagesResponse struct {
	RoomID   string         `json:"roomId"   example:"room-1"`
	Messages []chat.Message `json:"messages"`
	Total    int            `json:"total"    example:"120"`
	HasMore  bool           `json:"hasMore"`
	Limit    int            `json:"limit"    example:"50"`
	Offset   int            `json:"offset"   example:"0"`
} // @name MessagesResponse
