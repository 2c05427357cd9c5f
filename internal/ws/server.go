package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studyhubgo/internal/auth"
	"studyhubgo/internal/chat"
	"studyhubgo/internal/membership"
	"studyhubgo/internal/presence"
)

const (
	writeWait             = 10 * time.Second
	defaultHandlerTimeout = 5 * time.Second
	closeWait             = 5 * time.Second

	msgRateLimited     = "rate limit exceeded"
	msgInvalidEnvelope = "invalid message format"
	msgSessionReplaced = "session replaced by a newer connection"
)

// Options tunes the transport. Zero fields fall back to sane defaults.
type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration // must be > PingPeriod
	SendBuffer     int
	RateLimit      rate.Limit
	RateBurst      int
	AllowedOrigins []string
	HandlerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 25 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = o.PingPeriod * 12 / 5
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.RateLimit <= 0 {
		o.RateLimit = rate.Inf
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = defaultHandlerTimeout
	}
	return o
}

// ConnContext is what every handler receives about the calling connection.
type ConnContext struct {
	ConnID   string
	Identity auth.Identity
	Server   *WsServer

	limiter *rate.Limiter
}

type WsServer struct {
	hub      *Hub
	presence *presence.Registry
	groups   *membership.Arena
	router   *Router
	auth     *auth.Authenticator
	history  chat.HistoryStore

	opts     Options
	origins  *originPolicy
	upgrader websocket.Upgrader
	now      func() time.Time

	// mu makes "mutate state, snapshot it, queue the frames" one step, so
	// clients never receive an older online list or count after a newer one.
	mu    sync.Mutex
	pumps sync.WaitGroup
}

func NewWsServer(
	a *auth.Authenticator,
	reg *presence.Registry,
	groups *membership.Arena,
	history chat.HistoryStore,
	opts Options,
) *WsServer {
	if history == nil {
		history = chat.NopStore{}
	}
	opts = opts.withDefaults()
	s := &WsServer{
		hub:      NewHub(),
		presence: reg,
		groups:   groups,
		router:   NewRouter(),
		auth:     a,
		history:  history,
		opts:     opts,
		origins:  newOriginPolicy(opts.AllowedOrigins),
		now:      time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.registerHandlers() // ← all WS events configured here
	return s
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle authenticates the handshake and upgrades it. The token travels as
// the "token" query parameter; a bad token never gets a socket.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	identity, err := s.auth.Authenticate(ginCtx.Query("token"))
	if err != nil {
		zap.L().Info("ws.auth_rejected", zap.String("remote", ginCtx.ClientIP()), zap.Error(err))
		ginCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}

	conn := newClientConn(uuid.NewString(), rawConn, s.opts.SendBuffer)
	s.pumps.Add(2)
	cc := s.connect(conn, identity)

	zap.L().Info("ws.accept",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", identity.UserID),
	)

	go func() {
		defer s.pumps.Done()
		conn.writePump(s.opts.PingPeriod)
	}()
	go func() {
		defer s.pumps.Done()
		conn.readPump(s, cc)
	}()
}

// ---------------------------------------------------------------------------
//  Lifecycle
// ---------------------------------------------------------------------------

// connect registers conn in the directory and the presence registry, then
// broadcasts the refreshed online list.
func (s *WsServer) connect(conn Conn, identity auth.Identity) *ConnContext {
	cc := &ConnContext{
		ConnID:   conn.ID(),
		Identity: identity,
		Server:   s,
		limiter:  rate.NewLimiter(s.opts.RateLimit, s.opts.RateBurst),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hub.Add(conn, identity)
	res := s.presence.Register(conn.ID(), presence.User{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Avatar:      identity.Avatar,
	})
	s.broadcastOnline()

	for _, old := range res.Displaced {
		if s.presence.Policy() != presence.CloseDisplaced {
			break
		}
		zap.L().Info("ws.displaced", zap.String("conn_id", old), zap.String("user_id", identity.UserID))
		s.emit(old, EventError, ErrorBody{Message: msgSessionReplaced})
		s.hub.Close(old)
	}
	return cc
}

// disconnect removes every trace of cc. Safe to call more than once.
func (s *WsServer) disconnect(cc *ConnContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hub.Remove(cc.ConnID) {
		return
	}

	now := s.now().UTC()
	for _, d := range s.groups.DropConn(cc.ConnID) {
		switch d.Key.Kind {
		case membership.KindRoom:
			s.emitMany(d.Remaining, EventUserLeftRoom, UserLeftRoomBody{
				RoomID:       d.Key.Name,
				ConnectionID: cc.ConnID,
				UserID:       cc.Identity.UserID,
				DisplayName:  cc.Identity.DisplayName,
				LeftAt:       now,
			}, "")
			s.broadcastRoomCount(d.Key.Name)
		case membership.KindCall:
			s.emitMany(d.Remaining, EventUserLeftCall, CallLeftBody{ConnectionID: cc.ConnID}, "")
		}
	}

	if s.presence.Unregister(cc.ConnID) {
		s.broadcastOnline()
	}
	zap.L().Info("ws.disconnect",
		zap.String("conn_id", cc.ConnID),
		zap.String("user_id", cc.Identity.UserID),
	)
}

// Close drops every connection, waits up to closeWait for the pumps to
// flush their close frames and run the disconnect path, then forgets all
// presence and membership state. Called on shutdown.
func (s *WsServer) Close() {
	n := s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		zap.L().Warn("ws.close_timeout", zap.Int("connections", s.hub.Len()))
	}

	s.mu.Lock()
	s.groups.Reset()
	s.presence.Reset()
	s.mu.Unlock()
	zap.L().Info("ws.closed", zap.Int("connections", n))
}

// ---------------------------------------------------------------------------
//  Inbound frames
// ---------------------------------------------------------------------------

func (s *WsServer) handleFrame(cc *ConnContext, data []byte) {
	if !cc.limiter.Allow() {
		s.emit(cc.ConnID, EventError, ErrorBody{Message: msgRateLimited})
		return
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		s.emit(cc.ConnID, EventError, ErrorBody{Message: msgInvalidEnvelope})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandlerTimeout)
	defer cancel()

	// ---- error -> {"event":"error", "body":{"message":...}} ---------------
	if err := s.router.dispatch(ctx, cc, env); err != nil {
		if !isValidation(err) {
			zap.L().Warn("ws.handler",
				zap.String("event", env.Event),
				zap.String("conn_id", cc.ConnID),
				zap.Error(err),
			)
		}
		public := err.Error()
		var de *dispatchError
		if errors.As(err, &de) {
			public = de.public
		}
		s.emit(cc.ConnID, EventError, ErrorBody{Message: public})
	}
}

// ---------------------------------------------------------------------------
//  Read views (REST)
// ---------------------------------------------------------------------------

func (s *WsServer) OnlineUsers() []presence.User { return s.presence.List() }

// RoomParticipants lists the connections currently joined to roomID.
func (s *WsServer) RoomParticipants(roomID string) []Participant {
	return s.participants(s.groups.Members(membership.Room(roomID)), "")
}

// IsOnline reports whether userID holds at least one open connection.
func (s *WsServer) IsOnline(userID string) bool { return s.presence.IsOnline(userID) }

// Session is one live connection of a user and the groups it has joined.
type Session struct {
	ConnectionID string   `json:"connectionId"`
	Rooms        []string `json:"rooms"`
	Calls        []string `json:"calls"`
}

// Sessions lists the registered connections of userID.
func (s *WsServer) Sessions(userID string) []Session {
	connIDs := s.presence.ConnectionsOf(userID)
	out := make([]Session, 0, len(connIDs))
	for _, id := range connIDs {
		sess := Session{ConnectionID: id, Rooms: []string{}, Calls: []string{}}
		for _, k := range s.groups.GroupsOf(id) {
			switch k.Kind {
			case membership.KindRoom:
				sess.Rooms = append(sess.Rooms, k.Name)
			case membership.KindCall:
				sess.Calls = append(sess.Calls, k.Name)
			}
		}
		out = append(out, sess)
	}
	return out
}

type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"onlineUsers"`
	Rooms       int `json:"rooms"`
	Calls       int `json:"calls"`
}

func (s *WsServer) Stats() Stats {
	users, _ := s.presence.Count()
	groups := s.groups.Stats()
	return Stats{
		Connections: s.hub.Len(),
		OnlineUsers: users,
		Rooms:       groups[membership.KindRoom],
		Calls:       groups[membership.KindCall],
	}
}

// ---------------------------------------------------------------------------
//  Outbound helpers
// ---------------------------------------------------------------------------

func (s *WsServer) emit(connID, event string, body any) {
	frame, err := encodeEvent(event, body)
	if err != nil {
		zap.L().Error("ws.encode", zap.String("event", event), zap.Error(err))
		return
	}
	s.hub.Send(connID, frame)
}

func (s *WsServer) emitMany(connIDs []string, event string, body any, except string) {
	frame, err := encodeEvent(event, body)
	if err != nil {
		zap.L().Error("ws.encode", zap.String("event", event), zap.Error(err))
		return
	}
	s.hub.SendMany(connIDs, frame, except)
}

func (s *WsServer) broadcast(event string, body any) {
	frame, err := encodeEvent(event, body)
	if err != nil {
		zap.L().Error("ws.encode", zap.String("event", event), zap.Error(err))
		return
	}
	s.hub.Broadcast(frame)
}

func (s *WsServer) broadcastOnline() {
	s.broadcast(EventOnlineUsersUpdated, s.presence.List())
}

// broadcastRoomCount sends the arena's current size of roomID. Callers hold s.mu.
func (s *WsServer) broadcastRoomCount(roomID string) {
	s.broadcast(EventRoomParticipantUpdate, ParticipantCountBody{
		RoomID:           roomID,
		ParticipantCount: s.groups.Count(membership.Room(roomID)),
	})
}

// participants resolves connection ids to identities, skipping except and
// connections that have already left the directory.
func (s *WsServer) participants(connIDs []string, except string) []Participant {
	out := make([]Participant, 0, len(connIDs))
	for _, id := range connIDs {
		if id == except {
			continue
		}
		identity, ok := s.hub.Identity(id)
		if !ok {
			continue
		}
		out = append(out, participantOf(id, identity))
	}
	return out
}

func participantOf(connID string, identity auth.Identity) Participant {
	return Participant{
		ConnectionID: connID,
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
		Avatar:       identity.Avatar,
	}
}

func (s *WsServer) registerHandlers() {
	s.registerRoomHandlers()
	s.registerChatHandlers()
	s.registerSignalingHandlers()
}
