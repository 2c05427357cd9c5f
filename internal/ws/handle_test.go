package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhubgo/internal/auth"
	"studyhubgo/internal/membership"
	"studyhubgo/internal/presence"
)

func init() { gin.SetMode(gin.TestMode) }

func token(t *testing.T, secret, userID, first string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:    userID,
		FirstName: first,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func startServer(t *testing.T, opts Options) (*WsServer, string) {
	t.Helper()
	srv := NewWsServer(auth.NewAuthenticator(testSecret), presence.NewRegistry(presence.LastWriteWins),
		membership.NewArena(), nil, opts)

	r := gin.New()
	r.GET("/ws", srv.Handle)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, tok string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url+"?token="+tok, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one named event satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, event string, match func(Envelope) bool) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == event && (match == nil || match(env)) {
			return env
		}
	}
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Body: raw}))
}

func TestHandle_RejectsBadToken(t *testing.T) {
	srv, url := startServer(t, Options{})

	for name, tok := range map[string]string{
		"missing":    "",
		"garbage":    "not-a-jwt",
		"bad secret": token(t, "other-secret", "mallory", "Mallory"),
	} {
		t.Run(name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(url+"?token="+tok, nil)
			if conn != nil {
				_ = conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	assert.Zero(t, srv.Stats().Connections)
	assert.Empty(t, srv.OnlineUsers())
}

func TestHandle_EndToEnd(t *testing.T) {
	srv, url := startServer(t, Options{})

	alice := dial(t, url, token(t, testSecret, "alice", "Alice"))
	readUntil(t, alice, EventOnlineUsersUpdated, nil)

	bob := dial(t, url, token(t, testSecret, "bob", "Bob"))
	env := readUntil(t, alice, EventOnlineUsersUpdated, func(e Envelope) bool {
		var users []presence.User
		_ = json.Unmarshal(e.Body, &users)
		return len(users) == 2
	})
	var users []presence.User
	require.NoError(t, json.Unmarshal(env.Body, &users))
	assert.Equal(t, "Bob", users[1].DisplayName)

	writeEvent(t, alice, EventJoinRoom, RoomRequest{RoomID: "R1"})
	readUntil(t, alice, EventRoomJoined, nil)
	writeEvent(t, bob, EventJoinRoom, RoomRequest{RoomID: "R1"})
	readUntil(t, bob, EventRoomJoined, nil)
	readUntil(t, alice, EventUserJoinedRoom, nil)

	writeEvent(t, alice, EventSendMessage, SendMessageRequest{RoomID: "R1", Message: "hello"})
	for _, c := range []*websocket.Conn{alice, bob} {
		got := readUntil(t, c, EventNewMessage, nil)
		assert.Contains(t, string(got.Body), `"message":"hello"`)
		assert.Contains(t, string(got.Body), `"senderId":"alice"`)
	}

	require.NoError(t, bob.Close())
	readUntil(t, alice, EventUserLeftRoom, nil)
	readUntil(t, alice, EventOnlineUsersUpdated, func(e Envelope) bool {
		var users []presence.User
		_ = json.Unmarshal(e.Body, &users)
		return len(users) == 1
	})
	assert.Equal(t, 1, srv.Stats().Connections)
}

func TestHandle_HeartbeatTimeoutDisconnects(t *testing.T) {
	srv, url := startServer(t, Options{PingPeriod: 20 * time.Millisecond, PongWait: 100 * time.Millisecond})

	// never reads, so never answers pings
	_ = dial(t, url, token(t, testSecret, "idle", "Idle"))
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return srv.Stats().Connections == 0 && len(srv.OnlineUsers()) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

// Close returns only after every client has been sent a normal close frame
// and its connection has been torn down.
func TestClose_FlushesCloseFrames(t *testing.T) {
	srv, url := startServer(t, Options{})
	alice := dial(t, url, token(t, testSecret, "alice", "Alice"))
	bob := dial(t, url, token(t, testSecret, "bob", "Bob"))
	readUntil(t, alice, EventOnlineUsersUpdated, func(e Envelope) bool {
		var users []presence.User
		_ = json.Unmarshal(e.Body, &users)
		return len(users) == 2
	})

	srv.Close()
	assert.Zero(t, srv.Stats().Connections)

	for _, c := range []*websocket.Conn{alice, bob} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
		var err error
		for err == nil {
			_, _, err = c.ReadMessage()
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	}
}
