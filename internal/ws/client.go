package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Conn is the server's view of one client connection. Send must not block.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// clientConn queues outbound frames for a single writer goroutine.
type clientConn struct {
	id      string
	rawConn *websocket.Conn
	send    chan []byte

	mu     sync.RWMutex
	closed bool
}

func newClientConn(id string, raw *websocket.Conn, buffer int) *clientConn {
	return &clientConn{
		id:      id,
		rawConn: raw,
		send:    make(chan []byte, buffer),
	}
}

func (c *clientConn) ID() string { return c.id }

func (c *clientConn) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close stops accepting frames; the write pump drains the queue, sends a
// close frame and tears the socket down, which ends the read pump.
func (c *clientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

func (c *clientConn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.rawConn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.rawConn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.rawConn.WriteMessage(websocket.TextMessage, frame); err != nil {
				zap.L().Debug("ws.write", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Debug("ws.ping", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		}
	}
}

// readPump feeds inbound frames to the server until the peer goes away or
// stops answering pings within pongWait.
func (c *clientConn) readPump(s *WsServer, cc *ConnContext) {
	defer func() {
		s.disconnect(cc)
		_ = c.Close()
		_ = c.rawConn.Close()
	}()

	c.rawConn.SetReadLimit(s.opts.ReadLimit)
	_ = c.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.rawConn.SetPongHandler(func(string) error {
		return c.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := c.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Info("ws.read", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		s.handleFrame(cc, data)
	}
}
