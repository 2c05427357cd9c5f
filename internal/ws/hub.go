package ws

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"studyhubgo/internal/auth"
)

type session struct {
	conn     Conn
	identity auth.Identity
}

// Hub is the directory of every open, authenticated connection.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session // connID -> session
}

func NewHub() *Hub { return &Hub{sessions: make(map[string]*session)} }

func (h *Hub) Add(c Conn, id auth.Identity) {
	h.mu.Lock()
	h.sessions[c.ID()] = &session{conn: c, identity: id}
	h.mu.Unlock()
}

func (h *Hub) Remove(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[connID]; !ok {
		return false
	}
	delete(h.sessions, connID)
	return true
}

func (h *Hub) Identity(connID string) (auth.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[connID]; ok {
		return s.identity, true
	}
	return auth.Identity{}, false
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Send queues frame for one connection. Unknown targets are a silent no-op.
func (h *Hub) Send(connID string, frame []byte) bool {
	h.mu.RLock()
	s, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver(s.conn, frame)
}

// SendMany queues frame for each of connIDs, in order, skipping except.
func (h *Hub) SendMany(connIDs []string, frame []byte, except string) {
	// Take a quick snapshot of the targets
	h.mu.RLock()
	conns := make([]Conn, 0, len(connIDs))
	for _, id := range connIDs {
		if id == except {
			continue
		}
		if s, ok := h.sessions[id]; ok {
			conns = append(conns, s.conn)
		}
	}
	h.mu.RUnlock()

	// Do the I/O outside the lock
	for _, c := range conns {
		h.deliver(c, frame)
	}
}

// Broadcast queues frame for every connection.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.sessions))
	for _, s := range h.sessions {
		conns = append(conns, s.conn)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.deliver(c, frame)
	}
}

func (h *Hub) Close(connID string) {
	h.mu.RLock()
	s, ok := h.sessions[connID]
	h.mu.RUnlock()
	if ok {
		_ = s.conn.Close()
	}
}

// CloseAll closes every connection; their read pumps run the normal
// disconnect path.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.sessions))
	for _, s := range h.sessions {
		conns = append(conns, s.conn)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// deliver drops a peer whose queue is full rather than stall the sender.
func (h *Hub) deliver(c Conn, frame []byte) bool {
	err := c.Send(frame)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrBackpressure) {
		zap.L().Warn("ws.slow_consumer", zap.String("conn_id", c.ID()))
		_ = c.Close()
	}
	return false
}
