// Package presence tracks which identities currently hold an open,
// authenticated connection.
package presence

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Policy decides what happens when an identity that is already online opens
// another connection.
type Policy string

const (
	// LastWriteWins lets the newer connection replace the entry silently.
	LastWriteWins Policy = "last_write_wins"
	// MultiDevice keeps every connection of an identity.
	MultiDevice Policy = "multi_device"
	// CloseDisplaced replaces the entry and asks the caller to close the older connection.
	CloseDisplaced Policy = "close_displaced"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case LastWriteWins, MultiDevice, CloseDisplaced:
		return p, nil
	case "":
		return LastWriteWins, nil
	default:
		return "", fmt.Errorf("unknown presence policy %q", s)
	}
}

// User is one row of the online-users view.
type User struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// RegisterResult reports connections that lost their entry to a newer one.
type RegisterResult struct {
	Displaced []string
}

type entry struct {
	user  User
	conns []string // newest last; exactly one unless MultiDevice
}

// Registry maps identities to their live connections. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	policy Policy

	mu      sync.RWMutex
	order   []string // user ids in first-registration order
	entries map[string]*entry
	byConn  map[string]string // conn id -> user id

	changed chan struct{}
}

func NewRegistry(policy Policy) *Registry {
	if policy == "" {
		policy = LastWriteWins
	}
	return &Registry{
		policy:  policy,
		entries: make(map[string]*entry),
		byConn:  make(map[string]string),
		changed: make(chan struct{}, 1),
	}
}

func (r *Registry) Policy() Policy { return r.policy }

// Register records connID as the live connection of user.
func (r *Registry) Register(connID string, user User) RegisterResult {
	var res RegisterResult

	r.mu.Lock()
	if prev, ok := r.byConn[connID]; ok && prev != user.UserID {
		r.removeConnLocked(connID)
	}

	e, ok := r.entries[user.UserID]
	switch {
	case !ok:
		e = &entry{user: user, conns: []string{connID}}
		r.entries[user.UserID] = e
		r.order = append(r.order, user.UserID)
	case r.policy == MultiDevice:
		e.user = user
		if !contains(e.conns, connID) {
			e.conns = append(e.conns, connID)
		}
	default:
		for _, old := range e.conns {
			if old != connID {
				res.Displaced = append(res.Displaced, old)
				delete(r.byConn, old)
			}
		}
		e.user = user
		e.conns = []string{connID}
	}
	r.byConn[connID] = user.UserID
	online := len(r.entries)
	r.mu.Unlock()

	zap.L().Debug("presence.register",
		zap.String("conn_id", connID),
		zap.String("user_id", user.UserID),
		zap.Int("displaced", len(res.Displaced)),
		zap.Int("online", online),
	)
	r.notify()
	return res
}

// Unregister drops connID. It reports whether the registry changed; a
// connection that was already displaced leaves the newer entry in place.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	removed := r.removeConnLocked(connID)
	r.mu.Unlock()

	if removed {
		zap.L().Debug("presence.unregister", zap.String("conn_id", connID))
		r.notify()
	}
	return removed
}

func (r *Registry) removeConnLocked(connID string) bool {
	userID, ok := r.byConn[connID]
	if !ok {
		return false
	}
	delete(r.byConn, connID)

	e := r.entries[userID]
	if e == nil {
		return true
	}
	e.conns = without(e.conns, connID)
	if len(e.conns) > 0 {
		return true
	}

	delete(r.entries, userID)
	r.order = without(r.order, userID)
	return true
}

// List returns the online users in first-registration order.
func (r *Registry) List() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].user)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// ConnectionsOf returns the live connection ids registered for userID.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil
	}
	return append([]string(nil), e.conns...)
}

// Count returns the number of online identities and registered connections.
func (r *Registry) Count() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), len(r.byConn)
}

// Changed fires at least once after any mutation. Notifications coalesce.
func (r *Registry) Changed() <-chan struct{} { return r.changed }

// Reset forgets every entry. Called on server teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.order = nil
	r.entries = make(map[string]*entry)
	r.byConn = make(map[string]string)
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
