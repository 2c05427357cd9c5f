// Package membership keeps ephemeral named groups of connections. Chat rooms
// and call-groups share one arena so a disconnect is cleaned up in a single
// pass over every group the connection belonged to.
package membership

import (
	"sort"
	"sync"
)

type Kind string

const (
	KindRoom Kind = "room"
	KindCall Kind = "call"
)

// Key names a group. The same name may exist once per kind.
type Key struct {
	Kind Kind
	Name string
}

func Room(name string) Key { return Key{Kind: KindRoom, Name: name} }
func Call(name string) Key { return Key{Kind: KindCall, Name: name} }

// Departure describes a group a dropped connection was removed from.
type Departure struct {
	Key       Key
	Remaining []string
}

type group struct {
	members []string
	index   map[string]struct{}
}

// Arena is safe for concurrent use. Groups come into existence on first join
// and disappear with their last member.
type Arena struct {
	mu     sync.RWMutex
	groups map[Key]*group
	byConn map[string]map[Key]struct{}
}

func NewArena() *Arena {
	return &Arena{
		groups: make(map[Key]*group),
		byConn: make(map[string]map[Key]struct{}),
	}
}

// Join adds connID to k. It returns the members after the join, in join
// order, and whether connID was newly added.
func (a *Arena) Join(k Key, connID string) ([]string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[k]
	if !ok {
		g = &group{index: make(map[string]struct{})}
		a.groups[k] = g
	}
	if _, member := g.index[connID]; member {
		return clone(g.members), false
	}
	g.index[connID] = struct{}{}
	g.members = append(g.members, connID)

	keys, ok := a.byConn[connID]
	if !ok {
		keys = make(map[Key]struct{})
		a.byConn[connID] = keys
	}
	keys[k] = struct{}{}
	return clone(g.members), true
}

// Leave removes connID from k. It returns the remaining members and whether
// connID had been a member.
func (a *Arena) Leave(k Key, connID string) ([]string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaveLocked(k, connID)
}

func (a *Arena) leaveLocked(k Key, connID string) ([]string, bool) {
	g, ok := a.groups[k]
	if !ok {
		return nil, false
	}
	if _, member := g.index[connID]; !member {
		return clone(g.members), false
	}

	delete(g.index, connID)
	for i, id := range g.members {
		if id == connID {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	if len(g.members) == 0 {
		delete(a.groups, k)
	}

	if keys, ok := a.byConn[connID]; ok {
		delete(keys, k)
		if len(keys) == 0 {
			delete(a.byConn, connID)
		}
	}
	return clone(g.members), true
}

// DropConn removes connID from every group it belongs to. Departures are
// ordered by kind, then name.
func (a *Arena) DropConn(connID string) []Departure {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := sortedKeys(a.byConn[connID])
	out := make([]Departure, 0, len(keys))
	for _, k := range keys {
		remaining, _ := a.leaveLocked(k, connID)
		out = append(out, Departure{Key: k, Remaining: remaining})
	}
	return out
}

// Members returns the members of k in join order.
func (a *Arena) Members(k Key) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if g, ok := a.groups[k]; ok {
		return clone(g.members)
	}
	return nil
}

func (a *Arena) Count(k Key) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if g, ok := a.groups[k]; ok {
		return len(g.members)
	}
	return 0
}

// GroupsOf lists the groups connID currently belongs to.
func (a *Arena) GroupsOf(connID string) []Key {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.byConn[connID])
}

// Stats counts live groups per kind.
func (a *Arena) Stats() map[Kind]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := map[Kind]int{KindRoom: 0, KindCall: 0}
	for k := range a.groups {
		out[k.Kind]++
	}
	return out
}

// Reset forgets every group.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.groups = make(map[Key]*group)
	a.byConn = make(map[string]map[Key]struct{})
	a.mu.Unlock()
}

func sortedKeys(set map[Key]struct{}) []Key {
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

func clone(s []string) []string {
	return append([]string{}, s...)
}
