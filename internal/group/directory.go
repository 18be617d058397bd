// Package group implements named fan-out groups of live connections: the
// concurrent membership directory, the broadcaster with per-recipient
// delivery flags, and the out-of-band event channel.
package group

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/message"
)

// Flags annotate one broadcast delivery relative to one recipient. They are
// computed independently for each recipient and never reused.
type Flags struct {
	// IsMine: the sender and this recipient are the same authenticated
	// principal. Two anonymous parties are never each other's.
	IsMine bool
	// IsCurrent: the sending connection is this exact recipient connection.
	IsCurrent bool
}

// Event is an out-of-band delivery injected from outside a session's own
// dispatch loop. Name is matched against the recipient's event registry.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// NewEvent marshals payload into an Event.
func NewEvent(name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling event %q payload: %w", name, err)
	}
	return Event{Name: name, Payload: raw}, nil
}

// Member is a live connection the directory can deliver to. Sessions
// implement it; the directory holds these references without owning them.
type Member interface {
	ConnectionID() string
	Identity() *auth.Identity

	// DeliverBroadcast hands the recipient one fan-out delivery. The
	// recipient serializes and sends through its own path so its own
	// settings apply.
	DeliverBroadcast(m message.Message, flags Flags)

	// DeliverEvent hands the recipient one out-of-band event for dispatch
	// through its event registry.
	DeliverEvent(ev Event)
}

// Directory is the process-wide group-membership map. Join, leave, and
// lookup are safe under concurrent use from many sessions; Members returns
// a snapshot so a broadcast never observes a half-updated group.
type Directory struct {
	mu     sync.RWMutex
	groups map[string]map[string]Member // group name -> conn id -> member
	conns  map[string]Member            // conn id -> member
}

func NewDirectory() *Directory {
	return &Directory{
		groups: make(map[string]map[string]Member),
		conns:  make(map[string]Member),
	}
}

// Register makes m addressable by connection id. Sessions register when
// they open and unregister when they close.
func (d *Directory) Register(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[m.ConnectionID()] = m
}

// Unregister removes m from the connection index and from every group.
func (d *Directory) Unregister(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := m.ConnectionID()
	delete(d.conns, id)
	for name, members := range d.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(d.groups, name)
		}
	}
}

// Join adds m to the named group.
func (d *Directory) Join(group string, m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.groups[group]
	if !ok {
		members = make(map[string]Member)
		d.groups[group] = members
	}
	members[m.ConnectionID()] = m
}

// Leave removes m from the named group. Empty groups are dropped.
func (d *Directory) Leave(group string, m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.groups[group]
	if !ok {
		return
	}
	delete(members, m.ConnectionID())
	if len(members) == 0 {
		delete(d.groups, group)
	}
}

// Members returns a snapshot of the named group, ordered by connection id.
func (d *Directory) Members(group string) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := d.groups[group]
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectionID() < out[j].ConnectionID()
	})
	return out
}

// Member looks a live connection up by id.
func (d *Directory) Member(connID string) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.conns[connID]
	return m, ok
}

// GroupCount reports the number of non-empty groups.
func (d *Directory) GroupCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.groups)
}

// ConnectionCount reports the number of registered connections.
func (d *Directory) ConnectionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
