package group

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnknownConnection is returned when an event targets a connection id
// with no live session behind it.
var ErrUnknownConnection = errors.New("unknown connection")

// Events is the out-of-band injection path: any goroutine, with or without
// a session of its own, can push an event at a specific connection or at a
// whole group. Events are one-way; delivery is at-most-once per currently
// registered recipient.
type Events struct {
	dir *Directory
	log zerolog.Logger
}

func NewEvents(dir *Directory, log zerolog.Logger) *Events {
	return &Events{dir: dir, log: log.With().Str("component", "events").Logger()}
}

// ToConnection delivers ev to one specific connection.
func (e *Events) ToConnection(connID string, ev Event) error {
	m, ok := e.dir.Member(connID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConnection, connID)
	}
	m.DeliverEvent(ev)
	return nil
}

// ToGroup delivers ev to every current member of the named group and
// returns the recipient count. An empty or unknown group is not an error.
func (e *Events) ToGroup(group string, ev Event) int {
	members := e.dir.Members(group)
	for _, m := range members {
		m.DeliverEvent(ev)
	}
	e.log.Debug().
		Str("event", ev.Name).
		Str("group", group).
		Int("recipients", len(members)).
		Msg("event fan-out")
	return len(members)
}
