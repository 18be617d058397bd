package group

import (
	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/message"
	"github.com/typewire/typewire/internal/observability"
)

// Sender identifies the origin of a broadcast. The zero value is an
// external origin (background job, admin task): no connection, anonymous.
type Sender struct {
	ConnectionID string
	Identity     *auth.Identity
}

// Options tune one broadcast call.
type Options struct {
	// ExcludeCurrent skips the sender's own connection entirely. It is
	// independent of IsMine: other connections of the same user still see
	// is_mine=true.
	ExcludeCurrent bool
}

// Broadcaster fans a message out to every member of one or more groups,
// annotating each delivery with recipient-relative flags. It never writes
// to a socket itself; every delivery goes through the recipient's own send
// path.
type Broadcaster struct {
	dir *Directory
	log zerolog.Logger
}

func NewBroadcaster(dir *Directory, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{dir: dir, log: log.With().Str("component", "broadcaster").Logger()}
}

// Broadcast delivers m to every current member of groups, at most once per
// connection. Callable from inside a session handler (from identifies the
// sending session) or from external code (zero Sender).
func (b *Broadcaster) Broadcast(m message.Message, from Sender, opts Options, groups ...string) int {
	seen := make(map[string]bool)
	delivered := 0
	for _, g := range groups {
		for _, member := range b.dir.Members(g) {
			id := member.ConnectionID()
			if seen[id] {
				continue
			}
			seen[id] = true

			current := from.ConnectionID != "" && id == from.ConnectionID
			if current && opts.ExcludeCurrent {
				continue
			}
			member.DeliverBroadcast(m, Flags{
				IsMine:    auth.Equal(member.Identity(), from.Identity),
				IsCurrent: current,
			})
			delivered++
		}
	}
	observability.RecordBroadcast(delivered)
	b.log.Debug().
		Str("action", m.Action()).
		Strs("groups", groups).
		Int("recipients", delivered).
		Msg("broadcast")
	return delivered
}
