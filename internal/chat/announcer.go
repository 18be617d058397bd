package chat

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/group"
)

// Announcer injects synthetic room_notice events at a fixed interval. It
// exists for demos and load smoke-testing: it exercises the full event
// path (event registry, per-session dispatch, typed push) without any
// external caller.
type Announcer struct {
	events   *group.Events
	rooms    []string
	interval time.Duration
	log      zerolog.Logger
}

var cannedNotices = []string{
	"welcome to the room",
	"remember to be kind",
	"server maintenance window every sunday",
	"pro tip: list_rooms shows everything you can join",
}

func NewAnnouncer(events *group.Events, rooms []string, interval time.Duration, log zerolog.Logger) *Announcer {
	return &Announcer{
		events:   events,
		rooms:    rooms,
		interval: interval,
		log:      log.With().Str("component", "announcer").Logger(),
	}
}

// Start runs the announce loop until ctx is canceled.
func (a *Announcer) Start(ctx context.Context) {
	go a.run(ctx)
}

func (a *Announcer) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.announce()
		}
	}
}

// announce pushes one canned notice into every configured room.
func (a *Announcer) announce() {
	body := cannedNotices[rand.Intn(len(cannedNotices))]
	for _, room := range a.rooms {
		ev, err := group.NewEvent("room_notice", RoomNotice{Room: room, Body: body})
		if err != nil {
			a.log.Error().Err(err).Msg("building notice failed")
			return
		}
		delivered := a.events.ToGroup(RoomGroup(room), ev)
		a.log.Debug().Str("room", room).Int("delivered", delivered).Msg("notice announced")
	}
}
