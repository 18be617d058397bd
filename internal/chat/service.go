// Package chat is the built-in demo domain: a token-authenticated room
// chat assembled entirely from the public session surface. It doubles as a
// living integration example for wiring a session type.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/config"
	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/message"
	"github.com/typewire/typewire/internal/session"
)

const roomGroupPrefix = "room:"

// RoomGroup maps a room name to its directory group.
func RoomGroup(room string) string { return roomGroupPrefix + room }

// UserGroup maps a user id to the per-user group every connection of that
// user joins, so events can target "all sockets of user X".
func UserGroup(id string) string { return "user:" + id }

// Service holds the chat state: the static room catalogue and token table
// from config, plus the broadcaster it fans messages out with.
type Service struct {
	tokens map[string]config.ChatUser
	rooms  map[string]bool
	filter Filter
	dir    *group.Directory
	bcast  *group.Broadcaster
	log    zerolog.Logger
}

func NewService(cfg config.ChatConfig, dir *group.Directory, log zerolog.Logger) *Service {
	s := &Service{
		tokens: cfg.Tokens,
		rooms:  make(map[string]bool, len(cfg.Rooms)),
		filter: Filter{
			MaskAuthors:  cfg.Filter.MaskAuthors,
			BlockedWords: cfg.Filter.BlockedWords,
			BlockedRooms: cfg.Filter.BlockedRooms,
		},
		dir:   dir,
		bcast: group.NewBroadcaster(dir, log),
		log:   log.With().Str("component", "chat").Logger(),
	}
	for _, r := range cfg.Rooms {
		s.rooms[r] = true
	}
	return s
}

// roomOpen reports whether room exists and passes the moderation filter.
func (s *Service) roomOpen(room string) bool {
	return s.rooms[room] && s.filter.RoomAllowed(room)
}

// Rooms returns the catalogue, sorted. Rooms hidden by the moderation
// filter are omitted.
func (s *Service) Rooms() []string {
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		if s.filter.RoomAllowed(r) {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// Authenticate implements auth.Authenticator against the static token
// table. The token rides in the "token" query parameter or a bearer
// Authorization header.
func (s *Service) Authenticate(_ context.Context, r *auth.Request) (auth.Result, error) {
	token := r.Query.Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return auth.Denied(http.StatusUnauthorized, "token required", nil), nil
	}
	user, ok := s.tokens[token]
	if !ok {
		return auth.Denied(http.StatusUnauthorized, "invalid token", nil), nil
	}
	return auth.Granted(&auth.Identity{ID: user.ID, Name: user.Name}), nil
}

// ResolveRoom resolves the "room" query parameter to a room name, so a
// connection can land directly in a room. Unknown rooms fail the lookup
// and the handshake with it.
func (s *Service) ResolveRoom(_ context.Context, key string) (any, error) {
	if !s.roomOpen(key) {
		return nil, fmt.Errorf("unknown room %q", key)
	}
	return key, nil
}

// SessionType assembles the "chat" session type: token auth, the room
// resolver, all message and event handlers. Any registration error here is
// fatal at startup.
func (s *Service) SessionType(settings session.Settings) (*session.Type, error) {
	typ, err := session.NewType("chat", auth.Func(s.Authenticate), s.dir, settings, s.log)
	if err != nil {
		return nil, err
	}
	if err := typ.BindObject("room", auth.ResolverFunc(s.ResolveRoom)); err != nil {
		return nil, err
	}

	typ.PostAuth(func(_ context.Context, sess *session.Session) error {
		if id := sess.Identity(); id != nil {
			sess.JoinGroup(UserGroup(id.ID))
		}
		if room, ok := sess.BoundObject().(string); ok && room != "" {
			sess.JoinGroup(RoomGroup(room))
		}
		return nil
	})

	registrations := []error{
		typ.HandleMessage(func() message.Message { return &JoinRoom{} }, s.handleJoin),
		typ.HandleMessage(func() message.Message { return &LeaveRoom{} }, s.handleLeave),
		typ.HandleMessage(func() message.Message { return &SendChat{} }, s.handleSend),
		typ.HandleMessage(func() message.Message { return &ListRooms{} }, s.handleList),
		typ.RegisterReply(func() message.Message { return &RoomJoined{} }),
		typ.RegisterReply(func() message.Message { return &RoomLeft{} }),
		typ.RegisterReply(func() message.Message { return &ChatPosted{} }),
		typ.RegisterReply(func() message.Message { return &RoomList{} }),
		typ.RegisterReply(func() message.Message { return &RoomNotice{} }),
		typ.HandleEvent("room_notice", s.handleNotice),
	}
	for _, err := range registrations {
		if err != nil {
			return nil, err
		}
	}
	return typ, nil
}

func (s *Service) handleJoin(_ context.Context, sess *session.Session, m message.Message) ([]message.Message, error) {
	req := m.(*JoinRoom)
	if !s.roomOpen(req.Room) {
		return nil, message.Invalid("room", "unknown room %q", req.Room)
	}
	sess.JoinGroup(RoomGroup(req.Room))
	members := len(s.dir.Members(RoomGroup(req.Room)))
	return []message.Message{RoomJoined{Room: req.Room, Members: members}}, nil
}

func (s *Service) handleLeave(_ context.Context, sess *session.Session, m message.Message) ([]message.Message, error) {
	req := m.(*LeaveRoom)
	sess.LeaveGroup(RoomGroup(req.Room))
	return []message.Message{RoomLeft{Room: req.Room}}, nil
}

func (s *Service) handleSend(_ context.Context, sess *session.Session, m message.Message) ([]message.Message, error) {
	req := m.(*SendChat)
	if !s.roomOpen(req.Room) {
		return nil, message.Invalid("room", "unknown room %q", req.Room)
	}

	post := ChatPosted{Room: req.Room, Body: req.Body}
	if id := sess.Identity(); id != nil {
		post.AuthorID = id.ID
		post.AuthorName = id.Name
	}
	s.bcast.Broadcast(s.filter.Apply(post),
		group.Sender{ConnectionID: sess.ConnectionID(), Identity: sess.Identity()},
		group.Options{},
		RoomGroup(req.Room))
	return nil, nil
}

func (s *Service) handleList(_ context.Context, _ *session.Session, _ message.Message) ([]message.Message, error) {
	return []message.Message{RoomList{Rooms: s.Rooms()}}, nil
}

// handleNotice turns a room_notice event into a typed push. The event is
// delivered to whichever connections the caller targeted; the room field is
// informational.
func (s *Service) handleNotice(_ context.Context, _ *session.Session, ev group.Event) ([]message.Message, error) {
	if len(ev.Payload) == 0 {
		return nil, fmt.Errorf("room_notice: missing payload")
	}
	var notice RoomNotice
	if err := json.Unmarshal(ev.Payload, &notice); err != nil {
		return nil, fmt.Errorf("room_notice: %w", err)
	}
	if notice.Body == "" {
		return nil, fmt.Errorf("room_notice: empty body")
	}
	return []message.Message{notice}, nil
}
