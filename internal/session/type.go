// Package session implements the connection-level state machine and the
// schema-driven dispatch engine: one Session per live connection, gated by
// an authentication handshake, routing validated typed messages and
// out-of-band events to registered handlers.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/message"
)

var (
	ErrNilAuthenticator = errors.New("authenticator is nil")
	ErrNilDirectory     = errors.New("group directory is nil")
	ErrNilHandler       = errors.New("handler is nil")
	ErrDuplicateEvent   = errors.New("event handler already registered")
	ErrNoResolver       = errors.New("object key configured without a resolver")
)

// MessageHandler processes one validated inbound message. Returned messages
// are sent in order; nil means no reply. Handlers may also stream replies
// early via Session.Send.
type MessageHandler func(ctx context.Context, s *Session, m message.Message) ([]message.Message, error)

// EventHandler processes one out-of-band event. Events are one-way: errors
// are logged server-side, never surfaced to the client.
type EventHandler func(ctx context.Context, s *Session, ev group.Event) ([]message.Message, error)

// PostAuthFunc runs after a successful handshake, before the session goes
// Open to traffic. Typical use: joining groups.
type PostAuthFunc func(ctx context.Context, s *Session) error

// Type is a session-type definition: the authenticator, the message and
// event registries, and the settings shared by every connection of this
// type. Built once at startup; all registration errors are fatal before any
// connection is accepted, never at runtime.
type Type struct {
	name          string
	authenticator auth.Authenticator
	dir           *group.Directory
	settings      Settings
	log           zerolog.Logger

	messages *message.Registry
	handlers map[string]MessageHandler
	events   map[string]EventHandler
	postAuth []PostAuthFunc

	objectKey string
	resolver  auth.ObjectResolver
}

// NewType defines a session type. The built-in ping/pong exchange is
// registered for every type.
func NewType(name string, authn auth.Authenticator, dir *group.Directory, settings Settings, log zerolog.Logger) (*Type, error) {
	if authn == nil {
		return nil, ErrNilAuthenticator
	}
	if dir == nil {
		return nil, ErrNilDirectory
	}
	settings.normalize()

	reg := message.NewRegistry()
	reg.RegisterBuiltins()

	t := &Type{
		name:          name,
		authenticator: authn,
		dir:           dir,
		settings:      settings,
		log:           log.With().Str("session_type", name).Logger(),
		messages:      reg,
		handlers:      make(map[string]MessageHandler),
		events:        make(map[string]EventHandler),
	}
	t.handlers[message.ActionPing] = func(context.Context, *Session, message.Message) ([]message.Message, error) {
		return []message.Message{message.Pong{}}, nil
	}
	return t, nil
}

// Name returns the session type name.
func (t *Type) Name() string { return t.name }

// Settings returns the type's settings.
func (t *Type) Settings() Settings { return t.settings }

// Directory returns the group directory connections of this type live in.
func (t *Type) Directory() *group.Directory { return t.dir }

// HandleMessage registers a message type and its handler. The discriminator
// comes from the factory's prototype; duplicates and reserved values are
// rejected here, at definition time.
func (t *Type) HandleMessage(f message.Factory, h MessageHandler) error {
	if h == nil {
		return fmt.Errorf("%w: message handler", ErrNilHandler)
	}
	if err := t.messages.Register(f); err != nil {
		return err
	}
	t.handlers[f().Action()] = h
	return nil
}

// RegisterReply registers a message type with no inbound handler: the type
// is only ever constructed server-side and sent out, but still participates
// in the union (uniqueness checks, round-trip tests, typed clients).
func (t *Type) RegisterReply(f message.Factory) error {
	return t.messages.Register(f)
}

// HandleEvent registers an event handler keyed by event name. Events use
// their own namespace; one handler per name.
func (t *Type) HandleEvent(name string, h EventHandler) error {
	if h == nil {
		return fmt.Errorf("%w: event handler %q", ErrNilHandler, name)
	}
	if _, ok := t.events[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEvent, name)
	}
	t.events[name] = h
	return nil
}

// PostAuth appends a hook invoked after every successful handshake.
func (t *Type) PostAuth(fn PostAuthFunc) {
	t.postAuth = append(t.postAuth, fn)
}

// BindObject declares that the connection route carries a resource key in
// query parameter key, resolved through r before authentication. A nil
// resolver is a configuration error caught now, not per-connection.
func (t *Type) BindObject(key string, r auth.ObjectResolver) error {
	if key != "" && r == nil {
		return fmt.Errorf("%w: key %q", ErrNoResolver, key)
	}
	t.objectKey = key
	t.resolver = r
	return nil
}

// Actions returns the registered message discriminators, sorted.
func (t *Type) Actions() []string {
	return t.messages.Actions()
}
