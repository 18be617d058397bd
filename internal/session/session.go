package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/message"
	"github.com/typewire/typewire/internal/observability"
)

// State is a session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateOpen
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateOpen:           "open",
	StateClosing:        "closing",
	StateClosed:         "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ErrAuthenticationFailed reports a denied or errored handshake.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Transport is the socket surface a session writes to. Implemented by the
// websocket adapter; Send must be safe for concurrent use.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Session owns one connection's lifecycle. Its mutable state (state,
// identity, groups) is only ever written by its own lifecycle transitions
// and dispatch tasks; external code reads identity and hands it messages
// through the deliver methods.
type Session struct {
	id        string
	typ       *Type
	transport Transport
	log       zerolog.Logger

	mu          sync.Mutex
	state       State
	identity    *auth.Identity
	boundObject any
	groups      map[string]struct{}
	opened      bool

	// Task scope: every per-message dispatch runs inside ctx and is
	// abandoned when the session closes.
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.WaitGroup
	closeOnce sync.Once
}

// NewSession binds a fresh session to an accepted transport. The transport
// is accepted before authentication resolves so the verdict can travel as a
// typed message instead of an HTTP rejection.
func (t *Type) NewSession(transport Transport) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:        id,
		typ:       t,
		transport: transport,
		log:       t.log.With().Str("conn_id", id).Logger(),
		state:     StateConnecting,
		groups:    make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the connection identity.
func (s *Session) ID() string { return s.id }

// ConnectionID implements group.Member.
func (s *Session) ConnectionID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the authenticated principal, nil while anonymous or
// before the handshake. Immutable once set.
func (s *Session) Identity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// BoundObject returns the resource the connection route pointed at.
func (s *Session) BoundObject() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundObject
}

// Groups returns the session's current group names, sorted.
func (s *Session) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Context is canceled when the session starts closing. Handlers doing slow
// external work should respect it.
func (s *Session) Context() context.Context { return s.ctx }

// Start runs the authentication handshake: resolve the bound object, call
// the authenticator exactly once, and branch. On success the session is
// Open and registered in the group directory; on denial the verdict is
// optionally sent and the transport closed. An authenticator panic or error
// is treated as a 500-equivalent denial and never leaks detail to the
// client.
func (s *Session) Start(ctx context.Context, req *auth.Request) error {
	s.setState(StateAuthenticating)

	if s.typ.objectKey != "" {
		if key := req.Query.Get(s.typ.objectKey); key != "" {
			obj, err := s.typ.resolver.Resolve(ctx, key)
			if err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("object lookup failed")
				return s.deny(auth.Denied(http.StatusNotFound, "not found", nil))
			}
			req.Object = obj
		}
	}

	res, err := s.authenticate(ctx, req)
	if err != nil {
		s.log.Error().Err(err).Msg("authenticator failed")
		return s.deny(auth.Denied(http.StatusInternalServerError, "internal server error", nil))
	}
	if !res.Authenticated {
		return s.deny(res)
	}

	s.mu.Lock()
	s.identity = res.Identity
	if res.BoundObject != nil {
		s.boundObject = res.BoundObject
	} else {
		s.boundObject = req.Object
	}
	s.state = StateOpen
	s.opened = true
	s.mu.Unlock()

	s.typ.dir.Register(s)
	observability.RecordConnection(s.typ.name, observability.OutcomeAccepted)
	observability.SessionOpened()

	for _, fn := range s.typ.postAuth {
		if err := fn(ctx, s); err != nil {
			s.log.Error().Err(err).Msg("post-auth hook failed")
			s.Close()
			return fmt.Errorf("post-auth: %w", err)
		}
	}

	if s.typ.settings.SendAuthentication {
		s.Send(message.Authentication{StatusCode: res.StatusCode, Data: res.Data})
	}

	s.log.Info().Str("user", userLabel(res.Identity)).Msg("session open")
	return nil
}

// authenticate guards the external authenticator call: a panic in the
// collaborator must not crash the session.
func (s *Session) authenticate(ctx context.Context, req *auth.Request) (res auth.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("authenticator panic: %v", r)
		}
	}()
	return s.typ.authenticator.Authenticate(ctx, req)
}

func (s *Session) deny(res auth.Result) error {
	observability.RecordConnection(s.typ.name, observability.OutcomeRejected)
	if s.typ.settings.SendAuthentication {
		s.Send(message.Authentication{StatusCode: res.StatusCode, Data: res.Data})
	}
	s.Close()
	s.log.Info().Int("status", res.StatusCode).Msg("authentication denied")
	return fmt.Errorf("%w: status %d", ErrAuthenticationFailed, res.StatusCode)
}

// Send serializes m with this session's settings and writes it to the
// transport. Safe for concurrent use from any dispatch task.
func (s *Session) Send(m message.Message) error {
	raw, err := message.Encode(m, s.typ.settings.ActionField, s.typ.settings.Camelize)
	if err != nil {
		s.log.Error().Err(err).Str("action", m.Action()).Msg("encode failed")
		return err
	}
	if s.typ.settings.Logged(m.Action()) {
		s.log.Debug().Str("action", m.Action()).Msg("message sent")
	}
	return s.transport.Send(raw)
}

// JoinGroup subscribes this session to a named group. A no-op once the
// session has left Open: a straggler task joining after Close must not
// re-insert the session into the directory.
func (s *Session) JoinGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	s.groups[name] = struct{}{}
	s.typ.dir.Join(name, s)
}

// LeaveGroup unsubscribes this session from a named group.
func (s *Session) LeaveGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	delete(s.groups, name)
	s.typ.dir.Leave(name, s)
}

// Close moves the session to Closing, abandons outstanding dispatch tasks,
// removes it from every group, and tears the transport down. Idempotent;
// callable from handlers, from the transport on disconnect, or from the
// handshake denial path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.cancel()
		s.typ.dir.Unregister(s)
		_ = s.transport.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.groups = make(map[string]struct{})
		opened := s.opened
		s.mu.Unlock()

		if opened {
			observability.SessionClosed()
		}
		s.log.Info().Msg("session closed")
	})
}

// Wait blocks until every outstanding dispatch task has returned. Teardown
// does not call this; it exists for tests and graceful drains.
func (s *Session) Wait() {
	s.tasks.Wait()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func userLabel(id *auth.Identity) string {
	if id == nil {
		return "anonymous"
	}
	return id.ID
}
