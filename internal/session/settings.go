package session

import "github.com/typewire/typewire/internal/message"

// Settings is the behavior surface a session type consumes. Zero values for
// the field names fall back to the wire defaults.
type Settings struct {
	// ActionField is the envelope field carrying the message discriminator.
	// Wire-form events use their own field, parsed where they enter the
	// process (the HTTP ingest route), so the two unions can never be
	// confused.
	ActionField string

	// SendAuthentication emits the handshake verdict as a typed message.
	SendAuthentication bool
	// SendCompletion emits a request_complete sentinel after each dispatched
	// message or event.
	SendCompletion bool
	// SendBroadcastCompletion emits a broadcast_complete sentinel after each
	// broadcast delivery to this session.
	SendBroadcastCompletion bool

	// Camelize rewrites outbound payload keys snake->camel at serialization
	// time.
	Camelize bool

	// LogExclude lists discriminator values excluded from request/response
	// logging (high-frequency or sensitive actions).
	LogExclude []string

	excluded map[string]bool
}

func (s *Settings) normalize() {
	if s.ActionField == "" {
		s.ActionField = message.DefaultActionField
	}
	s.excluded = make(map[string]bool, len(s.LogExclude))
	for _, a := range s.LogExclude {
		s.excluded[a] = true
	}
}

// Logged reports whether action participates in request/response logging.
func (s *Settings) Logged(action string) bool {
	return !s.excluded[action]
}
