package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/message"
	"github.com/typewire/typewire/internal/observability"
)

// HandleIncoming dispatches one raw inbound frame. Each message runs as its
// own task so a slow handler never delays the next frame; replies across
// concurrent tasks may interleave on the wire, and the request_complete
// sentinel is the client's ordering contract.
func (s *Session) HandleIncoming(raw []byte) {
	if s.State() != StateOpen {
		s.log.Debug().Msg("frame dropped: session not open")
		return
	}
	s.tasks.Add(1)
	go s.dispatchMessage(raw)
}

func (s *Session) dispatchMessage(raw []byte) {
	defer s.tasks.Done()

	start := time.Now()
	log := s.log.With().Str("dispatch_id", shortID()).Logger()

	m, err := s.typ.messages.Decode(raw, s.typ.settings.ActionField)
	if err != nil {
		// Decode and validation failures are terminal for this message
		// only; the connection stays open.
		var ve *message.ValidationError
		if errors.As(err, &ve) {
			s.Send(message.FromValidation(ve))
		} else {
			s.Send(message.Error{Detail: "invalid message"})
		}
		log.Debug().Err(err).Msg("message rejected")
		observability.RecordMessage("invalid", observability.OutcomeInvalid, time.Since(start))
		return
	}

	action := m.Action()
	if s.typ.settings.Logged(action) {
		log.Info().Str("action", action).Msg("message received")
	}

	h, ok := s.typ.handlers[action]
	if !ok {
		// Registered reply-only type arriving inbound; treat like an
		// unknown discriminator.
		s.Send(message.FromValidation(message.Invalid(s.typ.settings.ActionField, "unknown value %q", action)))
		observability.RecordMessage(action, observability.OutcomeInvalid, time.Since(start))
		return
	}

	outcome := observability.OutcomeOK
	replies, herr := s.invokeMessageHandler(h, m)
	var ve *message.ValidationError
	switch {
	case errors.As(herr, &ve):
		// Handlers may reject on domain rules the schema cannot express;
		// those read like any other validation failure to the client.
		s.Send(message.FromValidation(ve))
		outcome = observability.OutcomeInvalid
	case herr != nil:
		// Full detail stays server-side; the client sees a generic error.
		log.Error().Err(herr).Str("action", action).Msg("handler failed")
		s.Send(message.Internal())
		outcome = observability.OutcomeError
	default:
		for _, r := range replies {
			s.Send(r)
		}
	}

	if s.typ.settings.SendCompletion {
		s.Send(message.RequestComplete{})
	}
	observability.RecordMessage(action, outcome, time.Since(start))
}

func (s *Session) invokeMessageHandler(h MessageHandler, m message.Message) (replies []message.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(s.ctx, s, m)
}

// DeliverBroadcast implements group.Member: serialize the delivery with
// this recipient's own settings, inject the per-recipient flags into the
// envelope, and follow with the broadcast completion sentinel when enabled.
func (s *Session) DeliverBroadcast(m message.Message, flags group.Flags) {
	if s.State() != StateOpen {
		return
	}
	raw, err := message.EncodeDelivery(m, s.typ.settings.ActionField, s.typ.settings.Camelize, message.DeliveryFlags{
		IsMine:    flags.IsMine,
		IsCurrent: flags.IsCurrent,
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", m.Action()).Msg("broadcast encode failed")
		return
	}
	if s.typ.settings.Logged(m.Action()) {
		s.log.Debug().Str("action", m.Action()).Bool("is_mine", flags.IsMine).Bool("is_current", flags.IsCurrent).Msg("broadcast delivered")
	}
	if err := s.transport.Send(raw); err != nil {
		return
	}
	if s.typ.settings.SendBroadcastCompletion {
		s.Send(message.BroadcastComplete{})
	}
}

// DeliverEvent implements group.Member: dispatch one out-of-band event
// through the event registry as its own task. Unlike inbound messages there
// is no client to report failures to — an unregistered name is logged and
// dropped, and handler errors are logged with full detail.
func (s *Session) DeliverEvent(ev group.Event) {
	if s.State() != StateOpen {
		return
	}
	s.tasks.Add(1)
	go s.dispatchEvent(ev)
}

func (s *Session) dispatchEvent(ev group.Event) {
	defer s.tasks.Done()

	h, ok := s.typ.events[ev.Name]
	if !ok {
		s.log.Warn().Str("event", ev.Name).Msg("no event handler registered, dropped")
		observability.RecordEvent(observability.OutcomeDropped)
		return
	}

	replies, err := s.invokeEventHandler(h, ev)
	if err != nil {
		// Events have no requester to answer: failures are a server-side
		// matter only, not even a completion sentinel goes out.
		s.log.Error().Err(err).Str("event", ev.Name).Msg("event handler failed")
		observability.RecordEvent(observability.OutcomeError)
		return
	}
	for _, r := range replies {
		s.Send(r)
	}
	observability.RecordEvent(observability.OutcomeOK)

	if s.typ.settings.SendCompletion {
		s.Send(message.RequestComplete{})
	}
}

func (s *Session) invokeEventHandler(h EventHandler, ev group.Event) (replies []message.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return h(s.ctx, s, ev)
}

// shortID is the per-dispatch correlation id used in logs.
func shortID() string {
	return uuid.NewString()[:8]
}
