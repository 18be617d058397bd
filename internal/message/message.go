// Package message defines the typed wire model: tagged messages, the
// discriminator registry used for validation, and the envelope codec.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is a typed wire message. Every concrete type declares exactly one
// fixed discriminator value via Action.
type Message interface {
	Action() string
}

// Validator is implemented by message types that carry field-level
// validation rules beyond JSON shape.
type Validator interface {
	Validate() error
}

// Payloader overrides the default payload serialization. Messages that do
// not implement it are marshaled as-is into the envelope payload.
type Payloader interface {
	WirePayload() any
}

// Factory produces a fresh zero value of a concrete message type, ready to
// be unmarshaled into.
type Factory func() Message

// Reserved discriminator values. Application types must not use these;
// Registry.Register rejects collisions at definition time.
const (
	ActionAuthentication    = "authentication"
	ActionError             = "error"
	ActionPing              = "ping"
	ActionPong              = "pong"
	ActionRequestComplete   = "request_complete"
	ActionBroadcastComplete = "broadcast_complete"
)

// DefaultActionField is the envelope field carrying the message
// discriminator. Events use DefaultEventField instead so the two kinds can
// never be confused on the wire.
const (
	DefaultActionField = "action"
	DefaultEventField  = "handler"
)

var reservedActions = map[string]bool{
	ActionAuthentication:    true,
	ActionError:             true,
	ActionPing:              true,
	ActionPong:              true,
	ActionRequestComplete:   true,
	ActionBroadcastComplete: true,
}

// Reserved reports whether action is one of the built-in discriminators.
func Reserved(action string) bool {
	return reservedActions[action]
}

// Ping is the built-in liveness probe. Every session type answers it with
// exactly one Pong.
type Ping struct{}

func (Ping) Action() string   { return ActionPing }
func (Ping) WirePayload() any { return nil }

// Pong is the reply to Ping.
type Pong struct{}

func (Pong) Action() string   { return ActionPong }
func (Pong) WirePayload() any { return nil }

// RequestComplete signals that every reply for one inbound message has been
// sent. It carries no payload.
type RequestComplete struct{}

func (RequestComplete) Action() string   { return ActionRequestComplete }
func (RequestComplete) WirePayload() any { return nil }

// BroadcastComplete signals that one broadcast operation produced no
// further deliveries to this recipient. It carries no payload.
type BroadcastComplete struct{}

func (BroadcastComplete) Action() string   { return ActionBroadcastComplete }
func (BroadcastComplete) WirePayload() any { return nil }

// Authentication carries the handshake verdict to the client.
type Authentication struct {
	StatusCode int `json:"status_code"`
	Data       any `json:"data"`
}

func (Authentication) Action() string { return ActionAuthentication }

// FieldError points a client at one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level failures for one inbound message.
// It doubles as the payload of the error reply.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a single-field ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

// Error is the client-facing failure reply. Exactly one of Fields or Detail
// is set: Fields for validation failures, Detail for everything else.
type Error struct {
	Fields []FieldError
	Detail string
}

func (Error) Action() string { return ActionError }

func (e Error) WirePayload() any {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	return map[string]string{"detail": e.Detail}
}

// FromValidation converts a ValidationError into its wire reply.
func FromValidation(ve *ValidationError) Error {
	return Error{Fields: ve.Fields}
}

// Internal is the sanitized reply for handler failures. No internal detail
// crosses the wire.
func Internal() Error {
	return Error{Detail: "internal server error"}
}

var envelopePayloadKey = "payload"

// Encode serializes m into the wire envelope {"<field>": tag, "payload": p}.
// When camelize is set, payload object keys are rewritten snake→camel at
// serialization time only.
func Encode(m Message, field string, camelize bool) ([]byte, error) {
	return encode(m, field, camelize, nil)
}

// DeliveryFlags annotate a broadcast delivery relative to one recipient.
// They ride on the envelope, never inside the payload.
type DeliveryFlags struct {
	IsMine    bool
	IsCurrent bool
}

// EncodeDelivery serializes a broadcast delivery: the regular envelope plus
// per-recipient is_mine / is_current flags.
func EncodeDelivery(m Message, field string, camelize bool, flags DeliveryFlags) ([]byte, error) {
	return encode(m, field, camelize, &flags)
}

func encode(m Message, field string, camelize bool, flags *DeliveryFlags) ([]byte, error) {
	var payload any = m
	if p, ok := m.(Payloader); ok {
		payload = p.WirePayload()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %q payload: %w", m.Action(), err)
	}
	if camelize {
		raw, err = CamelizeKeys(raw)
		if err != nil {
			return nil, fmt.Errorf("camelizing %q payload: %w", m.Action(), err)
		}
	}

	env := map[string]json.RawMessage{
		field:              mustMarshalString(m.Action()),
		envelopePayloadKey: raw,
	}
	if flags != nil {
		env["is_mine"] = mustMarshalBool(flags.IsMine)
		env["is_current"] = mustMarshalBool(flags.IsCurrent)
	}
	return json.Marshal(env)
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func mustMarshalBool(v bool) json.RawMessage {
	if v {
		return json.RawMessage("true")
	}
	return json.RawMessage("false")
}
