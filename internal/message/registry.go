package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNilFactory      = errors.New("message factory is nil")
	ErrDuplicateAction = errors.New("action already registered")
	ErrReservedAction  = errors.New("action is reserved")
)

// Registry maps discriminator values to message types for one session type.
// It is built once at definition time and read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a message type keyed by its declared discriminator.
// Duplicate and reserved discriminators fail here, before any connection is
// ever accepted.
func (r *Registry) Register(f Factory) error {
	if f == nil {
		return ErrNilFactory
	}
	action := f().Action()
	if Reserved(action) {
		return fmt.Errorf("%w: %q", ErrReservedAction, action)
	}
	if _, ok := r.factories[action]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, action)
	}
	r.factories[action] = f
	return nil
}

// register is the unchecked path used for built-ins (ping).
func (r *Registry) register(f Factory) {
	r.factories[f().Action()] = f
}

// RegisterBuiltins installs the reserved inbound types. Currently only Ping
// arrives from clients; the rest are outbound-only.
func (r *Registry) RegisterBuiltins() {
	r.register(func() Message { return &Ping{} })
}

// Resolve returns the factory for a discriminator value.
func (r *Registry) Resolve(action string) (Factory, bool) {
	f, ok := r.factories[action]
	return f, ok
}

// Actions returns the registered discriminator values in sorted order.
func (r *Registry) Actions() []string {
	out := make([]string, 0, len(r.factories))
	for a := range r.factories {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Decode parses one wire envelope: extract the discriminator from field,
// resolve the concrete type, strictly unmarshal the payload into it, and
// run its validation hook. Every failure on this path is a ValidationError
// so the caller can surface field-precise detail to the client.
func (r *Registry) Decode(raw []byte, field string) (Message, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Invalid("", "invalid JSON: %v", err)
	}

	tagRaw, ok := env[field]
	if !ok {
		return nil, Invalid(field, "field is required")
	}
	var action string
	if err := json.Unmarshal(tagRaw, &action); err != nil {
		return nil, Invalid(field, "must be a string")
	}
	if action == "" {
		return nil, Invalid(field, "must not be empty")
	}

	f, ok := r.factories[action]
	if !ok {
		return nil, Invalid(field, "unknown value %q", action)
	}

	m := f()
	if payload, ok := env[envelopePayloadKey]; ok && !bytes.Equal(payload, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(m); err != nil {
			return nil, Invalid(envelopePayloadKey, "invalid payload for %q: %v", action, err)
		}
	}

	if v, ok := m.(Validator); ok {
		if err := v.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return nil, ve
			}
			return nil, Invalid(envelopePayloadKey, "%v", err)
		}
	}
	return m, nil
}
