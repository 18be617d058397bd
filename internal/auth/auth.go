// Package auth defines the authentication boundary the session layer gates
// connections on: the one-shot handshake verdict, the Authenticator
// capability, and combinators for composing verdicts.
package auth

import (
	"context"
	"net/http"
	"net/url"
)

// Identity is an authenticated principal. A nil *Identity means anonymous;
// two anonymous parties are never considered equal.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Equal reports whether a and b are the same authenticated principal.
func Equal(a, b *Identity) bool {
	return a != nil && b != nil && a.ID == b.ID
}

// Request carries the connection context an Authenticator may inspect.
type Request struct {
	Path       string
	Query      url.Values
	Header     http.Header
	RemoteAddr string

	// Object is the resource the connection path pointed at, resolved by the
	// session type's ObjectResolver before the handshake runs. Nil when the
	// route carries no object key.
	Object any
}

// Result is the handshake verdict, consumed exactly once per connection.
type Result struct {
	Authenticated bool
	StatusCode    int
	StatusText    string
	Data          any
	Identity      *Identity
	BoundObject   any
}

// Granted builds a successful verdict for id.
func Granted(id *Identity) Result {
	return Result{Authenticated: true, StatusCode: http.StatusOK, Identity: id}
}

// Denied builds a failed verdict. data is surfaced to the client in the
// authentication message and may carry validation detail.
func Denied(status int, text string, data any) Result {
	return Result{StatusCode: status, StatusText: text, Data: data}
}

// Authenticator resolves one connection's handshake. It is called exactly
// once per connection, before any application message is dispatched.
type Authenticator interface {
	Authenticate(ctx context.Context, r *Request) (Result, error)
}

// Func adapts a plain function to the Authenticator interface.
type Func func(ctx context.Context, r *Request) (Result, error)

func (f Func) Authenticate(ctx context.Context, r *Request) (Result, error) {
	return f(ctx, r)
}

// ObjectResolver looks up the resource a connection path points at. Session
// types whose route carries an object key must configure one; that is
// checked at definition time.
type ObjectResolver interface {
	Resolve(ctx context.Context, key string) (any, error)
}

// ResolverFunc adapts a plain function to the ObjectResolver interface.
type ResolverFunc func(ctx context.Context, key string) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, key string) (any, error) {
	return f(ctx, key)
}

// AllowAny authenticates every connection as anonymous.
var AllowAny Authenticator = Func(func(context.Context, *Request) (Result, error) {
	return Granted(nil), nil
})
