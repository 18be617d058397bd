package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func grant(id *Identity) Authenticator {
	return Func(func(context.Context, *Request) (Result, error) {
		return Granted(id), nil
	})
}

func deny(status int) Authenticator {
	return Func(func(context.Context, *Request) (Result, error) {
		return Denied(status, "denied", nil), nil
	})
}

func fail(err error) Authenticator {
	return Func(func(context.Context, *Request) (Result, error) {
		return Result{}, err
	})
}

func TestEqual(t *testing.T) {
	u1 := &Identity{ID: "u1"}
	u1b := &Identity{ID: "u1", Name: "other display name"}
	u2 := &Identity{ID: "u2"}

	tests := []struct {
		name string
		a, b *Identity
		want bool
	}{
		{"SameID", u1, u1b, true},
		{"DifferentID", u1, u2, false},
		{"AnonymousLeft", nil, u1, false},
		{"AnonymousRight", u1, nil, false},
		{"BothAnonymous", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllOf(t *testing.T) {
	ctx := context.Background()
	u1 := &Identity{ID: "u1"}
	boom := errors.New("boom")

	t.Run("AllGrant", func(t *testing.T) {
		res, err := AllOf(grant(nil), grant(u1)).Authenticate(ctx, &Request{})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if !res.Authenticated {
			t.Error("expected authenticated verdict")
		}
		if res.Identity != u1 {
			t.Errorf("identity = %v, want first non-nil (%v)", res.Identity, u1)
		}
	})

	t.Run("FirstDenialWins", func(t *testing.T) {
		res, err := AllOf(grant(u1), deny(http.StatusForbidden), deny(http.StatusUnauthorized)).Authenticate(ctx, &Request{})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if res.Authenticated {
			t.Error("expected denial")
		}
		if res.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
		}
	})

	t.Run("ErrorPropagates", func(t *testing.T) {
		_, err := AllOf(grant(u1), fail(boom)).Authenticate(ctx, &Request{})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}

func TestAnyOf(t *testing.T) {
	ctx := context.Background()
	u1 := &Identity{ID: "u1"}
	boom := errors.New("boom")

	t.Run("FirstGrantWins", func(t *testing.T) {
		res, err := AnyOf(deny(http.StatusUnauthorized), grant(u1), deny(http.StatusForbidden)).Authenticate(ctx, &Request{})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if !res.Authenticated || res.Identity != u1 {
			t.Errorf("verdict = %+v, want grant for u1", res)
		}
	})

	t.Run("AllDeny", func(t *testing.T) {
		res, err := AnyOf(deny(http.StatusUnauthorized), deny(http.StatusForbidden)).Authenticate(ctx, &Request{})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if res.Authenticated {
			t.Error("expected denial")
		}
		if res.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want last denial %d", res.StatusCode, http.StatusForbidden)
		}
	})

	t.Run("ErrorThenGrant", func(t *testing.T) {
		res, err := AnyOf(fail(boom), grant(u1)).Authenticate(ctx, &Request{})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if !res.Authenticated {
			t.Error("expected grant after recoverable error")
		}
	})

	t.Run("OnlyErrors", func(t *testing.T) {
		_, err := AnyOf(fail(boom)).Authenticate(ctx, &Request{})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}
