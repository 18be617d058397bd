package auth

import "context"

// allOf requires every wrapped authenticator to grant. The first denial or
// error wins. Identity and bound object come from the first verdict that
// set them.
type allOf struct {
	auths []Authenticator
}

// AllOf composes authenticators with AND semantics.
func AllOf(auths ...Authenticator) Authenticator {
	return allOf{auths: auths}
}

func (a allOf) Authenticate(ctx context.Context, r *Request) (Result, error) {
	final := Granted(nil)
	for _, sub := range a.auths {
		res, err := sub.Authenticate(ctx, r)
		if err != nil {
			return Result{}, err
		}
		if !res.Authenticated {
			return res, nil
		}
		if final.Identity == nil {
			final.Identity = res.Identity
		}
		if final.BoundObject == nil {
			final.BoundObject = res.BoundObject
		}
	}
	return final, nil
}

// anyOf grants on the first successful verdict. When every wrapped
// authenticator denies, the last denial is returned.
type anyOf struct {
	auths []Authenticator
}

// AnyOf composes authenticators with OR semantics.
func AnyOf(auths ...Authenticator) Authenticator {
	return anyOf{auths: auths}
}

func (a anyOf) Authenticate(ctx context.Context, r *Request) (Result, error) {
	var last Result
	var lastErr error
	for _, sub := range a.auths {
		res, err := sub.Authenticate(ctx, r)
		if err != nil {
			lastErr = err
			continue
		}
		if res.Authenticated {
			return res, nil
		}
		last = res
		lastErr = nil
	}
	if lastErr != nil {
		return Result{}, lastErr
	}
	return last, nil
}
