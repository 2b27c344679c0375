// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// Request represents one user's authorization request: the state sent to the
// IdP, the redirect URL the IdP sends the user back to and when the attempt
// expires.
//
// The state is an opaque, unpredictable value used to match the callback to
// the request and prevent CSRF.  It isn't persisted by this package: callers
// must keep it (in a short-lived cookie for example) and compare it with the
// state returned in the callback.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain state
	// between the authorization request and the callback.
	State() string

	// RedirectURL is the URL where the IdP sends the user's browser after the
	// authentication.
	RedirectURL() string

	// Expiration of the request.
	Expiration() time.Time

	// IsExpired returns true if the request has expired.
	IsExpired() bool
}

// Req represents the oidc request used for oidc flows and implements the
// Request interface.
type Req struct {
	state       string
	redirectURL string
	expiration  time.Time
	nowFunc     func() time.Time
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req) with a fresh, random state.
//
// Supported options: WithState, WithNow
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	state := opts.withState
	if state == "" {
		var err error
		state, err = NewID(WithPrefix("st"))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
		}
	}
	r := &Req{
		state:       state,
		redirectURL: redirectURL,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// Expiration implements the Request.Expiration() interface function.
func (r *Req) Expiration() time.Time { return r.expiration }

// IsExpired implements the Request.IsExpired() interface function.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now())
}

func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withState   string
	withNowFunc func() time.Time
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithState provides an optional state for the request, instead of a random
// one.  It's meant for tests and for rebuilding a stored request.
func WithState(s string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withState = s
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is for: Request, Token
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		}
	}
}
