// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/oidclogin/oidc"
)

// StateStore keeps a user's oidc.Request between the redirect to the IdP and
// the callback, so the callback's state can be validated.
//
// Implementations must be concurrently safe, since the store will likely be
// used within a concurrent http.Handler
type StateStore interface {
	// Write the request for the user's browser.
	Write(w http.ResponseWriter, req *http.Request, oidcRequest oidc.Request) error

	// Read the request written for the user's browser.  The returned request's
	// State() must match the state given, otherwise oidc.ErrInvalidState is
	// returned.
	Read(req *http.Request, state string) (oidc.Request, error)

	// Clear the request, since a state may only be used once.
	Clear(w http.ResponseWriter, req *http.Request)
}

// DefaultStateCookieName is the name of the cookie used by CookieStateStore.
const DefaultStateCookieName = "oidc_state"

// CookieStateStore implements the StateStore interface by keeping the request
// in a short-lived HttpOnly, SameSite=Lax cookie which expires with the
// request.  Lax is required since the callback is a cross-site top level
// navigation from the IdP.
type CookieStateStore struct {
	name   string
	path   string
	secure bool
}

// ensure that CookieStateStore implements the StateStore interface
var _ StateStore = (*CookieStateStore)(nil)

// NewCookieStateStore creates a new CookieStateStore.
//
// Supported options: WithCookieName, WithCookiePath, WithSecureCookie
func NewCookieStateStore(opt ...oidc.Option) *CookieStateStore {
	opts := getCookieOpts(opt...)
	return &CookieStateStore{
		name:   opts.withName,
		path:   opts.withPath,
		secure: opts.withSecure,
	}
}

// Write the request into the state cookie.
func (s *CookieStateStore) Write(w http.ResponseWriter, req *http.Request, oidcRequest oidc.Request) error {
	const op = "CookieStateStore.Write"
	switch {
	case w == nil:
		return fmt.Errorf("%s: response writer is nil: %w", op, oidc.ErrNilParameter)
	case oidcRequest == nil:
		return fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	case oidcRequest.State() == "":
		return fmt.Errorf("%s: request state is empty: %w", op, oidc.ErrInvalidParameter)
	case oidcRequest.IsExpired():
		return fmt.Errorf("%s: request is expired: %w", op, oidc.ErrExpiredRequest)
	}
	v := url.Values{}
	v.Set("state", oidcRequest.State())
	v.Set("redirect", oidcRequest.RedirectURL())
	v.Set("exp", strconv.FormatInt(oidcRequest.Expiration().Unix(), 10))
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(v.Encode())),
		Path:     s.path,
		Expires:  oidcRequest.Expiration(),
		HttpOnly: true,
		Secure:   s.secure || (req != nil && req.TLS != nil),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read the request from the state cookie.  A missing or malformed cookie, a
// state which doesn't match or an expired request are all
// oidc.ErrInvalidState.
func (s *CookieStateStore) Read(req *http.Request, state string) (oidc.Request, error) {
	const op = "CookieStateStore.Read"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	}
	if state == "" {
		return nil, fmt.Errorf("%s: callback state is empty: %w", op, oidc.ErrInvalidState)
	}
	c, err := req.Cookie(s.name)
	if err != nil {
		return nil, fmt.Errorf("%s: state cookie not found: %w", op, oidc.ErrInvalidState)
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: state cookie is not valid base64: %w", op, oidc.ErrInvalidState)
	}
	v, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: state cookie is malformed: %w", op, oidc.ErrInvalidState)
	}
	if subtle.ConstantTimeCompare([]byte(v.Get("state")), []byte(state)) != 1 {
		return nil, fmt.Errorf("%s: callback state does not match: %w", op, oidc.ErrInvalidState)
	}
	exp, err := strconv.ParseInt(v.Get("exp"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: state cookie expiration is malformed: %w", op, oidc.ErrInvalidState)
	}
	expireIn := time.Until(time.Unix(exp, 0))
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrInvalidState, oidc.ErrExpiredRequest)
	}
	r, err := oidc.NewRequest(expireIn, v.Get("redirect"), oidc.WithState(state))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrInvalidState, err)
	}
	return r, nil
}

// Clear the state cookie.
func (s *CookieStateStore) Clear(w http.ResponseWriter, req *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     s.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure || (req != nil && req.TLS != nil),
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieOptions is the set of available options for CookieStateStore
type cookieOptions struct {
	withName   string
	withPath   string
	withSecure bool
}

// cookieDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func cookieDefaults() cookieOptions {
	return cookieOptions{
		withName: DefaultStateCookieName,
		withPath: "/",
	}
}

// getCookieOpts gets the defaults and applies the opt overrides passed in
func getCookieOpts(opt ...oidc.Option) cookieOptions {
	opts := cookieDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieName provides an optional name for the state cookie.
func WithCookieName(name string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && name != "" {
			o.withName = name
		}
	}
}

// WithCookiePath provides an optional path for the state cookie.  It must
// include the callback's path.
func WithCookiePath(path string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && path != "" {
			o.withPath = path
		}
	}
}

// WithSecureCookie provides an optional flag to always mark the state cookie
// Secure, which is needed when TLS is terminated by a proxy.
func WithSecureCookie(secure bool) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withSecure = secure
		}
	}
}
