// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidclogin/oidc"
)

// SuccessQuery is the query marker added to the base URL users are sent back
// to after a successful login.
const SuccessQuery = "openid=success"

// Provider is the part of an *oidc.Provider the Handler uses.
type Provider interface {
	CallbackURL() string
	BaseURL() string
	NewAuthURL(ctx context.Context) (*oidc.Req, string, error)
	Exchange(ctx context.Context, authorizationCode string, redirectURL string) (*oidc.Token, error)
	UserInfo(ctx context.Context, t *oidc.Token) (*oidc.Identity, error)
	Authorize(id *oidc.Identity) error
}

// ensure that *oidc.Provider implements the Provider interface
var _ Provider = (*oidc.Provider)(nil)

// AuthenError is returned by Handler.Handle when the IdP sent an
// authentication error response instead of a code.  It's
// oidc.ErrAuthorizationDenied.
type AuthenError struct {
	Response *AuthenErrorResponse
}

// Error returns the IdP's error and its description.
func (e *AuthenError) Error() string {
	if e.Response == nil {
		return oidc.ErrAuthorizationDenied.Error()
	}
	if e.Response.Description == "" {
		return fmt.Sprintf("%s: %s", oidc.ErrAuthorizationDenied, e.Response.Error)
	}
	return fmt.Sprintf("%s: %s: %s", oidc.ErrAuthorizationDenied, e.Response.Error, e.Response.Description)
}

// Unwrap returns oidc.ErrAuthorizationDenied
func (e *AuthenError) Unwrap() error { return oidc.ErrAuthorizationDenied }

// Handler processes the IdP's authorization code callbacks.  It holds no
// mutable state and is safe for concurrent use.
type Handler struct {
	provider Provider
	users    UserResolver
	sessions SessionEstablisher
	actions  ActionLogger
	states   StateStore
	logger   hclog.Logger
}

// NewHandler creates a new Handler.  All of its collaborators are required.
//
// Supported options: WithLogger
func NewHandler(p Provider, users UserResolver, sessions SessionEstablisher, actions ActionLogger, states StateStore, opt ...oidc.Option) (*Handler, error) {
	const op = "NewHandler"
	switch {
	case isNil(p):
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrNilParameter)
	case users == nil:
		return nil, fmt.Errorf("%s: user resolver is nil: %w", op, oidc.ErrNilParameter)
	case sessions == nil:
		return nil, fmt.Errorf("%s: session establisher is nil: %w", op, oidc.ErrNilParameter)
	case actions == nil:
		return nil, fmt.Errorf("%s: action logger is nil: %w", op, oidc.ErrNilParameter)
	case states == nil:
		return nil, fmt.Errorf("%s: state store is nil: %w", op, oidc.ErrNilParameter)
	}
	if _, err := successURL(p.BaseURL()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getHandlerOpts(opt...)
	return &Handler{
		provider: p,
		users:    users,
		sessions: sessions,
		actions:  actions,
		states:   states,
		logger:   opts.withLogger,
	}, nil
}

// isNil catches a nil *oidc.Provider passed as a Provider.
func isNil(p Provider) bool {
	if p == nil {
		return true
	}
	op, ok := p.(*oidc.Provider)
	return ok && op == nil
}

// Login returns a http.HandlerFunc which starts a login: it creates a new
// oidc.Request, writes it to the StateStore and redirects the user's browser
// to the IdP.
func (h *Handler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "Handler.Login"
		oidcRequest, authURL, err := h.provider.NewAuthURL(req.Context())
		if err != nil {
			h.logger.Error("unable to create auth URL", "op", op, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if err := h.states.Write(w, req, oidcRequest); err != nil {
			h.logger.Error("unable to write state", "op", op, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, req, authURL, http.StatusFound)
	}
}

// Handle processes one authorization code callback and returns the URL the
// user's browser should be redirected to.  The state is cleared from the
// StateStore whatever the outcome.
//
// Errors returned are, in the order they're checked:
//
//	oidc.ErrAuthorizationDenied (as *AuthenError): the IdP returned an error
//	oidc.ErrMalformedCallback: no code
//	oidc.ErrInvalidState: missing, mismatched or expired state
//	oidc.ErrTokenExchangeFailed
//	oidc.ErrUserInfoFetchFailed
//	oidc.ErrGroupAuthorizationDenied
//	oidc.ErrStorage: the UserResolver failed or returned no user
//	oidc.ErrSessionFailed: the SessionEstablisher failed
func (h *Handler) Handle(ctx context.Context, w http.ResponseWriter, req *http.Request) (*url.URL, error) {
	const op = "Handler.Handle"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	}
	// get parameters from either the body or query parameters.
	// FormValue prioritizes body values, if found.
	reqState := req.FormValue("state")
	u, err := h.handle(ctx, w, req, reqState)
	if err != nil {
		h.logger.Warn("oidc callback failed", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (h *Handler) handle(ctx context.Context, w http.ResponseWriter, req *http.Request, reqState string) (*url.URL, error) {
	defer h.states.Clear(w, req)

	if e := req.FormValue("error"); e != "" {
		return nil, &AuthenError{
			Response: &AuthenErrorResponse{
				Error:       e,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			},
		}
	}

	code := req.FormValue("code")
	if code == "" {
		return nil, fmt.Errorf("callback has no authorization code: %w", oidc.ErrMalformedCallback)
	}

	oidcRequest, err := h.states.Read(req, reqState)
	if err != nil {
		return nil, fmt.Errorf("unable to read state: %w: %w", oidc.ErrInvalidState, err)
	}
	switch {
	case oidcRequest == nil:
		// could have expired or it could be invalid... no way to know for sure
		return nil, fmt.Errorf("authentication state not found: %w", oidc.ErrInvalidState)
	case oidcRequest.State() != reqState:
		return nil, fmt.Errorf("authentication state and response state are not equal: %w", oidc.ErrInvalidState)
	case oidcRequest.IsExpired():
		return nil, fmt.Errorf("authentication state is expired: %w: %w", oidc.ErrInvalidState, oidc.ErrExpiredRequest)
	}

	// the redirect_uri must match the one the user was sent with, so an
	// explicit one is echoed verbatim.
	redirectURL := req.FormValue("redirect_uri")
	if redirectURL == "" {
		redirectURL = h.provider.CallbackURL()
	}

	token, err := h.provider.Exchange(ctx, code, redirectURL)
	if err != nil {
		return nil, err
	}

	id, err := h.provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := h.provider.Authorize(id); err != nil {
		return nil, err
	}

	user, err := h.users.Login(ctx, id.Email, id.DisplayName, id.IsAdministrator)
	if err != nil {
		return nil, fmt.Errorf("unable to login %q: %w: %w", id.Email, oidc.ErrStorage, err)
	}
	if user == nil {
		return nil, fmt.Errorf("no user for %q: %w", id.Email, oidc.ErrStorage)
	}

	if err := h.sessions.Establish(w, req, user); err != nil {
		return nil, fmt.Errorf("unable to establish session: %w: %w", oidc.ErrSessionFailed, err)
	}

	h.actions.LogLogin(req, user)
	h.logger.Info("oidc login", "email", id.Email, "user_id", user.ID(), "administrator", id.IsAdministrator)

	return successURL(h.provider.BaseURL())
}

// successURL is the base URL with the SuccessQuery.
func successURL(baseURL string) (*url.URL, error) {
	const op = "successURL"
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: base URL %q is invalid: %w", op, baseURL, oidc.ErrInvalidParameter)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: base URL %q is not absolute: %w", op, baseURL, oidc.ErrInvalidParameter)
	}
	u.RawQuery = SuccessQuery
	u.Fragment = ""
	return u, nil
}

// handlerOptions is the set of available options for Handler
type handlerOptions struct {
	withLogger hclog.Logger
}

// handlerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func handlerDefaults() handlerOptions {
	return handlerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getHandlerOpts gets the defaults and applies the opt overrides passed in
func getHandlerOpts(opt ...oidc.Option) handlerOptions {
	opts := handlerDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Handler.
func WithLogger(l hclog.Logger) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
