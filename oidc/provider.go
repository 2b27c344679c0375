// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// DefaultRequestExpiry is how long a user has to complete the login at the
// IdP when NewAuthURL creates the Request.
const DefaultRequestExpiry = 5 * time.Minute

// Endpoints are the provider's resolved endpoints.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Provider provides integration with an OIDC provider using the 3-legged
// authorization code flow.  It's immutable once created and safe for
// concurrent use by the callbacks of many users.
type Provider struct {
	config    *Config
	provider  *oidc.Provider
	client    *http.Client
	endpoints Endpoints
	scopes    []string
	policy    GroupPolicy
	logger    hclog.Logger

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like fetching the discovery document.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider.  When the config has an
// Issuer, initializing the provider includes an http request to the issuer's
// discovery document and any failure is returned as ErrProviderDiscovery.
// Otherwise the config's explicit endpoints are used.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	// the provider keeps its own copy, so later changes to c don't affect it.
	cp := *c
	cp.UILocales = slices.Clone(c.UILocales)
	c = &cp

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config: c,
		scopes: c.scopes(),
		policy: GroupPolicy{
			AdminGroup: c.AdminGroup,
			AllowGroup: c.AllowGroup,
		},
		logger:              c.logger(),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client
	oidcCtx := HTTPClientContext(p.backgroundCtx, client)

	switch {
	case c.usesDiscovery():
		if c.hasExplicitEndpoints() {
			p.logger.Warn("issuer is configured, ignoring explicit endpoints", "op", op, "issuer", c.Issuer)
		}
		provider, err := oidc.NewProvider(oidcCtx, c.Issuer) // makes http req to issuer for discovery
		if err != nil {
			p.Done() // release the backgroundCtxCancel resources
			return nil, fmt.Errorf("%s: unable to discover provider %q: %w: %w", op, c.Issuer, ErrProviderDiscovery, err)
		}
		endpoints, err := discoveredEndpoints(provider)
		if err != nil {
			p.Done()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.provider = provider
		p.endpoints = endpoints
	default:
		p.endpoints = Endpoints{
			AuthURL:     c.AuthURL,
			TokenURL:    c.TokenURL,
			UserInfoURL: c.UserInfoURL,
		}
		pc := &oidc.ProviderConfig{
			AuthURL:     c.AuthURL,
			TokenURL:    c.TokenURL,
			UserInfoURL: c.UserInfoURL,
		}
		p.provider = pc.NewProvider(oidcCtx)
	}

	p.logger.Debug("provider initialized",
		"op", op,
		"auth_url", p.endpoints.AuthURL,
		"token_url", p.endpoints.TokenURL,
		"userinfo_url", p.endpoints.UserInfoURL,
		"scopes", p.scopes,
	)
	return p, nil
}

// discoveredEndpoints reads the endpoints from the provider's discovery
// document.  All three are required.
func discoveredEndpoints(provider *oidc.Provider) (Endpoints, error) {
	const op = "discoveredEndpoints"
	var doc struct {
		AuthURL     string `json:"authorization_endpoint"`
		TokenURL    string `json:"token_endpoint"`
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&doc); err != nil {
		return Endpoints{}, fmt.Errorf("%s: unable to read discovery document: %w: %w", op, ErrProviderDiscovery, err)
	}
	var missing []string
	if doc.AuthURL == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if doc.TokenURL == "" {
		missing = append(missing, "token_endpoint")
	}
	if doc.UserInfoURL == "" {
		missing = append(missing, "userinfo_endpoint")
	}
	if len(missing) > 0 {
		return Endpoints{}, fmt.Errorf("%s: discovery document is missing %s: %w", op, strings.Join(missing, ", "), ErrProviderDiscovery)
	}
	return Endpoints{
		AuthURL:     doc.AuthURL,
		TokenURL:    doc.TokenURL,
		UserInfoURL: doc.UserInfoURL,
	}, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	// checking for nil here prevents a panic when developers neglect to check
	// the for an error before deferring a call to p.Done():
	// p, err := NewProvider(...)
	// defer p.Done()
	// if err != nil { ... }
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// ForceLogin reports whether the web application should skip its own login
// form and redirect users straight to the IdP.
func (p *Provider) ForceLogin() bool { return p.config.ForceLogin }

// CallbackURL is the redirect_uri sent in every authorization request.
func (p *Provider) CallbackURL() string { return p.config.CallbackURL }

// BaseURL is the web application's base URL.
func (p *Provider) BaseURL() string { return p.config.BaseURL }

// Endpoints returns the provider's resolved endpoints.
func (p *Provider) Endpoints() Endpoints { return p.endpoints }

// Scopes returns a copy of the scopes sent in every authorization request.
func (p *Provider) Scopes() []string {
	scopes := make([]string, len(p.scopes))
	copy(scopes, p.scopes)
	return scopes
}

// oauth2Config builds the oauth2 config for the redirectURL.  The client
// authenticates to the token endpoint using HTTP Basic authentication.
func (p *Provider) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.endpoints.AuthURL,
			TokenURL:  p.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: p.scopes,
	}
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with an IdP.  The URL carries response_type=code,
// the client ID, the scopes, the request's redirect URL and state.
//
// The caller must keep the request's state (see NewRequest) so the callback
// can be matched to it.
func (p *Provider) AuthURL(ctx context.Context, r Request) (string, error) {
	const op = "Provider.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.IsExpired() {
		return "", fmt.Errorf("%s: request is expired: %w", op, ErrExpiredRequest)
	}
	if r.State() == "" {
		return "", fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	}
	if r.RedirectURL() == "" {
		return "", fmt.Errorf("%s: request redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	var authCodeOpts []oauth2.AuthCodeOption
	if len(p.config.UILocales) > 0 {
		locales := make([]string, 0, len(p.config.UILocales))
		for _, l := range p.config.UILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	return p.oauth2Config(r.RedirectURL()).AuthCodeURL(r.State(), authCodeOpts...), nil
}

// NewAuthURL creates a new Request for the callback URL, using
// DefaultRequestExpiry, and returns it with its auth URL.
func (p *Provider) NewAuthURL(ctx context.Context) (*Req, string, error) {
	const op = "Provider.NewAuthURL"
	r, err := NewRequest(DefaultRequestExpiry, p.CallbackURL())
	if err != nil {
		return nil, "", fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	u, err := p.AuthURL(ctx, r)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return r, u, nil
}

// Exchange will request a token from the token endpoint, using the
// authorizationCode it received in an earlier successful authentication
// response.  The redirectURL must be the exact redirect_uri the user was sent
// to, since the IdP compares them.
//
// The client authenticates with HTTP Basic authentication.  Any failure,
// including a response without an access_token, is ErrTokenExchangeFailed.
func (p *Provider) Exchange(ctx context.Context, authorizationCode string, redirectURL string) (*Token, error) {
	const op = "Provider.Exchange"
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}

	oauth2Token, err := p.oauth2Config(redirectURL).Exchange(HTTPClientContext(ctx, p.client), authorizationCode)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, fmt.Errorf("%s: provider returned %q (%s): %w", op, retrieveErr.ErrorCode, retrieveErr.ErrorDescription, ErrTokenExchangeFailed)
		}
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrTokenExchangeFailed, err)
	}

	// the id_token is kept, but not verified
	idToken, _ := oauth2Token.Extra("id_token").(string)
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenExchangeFailed, err)
	}
	return t, nil
}

// UserInfo gets the user's claims from the user info endpoint using the
// token's access_token as a bearer token, and returns the user's Identity.
// Any failure is ErrUserInfoFetchFailed.
func (p *Provider) UserInfo(ctx context.Context, t *Token) (*Identity, error) {
	const op = "Provider.UserInfo"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken() == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}

	userinfo, err := p.provider.UserInfo(HTTPClientContext(ctx, p.client), t.StaticTokenSource())
	if err != nil {
		return nil, fmt.Errorf("%s: provider UserInfo request failed: %w: %w", op, ErrUserInfoFetchFailed, err)
	}
	var claims map[string]interface{}
	if err := userinfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: failed to get UserInfo claims: %w: %w", op, ErrUserInfoFetchFailed, err)
	}
	id, err := NewIdentity(claims, p.config.groupsClaim())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// Authorize decides whether the identity may access the web application using
// the configured admin and allow groups, and sets its IsAdministrator.
func (p *Provider) Authorize(id *Identity) error {
	const op = "Provider.Authorize"
	if id == nil {
		return fmt.Errorf("%s: identity is nil: %w", op, ErrNilParameter)
	}
	administrator, err := p.policy.Authorize(id.Groups)
	id.IsAdministrator = administrator
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
