// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// IDToken is an oidc id_token.  It is carried along from the token response
// but never verified: user info is read from the user info endpoint.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// DefaultTokenExpirySkew defines a time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// Token is the result of a successful authorization code exchange.
type Token struct {
	accessToken AccessToken
	idToken     IDToken
	expiry      time.Time
	nowFunc     func() time.Time
}

// NewToken creates a new Token from an oauth2 token and an optional id_token.
// The oauth2 token must carry an access_token.
//
// Supported options: WithNow
func NewToken(i IDToken, t *oauth2.Token, opt ...Option) (*Token, error) {
	const op = "NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getTokenOpts(opt...)
	return &Token{
		accessToken: AccessToken(t.AccessToken),
		idToken:     i,
		expiry:      t.Expiry,
		nowFunc:     opts.withNowFunc,
	}, nil
}

// AccessToken returns the access_token.
func (t *Token) AccessToken() AccessToken { return t.accessToken }

// IDToken returns the id_token, if the provider returned one.
func (t *Token) IDToken() IDToken { return t.idToken }

// Expiry returns the access_token's expiration.  A zero value means the
// provider didn't say.
func (t *Token) Expiry() time.Time { return t.expiry }

// IsExpired returns true if the access_token has expired, using
// DefaultTokenExpirySkew.  A token without an expiry never expires.
func (t *Token) IsExpired() bool {
	if t.expiry.IsZero() {
		return false
	}
	return t.expiry.Round(0).Before(t.now().Add(DefaultTokenExpirySkew))
}

// Valid reports whether the token has an access_token which isn't expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// StaticTokenSource returns a TokenSource that always returns the
// access_token as a bearer token, whatever token_type the IdP returned.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(t.accessToken),
		TokenType:   "Bearer",
		Expiry:      t.expiry,
	})
}

func (t *Token) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now() // fallback to this default
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withNowFunc func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
