// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed = errors.New("id generation failed")
	ErrExpiredRequest    = errors.New("request is expired")
	ErrInvalidState      = errors.New("invalid state")
	ErrSessionFailed     = errors.New("session could not be established")

	// ErrConfiguration means the provider config is incomplete or malformed.
	// The provider must not be used.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrProviderDiscovery means the issuer's discovery document could not be
	// fetched or didn't contain the required endpoints.  It is fatal at
	// startup.
	ErrProviderDiscovery = errors.New("provider discovery failed")

	// ErrAuthorizationDenied means the IdP returned an authentication error
	// response, e.g. the user cancelled the login.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrMalformedCallback means the callback didn't carry an authorization
	// code.
	ErrMalformedCallback = errors.New("malformed callback")

	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrUserInfoFetchFailed = errors.New("user info request failed")

	// ErrGroupAuthorizationDenied means the user authenticated with the IdP
	// but their groups don't permit access.
	ErrGroupAuthorizationDenied = errors.New("groups do not permit access")

	// ErrStorage means the local user record could not be resolved or
	// created.
	ErrStorage = errors.New("storage error")
)
