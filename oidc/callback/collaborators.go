// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"net/http"
)

// User is the web application's local user record, as returned by a
// UserResolver.
type User interface {
	// ID is the user's local identifier.
	ID() string
}

// UserResolver resolves or creates the local user for an authenticated
// identity.  Implementations must be concurrently safe.
type UserResolver interface {
	// Login returns the local user for the email, creating it when needed and
	// updating its display name and administrator flag.  Any error is treated
	// as a storage error.
	Login(ctx context.Context, email, displayName string, administrator bool) (User, error)
}

// SessionEstablisher binds the current request's session to the user, for
// example by issuing a session cookie using the http.ResponseWriter.  It must
// not write the response body.
type SessionEstablisher interface {
	Establish(w http.ResponseWriter, req *http.Request, u User) error
}

// ActionLogger records audit events.
type ActionLogger interface {
	// LogLogin records a successful login.
	LogLogin(req *http.Request, u User)
}
