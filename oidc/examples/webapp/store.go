// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidclogin/oidc"
	"github.com/hashicorp/oidclogin/oidc/callback"
)

const sessionCookieName = "session"

var errNotFound = errors.New("not found")

// user is a local user record.
type user struct {
	UserID        string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Administrator bool      `json:"administrator"`
	LastLogin     time.Time `json:"last_login"`
}

// ID implements callback.User
func (u *user) ID() string { return u.UserID }

// auditEvent is an entry of the audit log.
type auditEvent struct {
	Action     string
	UserID     string
	RemoteAddr string
	At         time.Time
}

// memStore is an in memory user, session and audit store.  It implements
// callback.UserResolver, callback.SessionEstablisher and
// callback.ActionLogger.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*user // by email
	sessions map[string]string
	audit    []auditEvent
	logger   hclog.Logger
}

var (
	_ callback.UserResolver       = (*memStore)(nil)
	_ callback.SessionEstablisher = (*memStore)(nil)
	_ callback.ActionLogger       = (*memStore)(nil)
)

func newMemStore(logger hclog.Logger) *memStore {
	return &memStore{
		users:    map[string]*user{},
		sessions: map[string]string{},
		logger:   logger,
	}
}

// Login resolves or creates the user for the email.
func (s *memStore) Login(_ context.Context, email, displayName string, administrator bool) (callback.User, error) {
	const op = "memStore.Login"
	if email == "" {
		return nil, fmt.Errorf("%s: email is empty", op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		id, err := oidc.NewID(oidc.WithPrefix("u"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		u = &user{UserID: id, Email: email}
		s.users[email] = u
		s.logger.Info("user created", "op", op, "user_id", id, "email", email)
	}
	u.DisplayName = displayName
	u.Administrator = administrator
	u.LastLogin = time.Now()
	cp := *u
	return &cp, nil
}

// Establish creates a session for the user and sets its cookie.
func (s *memStore) Establish(w http.ResponseWriter, req *http.Request, u callback.User) error {
	const op = "memStore.Establish"
	id, err := oidc.NewID(oidc.WithPrefix("s"))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	s.sessions[id] = u.ID()
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// LogLogin appends a login event to the audit log.
func (s *memStore) LogLogin(req *http.Request, u callback.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, auditEvent{
		Action:     "login",
		UserID:     u.ID(),
		RemoteAddr: req.RemoteAddr,
		At:         time.Now(),
	})
}

// sessionUser returns the user of the request's session.
func (s *memStore) sessionUser(req *http.Request) (*user, error) {
	c, err := req.Cookie(sessionCookieName)
	if err != nil {
		return nil, errNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.sessions[c.Value]
	if !ok {
		return nil, errNotFound
	}
	for _, u := range s.users {
		if u.UserID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (s *memStore) auditLog() []auditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditEvent{}, s.audit...)
}
