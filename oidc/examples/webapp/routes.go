// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/oidclogin/oidc"
	"github.com/hashicorp/oidclogin/oidc/callback"
)

// newRouter sets up the web application's routes.
func newRouter(p *oidc.Provider, h *callback.Handler, store *memStore) (chi.Router, error) {
	const op = "newRouter"
	authCode, err := callback.AuthCode(h, callback.DefaultSuccess, callback.DefaultError)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", homeHandler(p, store))
	r.Get("/login", h.Login())
	r.Get(oidc.CallbackPath, authCode)
	r.Get("/api/session", sessionHandler(p, store))
	return r, nil
}

func homeHandler(p *oidc.Provider, store *memStore) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		u, err := store.sessionUser(req)
		switch {
		case errors.Is(err, errNotFound) && p.ForceLogin():
			http.Redirect(w, req, "/login", http.StatusFound)
		case errors.Is(err, errNotFound):
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, `<html><body><form action="/login"><button>Login with OIDC</button></form></body></html>`)
		case err != nil:
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<html><body>Hello %s (administrator: %t)</body></html>", u.DisplayName, u.Administrator)
		}
	}
}

// sessionHandler returns the session's user, and whether the login form
// should be skipped.
func sessionHandler(p *oidc.Provider, store *memStore) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body := struct {
			ForceLogin bool  `json:"force_login"`
			User       *user `json:"user,omitempty"`
		}{
			ForceLogin: p.ForceLogin(),
		}
		u, err := store.sessionUser(req)
		switch {
		case err == nil:
			body.User = u
		case !errors.Is(err, errNotFound):
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&body)
	}
}
