// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidclogin_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/oidclogin/oidc"
	"github.com/hashicorp/oidclogin/oidc/callback"
)

type exampleUser string

func (u exampleUser) ID() string { return string(u) }

type exampleStore struct{}

func (exampleStore) Login(_ context.Context, email, _ string, _ bool) (callback.User, error) {
	return exampleUser(email), nil
}

func (exampleStore) Establish(w http.ResponseWriter, _ *http.Request, u callback.User) error {
	http.SetCookie(w, &http.Cookie{Name: "session", Value: u.ID(), HttpOnly: true})
	return nil
}

func (exampleStore) LogLogin(_ *http.Request, u callback.User) {
	fmt.Println("login: ", u.ID())
}

func Example_oidc() {
	// Create a new Config which discovers the IdP's endpoints, only allows
	// members of the users group, and makes members of the admins group
	// administrators.
	pc, err := oidc.NewConfig(
		"https://your-app.com",
		"your_client_id",
		"your_client_secret",
		oidc.WithIssuer("https://your-issuer.com"),
		oidc.WithAdminGroup("admins"),
		oidc.WithAllowGroup("users"),
		oidc.WithHTTPTimeout(10*time.Second),
	)
	if err != nil {
		// handle error
	}

	// Create a provider
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// Create a callback Handler using the web application's user store,
	// sessions and audit log.
	store := exampleStore{}
	h, err := callback.NewHandler(p, store, store, store, callback.NewCookieStateStore())
	if err != nil {
		// handle error
	}
	authCodeCallback, err := callback.AuthCode(h, callback.DefaultSuccess, callback.DefaultError)
	if err != nil {
		// handle error
	}

	// Skip the username/password form when the IdP is the only way to login
	if p.ForceLogin() {
		http.Handle("/", http.RedirectHandler("/login", http.StatusFound))
	}
	http.HandleFunc("/login", h.Login())
	http.HandleFunc(oidc.CallbackPath, authCodeCallback)
}
