// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hashicorp/oidclogin/oidc"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL     = "https://example.com"
	testCallbackURL = testBaseURL + oidc.CallbackPath
)

var errTestCollaborator = errors.New("test collaborator failure")

type testUser struct {
	id            string
	email         string
	displayName   string
	administrator bool
}

func (u *testUser) ID() string { return u.id }

// testUserResolver is a UserResolver which records its logins.
type testUserResolver struct {
	mu     sync.Mutex
	logins  []*testUser
	err     error
	nilUser bool
}

func (r *testUserResolver) Login(_ context.Context, email, displayName string, administrator bool) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.nilUser {
		return nil, nil
	}
	u := &testUser{
		id:            "u_" + email,
		email:         email,
		displayName:   displayName,
		administrator: administrator,
	}
	r.logins = append(r.logins, u)
	return u, nil
}

func (r *testUserResolver) Logins() []*testUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*testUser{}, r.logins...)
}

// testSessions is a SessionEstablisher which sets a session cookie.
type testSessions struct {
	mu    sync.Mutex
	users []User
	err   error
}

func (s *testSessions) Establish(w http.ResponseWriter, _ *http.Request, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.users = append(s.users, u)
	http.SetCookie(w, &http.Cookie{Name: "session", Value: u.ID(), Path: "/", HttpOnly: true})
	return nil
}

func (s *testSessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// testActions is an ActionLogger which records its logins.
type testActions struct {
	mu     sync.Mutex
	logins []User
}

func (a *testActions) LogLogin(_ *http.Request, u User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, u)
}

func (a *testActions) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logins)
}

// testStateStore is a StateStore which always reads the same request.
type testStateStore struct {
	request oidc.Request
	err     error
}

func (s *testStateStore) Write(http.ResponseWriter, *http.Request, oidc.Request) error { return s.err }
func (s *testStateStore) Read(*http.Request, string) (oidc.Request, error)            { return s.request, s.err }
func (s *testStateStore) Clear(http.ResponseWriter, *http.Request)                     {}

// testEnv is a Handler with its collaborators.
type testEnv struct {
	handler  *Handler
	provider *oidc.Provider
	users    *testUserResolver
	sessions *testSessions
	actions  *testActions
	states   *CookieStateStore
}

// testNewProvider creates a new Provider using the TestProvider's issuer.
func testNewProvider(t *testing.T, tp *oidc.TestProvider, opt ...oidc.Option) *oidc.Provider {
	const op = "testNewProvider"
	t.Helper()
	require := require.New(t)
	require.NotNilf(tp, "%s: test provider is nil", op)

	clientID, clientSecret := tp.ClientCreds()
	opts := append([]oidc.Option{
		oidc.WithIssuer(tp.Addr()),
		oidc.WithProviderCA(tp.CACert()),
	}, opt...)
	c, err := oidc.NewConfig(testBaseURL, clientID, oidc.ClientSecret(clientSecret), opts...)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

// testNewEnv creates a Handler for the TestProvider.  The opts are used for
// the provider's config.
func testNewEnv(t *testing.T, tp *oidc.TestProvider, opt ...oidc.Option) *testEnv {
	t.Helper()
	require := require.New(t)
	env := &testEnv{
		provider: testNewProvider(t, tp, opt...),
		users:    &testUserResolver{},
		sessions: &testSessions{},
		actions:  &testActions{},
		states:   NewCookieStateStore(),
	}
	h, err := NewHandler(env.provider, env.users, env.sessions, env.actions, env.states)
	require.NoError(err)
	env.handler = h
	return env
}

// testStateCookies writes the request with the store and returns the cookies
// a browser would send back.
func testStateCookies(t *testing.T, s StateStore, r oidc.Request) []*http.Cookie {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	require.NoError(s.Write(rec, httptest.NewRequest(http.MethodGet, testBaseURL+"/login", nil), r))
	return rec.Result().Cookies()
}

// testCookie finds the named cookie.
func testCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
