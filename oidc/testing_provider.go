// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/oidclogin/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local OIDC provider which makes writing tests much
// easier.  It serves the discovery document, the authorization, token and
// user info endpoints and the JWKS over TLS, and counts the requests its
// token and user info endpoints receive.
//
// The token endpoint requires HTTP Basic client authentication, the
// authorization_code grant, an allowed redirect_uri and the expected code.
// The user info endpoint requires the access_token it issued as a bearer
// token.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	privKey *ecdsa.PrivateKey
	keyID   string

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	expectedAuthCode     string
	accessToken          string
	tokenType            string
	allowedRedirectURIs  []string
	subject              string
	userInfo             map[string]interface{}
	tokenErrorCode       string
	tokenErrorDesc       string
	omitAccessToken      bool
	disableUserInfo      bool
	omitUserInfoEndpoint bool
	invalidDiscovery     bool

	tokenRequests        int
	userInfoRequests     int
	lastTokenRedirectURI string
}

// StartTestProvider creates and starts a running TestProvider http server on
// a random port.  It's stopped when the test completes.
//
// The defaults are: client "test-client-id"/"test-client-secret", auth code
// "test-code", allowed redirect "https://example.com/api/session/openid/callback"
// and a user info response for alice without any groups.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	_, priv := TestGenerateKeys(t)
	p := &TestProvider{
		privKey:             priv,
		keyID:               "test-key",
		clientID:            "test-client-id",
		clientSecret:        "test-client-secret",
		expectedAuthCode:    "test-code",
		accessToken:         "test-access-token",
		tokenType:           "Bearer",
		allowedRedirectURIs: []string{"https://example.com" + CallbackPath},
		subject:             "alice",
		userInfo: map[string]interface{}{
			"email": "alice@example.com",
			"name":  "Alice Smith",
		},
	}

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.Stop)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver,
// which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// AuthURL returns the test provider's authorization endpoint.
func (p *TestProvider) AuthURL() string { return p.Addr() + "/authorize" }

// TokenURL returns the test provider's token endpoint.
func (p *TestProvider) TokenURL() string { return p.Addr() + "/token" }

// UserInfoURL returns the test provider's user info endpoint.
func (p *TestProvider) UserInfoURL() string { return p.Addr() + "/userinfo" }

// HTTPClient returns an http.Client which trusts the test provider's CA and
// doesn't follow redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM([]byte(p.caCert))
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: certPool},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SetClientCreds sets the client ID and secret the token endpoint expects.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the client ID and secret the token endpoint expects.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetExpectedAuthCode sets the code returned by the authorization endpoint
// and required by the token endpoint.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAccessToken sets the access_token issued by the token endpoint and
// required by the user info endpoint.
func (p *TestProvider) SetAccessToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = token
}

// SetTokenType sets the token_type returned by the token endpoint.  The
// user info endpoint always expects a bearer token.
func (p *TestProvider) SetTokenType(tokenType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenType = tokenType
}

// SetAllowedRedirectURIs sets the redirect URIs the authorization and token
// endpoints accept.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetUserInfo sets the claims returned by the user info endpoint.  The sub
// claim is always added.
func (p *TestProvider) SetUserInfo(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfo = claims
}

// SetTokenError makes the token endpoint return an oauth error response.  An
// empty code resets it.
func (p *TestProvider) SetTokenError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrorCode = code
	p.tokenErrorDesc = description
}

// SetOmitAccessToken makes the token endpoint reply without an access_token.
func (p *TestProvider) SetOmitAccessToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAccessToken = omit
}

// SetDisableUserInfo makes the user info endpoint return 500.
func (p *TestProvider) SetDisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// SetOmitUserInfoEndpoint removes the userinfo_endpoint from the discovery
// document.
func (p *TestProvider) SetOmitUserInfoEndpoint(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitUserInfoEndpoint = omit
}

// SetInvalidDiscovery makes the discovery endpoint return a document which
// isn't JSON.
func (p *TestProvider) SetInvalidDiscovery(invalid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidDiscovery = invalid
}

// TokenRequests returns the number of requests the token endpoint received.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// UserInfoRequests returns the number of requests the user info endpoint
// received.
func (p *TestProvider) UserInfoRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userInfoRequests
}

// LastTokenRedirectURI returns the redirect_uri of the last token request.
func (p *TestProvider) LastTokenRedirectURI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenRedirectURI
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, redirectURI, errorCode, errorMessage string) {
	qv := req.URL.Query()
	q := url.Values{}
	q.Set("state", qv.Get("state"))
	q.Set("error", errorCode)
	if errorMessage != "" {
		q.Set("error_description", errorMessage)
	}
	http.Redirect(w, req, redirectURI+"?"+q.Encode(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.invalidDiscovery {
			_, _ = w.Write([]byte("It's not a discovery document!"))
			return
		}
		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
			Algorithms       []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Addr(),
			AuthEndpoint:     p.AuthURL(),
			TokenEndpoint:    p.TokenURL(),
			JWKSURI:          p.Addr() + "/certs",
			UserinfoEndpoint: p.UserInfoURL(),
			Algorithms:       []string{string(jose.ES256)},
		}
		if p.omitUserInfoEndpoint {
			reply.UserinfoEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		redirectURI := qv.Get("redirect_uri")
		if !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			_ = p.writeJSON(w, map[string]string{"error": "invalid_request", "error_description": "redirect_uri is not allowed"})
			return
		}
		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, redirectURI, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, redirectURI, "unauthorized_client", "unknown client_id")
			return
		case !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid"):
			p.writeAuthErrorResponse(w, req, redirectURI, "invalid_scope", "openid scope is required")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, redirectURI, "invalid_request", "missing state parameter")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, redirectURI, "access_denied", "")
			return
		}
		q := url.Values{}
		q.Set("state", qv.Get("state"))
		q.Set("code", p.expectedAuthCode)
		http.Redirect(w, req, redirectURI+"?"+q.Encode(), http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{
					Key:       p.privKey.Public(),
					KeyID:     p.keyID,
					Algorithm: string(jose.ES256),
					Use:       "sig",
				},
			},
		})

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++
		p.lastTokenRedirectURI = req.FormValue("redirect_uri")

		id, secret, ok := req.BasicAuth()
		if ok {
			// oauth2 clients form-encode the credentials before using them
			// for basic auth.
			id, _ = url.QueryUnescape(id)
			secret, _ = url.QueryUnescape(secret)
		}
		switch {
		case p.tokenErrorCode != "":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenErrorCode, p.tokenErrorDesc)
			return
		case !ok || id != p.clientID || secret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
			return
		case !strutils.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}

		now := time.Now()
		idToken, err := signJWT(p.privKey, p.keyID, jwt.Claims{
			Subject:   p.subject,
			Issuer:    p.Addr(),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			IssuedAt:  jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}, nil)
		if err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		reply := struct {
			AccessToken string `json:"access_token,omitempty"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
			IDToken     string `json:"id_token"`
		}{
			AccessToken: p.accessToken,
			TokenType:   p.tokenType,
			ExpiresIn:   300,
			IDToken:     idToken,
		}
		if p.omitAccessToken {
			reply.AccessToken = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		p.userInfoRequests++
		if p.disableUserInfo {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if req.Header.Get("Authorization") != "Bearer "+p.accessToken {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{}
		for k, v := range p.userInfo {
			reply[k] = v
		}
		reply["sub"] = p.subject
		_ = p.writeJSON(w, reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
