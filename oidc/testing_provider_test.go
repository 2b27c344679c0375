// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// testClaims returns a set of valid registered claims for test JWTs.
func testClaims() jwt.Claims {
	now := time.Now()
	return jwt.Claims{
		Subject:   "alice",
		Issuer:    "https://example.com",
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
		Audience:  jwt.Audience{"test-client-id"},
	}
}

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)

	resp, err := tp.HTTPClient().Get(tp.Addr() + "/.well-known/openid-configuration")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(tp.Addr(), doc["issuer"])
	assert.Equal(tp.AuthURL(), doc["authorization_endpoint"])
	assert.Equal(tp.TokenURL(), doc["token_endpoint"])
	assert.Equal(tp.UserInfoURL(), doc["userinfo_endpoint"])
}

func TestTestProvider_SetOmitUserInfoEndpoint(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	tp.SetOmitUserInfoEndpoint(true)

	resp, err := tp.HTTPClient().Get(tp.Addr() + "/.well-known/openid-configuration")
	require.NoError(err)
	defer resp.Body.Close()
	var doc map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&doc))
	_, ok := doc["userinfo_endpoint"]
	assert.False(ok)
}

func TestTestProvider_Authorize(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	clientID, _ := tp.ClientCreds()
	redirect := "https://example.com" + CallbackPath

	tests := []struct {
		name         string
		params       url.Values
		wantStatus   int
		wantCode     string
		wantRespErr  string
		wantRedirect bool
	}{
		{
			name: "valid",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {clientID},
				"redirect_uri":  {redirect},
				"scope":         {"openid email"},
				"state":         {"st_test"},
			},
			wantStatus:   http.StatusFound,
			wantCode:     "test-code",
			wantRedirect: true,
		},
		{
			name: "unknown-client",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {"unknown"},
				"redirect_uri":  {redirect},
				"scope":         {"openid"},
				"state":         {"st_test"},
			},
			wantStatus:   http.StatusFound,
			wantRespErr:  "unauthorized_client",
			wantRedirect: true,
		},
		{
			name: "missing-openid-scope",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {clientID},
				"redirect_uri":  {redirect},
				"scope":         {"email"},
				"state":         {"st_test"},
			},
			wantStatus:   http.StatusFound,
			wantRespErr:  "invalid_scope",
			wantRedirect: true,
		},
		{
			name: "redirect-not-allowed",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {clientID},
				"redirect_uri":  {"https://evil.example.com"},
				"scope":         {"openid"},
				"state":         {"st_test"},
			},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			resp, err := tp.HTTPClient().Get(tp.AuthURL() + "?" + tt.params.Encode())
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(tt.wantStatus, resp.StatusCode)
			if !tt.wantRedirect {
				return
			}
			loc, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(err)
			assert.True(strings.HasPrefix(loc.String(), redirect))
			assert.Equal("st_test", loc.Query().Get("state"))
			assert.Equal(tt.wantCode, loc.Query().Get("code"))
			assert.Equal(tt.wantRespErr, loc.Query().Get("error"))
		})
	}
}

func TestTestProvider_Token(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	clientID, clientSecret := tp.ClientCreds()
	redirect := "https://example.com" + CallbackPath

	validForm := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"test-code"},
		"redirect_uri": {redirect},
	}
	tests := []struct {
		name        string
		form        url.Values
		user        string
		pass        string
		wantStatus  int
		wantRespErr string
	}{
		{"valid", validForm, clientID, clientSecret, http.StatusOK, ""},
		{"bad-secret", validForm, clientID, "wrong", http.StatusUnauthorized, "invalid_client"},
		{"no-basic-auth", validForm, "", "", http.StatusUnauthorized, "invalid_client"},
		{
			"bad-grant",
			url.Values{"grant_type": {"password"}, "code": {"test-code"}, "redirect_uri": {redirect}},
			clientID, clientSecret, http.StatusBadRequest, "unsupported_grant_type",
		},
		{
			"bad-code",
			url.Values{"grant_type": {"authorization_code"}, "code": {"nope"}, "redirect_uri": {redirect}},
			clientID, clientSecret, http.StatusBadRequest, "invalid_grant",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			req, err := http.NewRequest(http.MethodPost, tp.TokenURL(), strings.NewReader(tt.form.Encode()))
			require.NoError(err)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.user != "" {
				req.SetBasicAuth(url.QueryEscape(tt.user), url.QueryEscape(tt.pass))
			}
			resp, err := tp.HTTPClient().Do(req)
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantRespErr != "" {
				assert.Equal(tt.wantRespErr, body["error"])
				return
			}
			assert.Equal("test-access-token", body["access_token"])
			assert.Equal("Bearer", body["token_type"])

			// the id_token is signed by a key in the provider's JWKS
			raw, ok := body["id_token"].(string)
			require.True(ok)
			parsed, err := jwt.ParseSigned(raw)
			require.NoError(err)
			keysResp, err := tp.HTTPClient().Get(tp.Addr() + "/certs")
			require.NoError(err)
			defer keysResp.Body.Close()
			var keySet jose.JSONWebKeySet
			require.NoError(json.NewDecoder(keysResp.Body).Decode(&keySet))
			require.Len(keySet.Keys, 1)
			var claims jwt.Claims
			require.NoError(parsed.Claims(keySet.Keys[0].Key, &claims))
			assert.Equal("alice", claims.Subject)
			assert.Equal(tp.Addr(), claims.Issuer)
		})
	}
	assert.Equal(t, len(tests), tp.TokenRequests())
	assert.Equal(t, redirect, tp.LastTokenRedirectURI())
}

func TestTestProvider_UserInfo(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	tp.SetUserInfo(map[string]interface{}{
		"email":  "bob@example.com",
		"groups": []string{"users"},
	})

	tests := []struct {
		name       string
		bearer     string
		disable    bool
		wantStatus int
	}{
		{"valid", "test-access-token", false, http.StatusOK},
		{"bad-token", "nope", false, http.StatusUnauthorized},
		{"disabled", "test-access-token", true, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			tp.SetDisableUserInfo(tt.disable)
			defer tp.SetDisableUserInfo(false)
			req, err := http.NewRequest(http.MethodGet, tp.UserInfoURL(), nil)
			require.NoError(err)
			req.Header.Set("Authorization", "Bearer "+tt.bearer)
			resp, err := tp.HTTPClient().Do(req)
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body map[string]interface{}
			require.NoError(json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal("alice", body["sub"])
			assert.Equal("bob@example.com", body["email"])
			assert.Equal([]interface{}{"users"}, body["groups"])
		})
	}
	assert.Equal(t, len(tests), tp.UserInfoRequests())
}

func TestTestProvider_SetTokenError(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := StartTestProvider(t)
	tp.SetTokenError("invalid_grant", "expired code")
	tp.mu.Lock()
	assert.Equal("invalid_grant", tp.tokenErrorCode)
	assert.Equal("expired code", tp.tokenErrorDesc)
	tp.mu.Unlock()
}

func TestTestGenerateCA(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	cert, certPem := TestGenerateCA(t, []string{"localhost", "127.0.0.1"})
	assert.True(cert.IsCA)
	assert.Equal([]string{"localhost"}, cert.DNSNames)
	assert.Len(cert.IPAddresses, 1)
	assert.Contains(certPem, "BEGIN CERTIFICATE")
}
