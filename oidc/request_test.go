// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		expireIn        time.Duration
		redirectURL     string
		opts            []Option
		advanceClock    time.Duration
		wantState       string
		wantRedirectURL string
		wantExpired     bool
		wantErr         bool
		wantIsErr       error
	}{
		{
			name:            "valid",
			expireIn:        time.Minute,
			redirectURL:     "https://bob.com/callback",
			wantRedirectURL: "https://bob.com/callback",
		},
		{
			name:            "valid-with-state",
			expireIn:        time.Minute,
			redirectURL:     "https://bob.com/callback",
			opts:            []Option{WithState("st_alice")},
			wantState:       "st_alice",
			wantRedirectURL: "https://bob.com/callback",
		},
		{
			name:            "expired-with-now",
			expireIn:        30 * time.Second,
			redirectURL:     "https://bob.com/callback",
			advanceClock:    time.Minute,
			wantRedirectURL: "https://bob.com/callback",
			wantExpired:     true,
		},
		{
			name:        "zero-expireIn",
			redirectURL: "https://bob.com/callback",
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:      "empty-redirect",
			expireIn:  time.Minute,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			now := time.Now()
			opts := append([]Option{WithNow(func() time.Time { return now })}, tt.opts...)
			got, err := NewRequest(tt.expireIn, tt.redirectURL, opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			now = now.Add(tt.advanceClock)
			switch tt.wantState {
			case "":
				assert.True(strings.HasPrefix(got.State(), "st_"))
			default:
				assert.Equal(tt.wantState, got.State())
			}
			assert.Equal(tt.wantRedirectURL, got.RedirectURL())
			assert.Equal(tt.wantExpired, got.IsExpired())
			assert.False(got.Expiration().IsZero())
		})
	}
}

func TestNewRequest_UniqueState(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		r, err := NewRequest(time.Minute, "https://bob.com/callback")
		require.NoError(err)
		assert.Falsef(seen[r.State()], "state %q was reused", r.State())
		seen[r.State()] = true
	}
}

func TestRequest_IsExpired(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	now := time.Now()
	r, err := NewRequest(time.Minute, "https://bob.com/callback", WithNow(func() time.Time { return now }))
	require.NoError(err)
	assert.False(r.IsExpired())
	now = now.Add(2 * time.Minute)
	assert.True(r.IsExpired())
}

func Test_WithState(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getReqOpts(WithState("st_alice"))
	testOpts := reqDefaults()
	testOpts.withState = "st_alice"
	assert.Equal(opts, testOpts)
}

func Test_WithNow(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	testNow := func() time.Time { return time.Time{} }
	assert.NotNil(getReqOpts(WithNow(testNow)).withNowFunc)
	assert.NotNil(getTokenOpts(WithNow(testNow)).withNowFunc)
}
