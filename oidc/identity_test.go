// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		claims      map[string]interface{}
		groupsClaim string
		want        *Identity
		wantErr     bool
		wantIsErr   error
	}{
		{
			name: "groups-list",
			claims: map[string]interface{}{
				"sub":    "alice",
				"email":  "a@b.com",
				"name":   "A B",
				"groups": []interface{}{"users", "admins"},
			},
			groupsClaim: DefaultGroupsClaim,
			want: &Identity{
				Subject:     "alice",
				Email:       "a@b.com",
				DisplayName: "A B",
				Groups:      []string{"users", "admins"},
			},
		},
		{
			name: "groups-string-list",
			claims: map[string]interface{}{
				"email":  "a@b.com",
				"groups": []string{"users"},
			},
			groupsClaim: DefaultGroupsClaim,
			want: &Identity{
				Email:  "a@b.com",
				Groups: []string{"users"},
			},
		},
		{
			name: "groups-single-string",
			claims: map[string]interface{}{
				"email": "a@b.com",
				"roles": "admins",
			},
			groupsClaim: "roles",
			want: &Identity{
				Email:  "a@b.com",
				Groups: []string{"admins"},
			},
		},
		{
			name: "groups-missing",
			claims: map[string]interface{}{
				"email": "a@b.com",
			},
			groupsClaim: DefaultGroupsClaim,
			want: &Identity{
				Email:  "a@b.com",
				Groups: []string{},
			},
		},
		{
			name:        "nil-claims",
			groupsClaim: DefaultGroupsClaim,
			want: &Identity{
				Groups: []string{},
			},
		},
		{
			name: "groups-not-strings",
			claims: map[string]interface{}{
				"groups": []interface{}{"users", 7},
			},
			groupsClaim: DefaultGroupsClaim,
			wantErr:     true,
			wantIsErr:   ErrUserInfoFetchFailed,
		},
		{
			name: "groups-object",
			claims: map[string]interface{}{
				"groups": map[string]interface{}{"users": true},
			},
			groupsClaim: DefaultGroupsClaim,
			wantErr:     true,
			wantIsErr:   ErrUserInfoFetchFailed,
		},
		{
			name:      "empty-groups-claim",
			claims:    map[string]interface{}{},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewIdentity(tt.claims, tt.groupsClaim)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want.Subject, got.Subject)
			assert.Equal(tt.want.Email, got.Email)
			assert.Equal(tt.want.DisplayName, got.DisplayName)
			assert.Equal(tt.want.Groups, got.Groups)
			assert.NotNil(got.Claims)
		})
	}
}
