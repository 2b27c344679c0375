// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
)

// Identity is the authenticated user as described by the provider's user info
// endpoint.  It's transient: it's only used to resolve the local user and
// establish the session.
type Identity struct {
	// Subject is the sub claim.
	Subject string

	// Email is the email claim.
	Email string

	// DisplayName is the name claim.
	DisplayName string

	// Groups are the values of the configured groups claim, in the order the
	// provider returned them.  Never nil.
	Groups []string

	// IsAdministrator is set by Provider.Authorize.
	IsAdministrator bool

	// Claims are all the user info claims.
	Claims map[string]interface{}
}

// NewIdentity creates an Identity from user info claims.  A missing groups
// claim is an empty list and a single string is a one element list.  Any other
// groups claim value is ErrUserInfoFetchFailed.
func NewIdentity(claims map[string]interface{}, groupsClaim string) (*Identity, error) {
	const op = "NewIdentity"
	if groupsClaim == "" {
		return nil, fmt.Errorf("%s: groups claim name is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		claims = map[string]interface{}{}
	}
	groups, err := stringListClaim(claims, groupsClaim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUserInfoFetchFailed, err)
	}
	return &Identity{
		Subject:     stringClaim(claims, "sub"),
		Email:       stringClaim(claims, "email"),
		DisplayName: stringClaim(claims, "name"),
		Groups:      groups,
		Claims:      claims,
	}, nil
}

func stringClaim(claims map[string]interface{}, name string) string {
	s, _ := claims[name].(string)
	return s
}

func stringListClaim(claims map[string]interface{}, name string) ([]string, error) {
	switch v := claims[name].(type) {
	case nil:
		return []string{}, nil
	case string:
		return []string{v}, nil
	case []string:
		return append([]string{}, v...), nil
	case []interface{}:
		list := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s claim element %d is a %T, not a string: %w", name, i, e, ErrInvalidParameter)
			}
			list = append(list, s)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%s claim is a %T, not a list of strings: %w", name, v, ErrInvalidParameter)
	}
}
