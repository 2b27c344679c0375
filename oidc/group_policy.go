// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/hashicorp/oidclogin/oidc/internal/strutils"
)

// GroupPolicy decides who may login using the user's groups.  An empty group
// means it isn't configured.
type GroupPolicy struct {
	// AdminGroup members are administrators.
	AdminGroup string

	// AllowGroup members may login.  When empty everyone may login.
	AllowGroup string
}

// Authorize returns whether the user with the groups is an administrator, and
// ErrGroupAuthorizationDenied when they may not login.  Administrators may
// always login, even when they're not members of the allow group.
func (gp GroupPolicy) Authorize(groups []string) (administrator bool, err error) {
	const op = "GroupPolicy.Authorize"
	administrator = gp.AdminGroup != "" && strutils.StrListContains(groups, gp.AdminGroup)
	switch {
	case administrator:
	case gp.AllowGroup == "":
	case strutils.StrListContains(groups, gp.AllowGroup):
	default:
		return false, fmt.Errorf("%s: user is not a member of %q: %w", op, gp.AllowGroup, ErrGroupAuthorizationDenied)
	}
	return administrator, nil
}
