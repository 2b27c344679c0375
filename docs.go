// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oidclogin provides OIDC login for web applications using the authorization
// code flow: resolving the IdP's endpoints, building auth URLs, and handling
// the IdP's callback up to establishing the user's session.
//
// See the oidc and oidc/callback packages.
package oidclogin
