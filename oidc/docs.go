// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for adding OIDC login to a web application using the
authorization code flow.

Primary types provided by the package

* Config: provides the configuration of the web application's OIDC login
(for example: client ID/Secret, base URL, issuer or explicit endpoints, admin
and allow groups, the groups claim, etc)

* Provider: provides integration with the IdP using the 3-legged OIDC
authorization code flow. The provider provides capabilities like: generating an
auth URL, exchanging codes for tokens, making user info requests and deciding
whether a user may login using their groups.

* Request: represents one user's login attempt.  It contains the state which
must be kept by the caller and compared with the state returned in the
callback.

* Token: represents an Oauth2 access_token (including its expiry) and the
id_token returned by the IdP.  The id_token isn't verified.

* Identity: represents the user as described by the IdP's user info endpoint.

* GroupPolicy: decides who may login and who is an administrator.

The oidc.callback package

The callback package includes the ability to create a http.HandlerFunc which can
be used for the 3rd leg of the OIDC flow where the authorization code is
exchanged for tokens and the user is logged in.

Examples

* OIDC login web application: oidc/examples/webapp
*/
package oidc
