// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides the web application's side of an OIDC
login: an http.HandlerFunc which redirects users to the IdP, and one which
handles the IdP's authorization code callback.

The callback is processed by a Handler, in order: the IdP's response is parsed
and its state validated, the code is exchanged for tokens, the user's info is
fetched, the user's groups are authorized, and finally the user is logged in
using the injected UserResolver, SessionEstablisher and ActionLogger.  Any
failure ends the callback; nothing is retried.
*/
package callback
