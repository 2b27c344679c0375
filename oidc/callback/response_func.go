// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/oidclogin/oidc"
)

// SuccessResponseFunc is used by AuthCode to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful oidc authentication response.  The redirect is where
// the logged in user should be sent: the base URL with SuccessQuery.  The
// function should use the http.ResponseWriter to send back whatever content
// (headers, html, JSON, etc) it wishes to the client that originated the oidc
// flow.
type SuccessResponseFunc func(state string, redirect *url.URL, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by AuthCode to create a http response when the
// callback fails.
//
// The function receives the state returned as part of the oidc authentication
// response.  It also gets parameters for the oidc authentication error response
// and/or the callback error raised while processing the request.  The function
// should use the http.ResponseWriter to send back whatever content (headers,
// html, JSON, etc) it wishes to the client that originated the oidc flow.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// AuthCode creates an oidc authorization code callback handler which uses the
// Handler to process the callback.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(h *Handler, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	if h == nil {
		return nil, fmt.Errorf("%s: handler is nil: %w", op, oidc.ErrInvalidParameter)
	}
	if sFn == nil {
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	if eFn == nil {
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		reqState := req.FormValue("state")
		redirect, err := h.Handle(req.Context(), w, req)
		if err != nil {
			var authenErr *AuthenError
			if errors.As(err, &authenErr) {
				eFn(reqState, authenErr.Response, err, w, req)
				return
			}
			eFn(reqState, nil, err, w, req)
			return
		}
		sFn(reqState, redirect, w, req)
	}, nil
}

// DefaultSuccess redirects the user's browser to the redirect with a 303.
func DefaultSuccess(_ string, redirect *url.URL, w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, redirect.String(), http.StatusSeeOther)
}

// DefaultError writes a JSON error response.  The IdP's error response is
// returned as is with a 401.  Otherwise the status depends on the error: 403
// for group or state failures, 400 for malformed callbacks, 502 when the IdP
// failed and 500 for anything else.  Internal error details aren't sent.
func DefaultError(_ string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	status, body := errorResponse(respErr, e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	j, _ := json.Marshal(body)
	_, _ = w.Write(j)
}

func errorResponse(respErr *AuthenErrorResponse, e error) (int, *AuthenErrorResponse) {
	switch {
	case respErr != nil:
		return http.StatusUnauthorized, respErr
	case errors.Is(e, oidc.ErrAuthorizationDenied):
		return http.StatusUnauthorized, &AuthenErrorResponse{Error: "access_denied"}
	case errors.Is(e, oidc.ErrGroupAuthorizationDenied):
		return http.StatusForbidden, &AuthenErrorResponse{
			Error:       "access_denied",
			Description: "group membership does not permit access",
		}
	case errors.Is(e, oidc.ErrInvalidState):
		return http.StatusForbidden, &AuthenErrorResponse{
			Error:       "invalid_state",
			Description: "login attempt is invalid or expired",
		}
	case errors.Is(e, oidc.ErrMalformedCallback):
		return http.StatusBadRequest, &AuthenErrorResponse{
			Error:       "invalid_request",
			Description: "missing authorization code",
		}
	case errors.Is(e, oidc.ErrTokenExchangeFailed):
		return http.StatusBadGateway, &AuthenErrorResponse{
			Error:       "token_exchange_failed",
			Description: "unable to exchange authorization code",
		}
	case errors.Is(e, oidc.ErrUserInfoFetchFailed):
		return http.StatusBadGateway, &AuthenErrorResponse{
			Error:       "userinfo_failed",
			Description: "unable to get user info",
		}
	default:
		return http.StatusInternalServerError, &AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: "unable to complete login",
		}
	}
}
