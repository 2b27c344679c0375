// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/oidclogin/oidc/internal/strutils"
	sdkHttp "github.com/hashicorp/oidclogin/sdk/http"
	"golang.org/x/text/language"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

const (
	// CallbackPath is appended to the base URL to build the callback URL
	// registered with the IdP.
	CallbackPath = "/api/session/openid/callback"

	// DefaultGroupsClaim is the user info claim holding the user's groups
	// when no other claim is configured.
	DefaultGroupsClaim = "groups"
)

// Config represents the configuration for the OIDC login of a web
// application: client credentials, where the IdP's endpoints come from and
// how the user's groups are mapped to access.
type Config struct {
	// ForceLogin tells the web application to skip its own username/password
	// form and send users straight to the IdP.
	ForceLogin bool

	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.  It's only ever sent to the
	// token endpoint using HTTP Basic authentication.
	ClientSecret ClientSecret

	// BaseURL is the public URL of the web application.  Users are sent back
	// to it once the login is complete.
	BaseURL string

	// CallbackURL is the redirect_uri registered with the IdP.  NewConfig
	// derives it from the BaseURL and CallbackPath.
	CallbackURL string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.  When set, the IdP's endpoints are
	// found using OIDC discovery and take precedence over AuthURL, TokenURL
	// and UserInfoURL.
	Issuer string

	// AuthURL, TokenURL and UserInfoURL are the IdP's endpoints.  They're
	// required when the Issuer isn't set.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// AdminGroup is an optional group whose members are administrators.  When
	// set, the groups claim is also requested as a scope.
	AdminGroup string

	// AllowGroup is an optional group whose members are allowed to login.
	// When it's empty every authenticated user is allowed.
	AllowGroup string

	// GroupsClaim is the name of the user info claim holding the user's
	// groups.  Defaults to DefaultGroupsClaim.
	GroupsClaim string

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// HTTPTimeout bounds each request sent to the provider.  Zero means
	// sdk/http.DefaultTimeout.
	HTTPTimeout time.Duration

	// UILocales are optional preferred languages for the IdP's login pages,
	// sent as the ui_locales parameter.
	UILocales []language.Tag

	// Logger is an optional logger.  Defaults to a null logger.
	Logger hclog.Logger
}

// NewConfig composes a new config for the OIDC login of the web application
// served at baseURL.  Either WithIssuer or WithEndpoints must be provided.
//
// Supported options:
//
//	WithIssuer
//	WithEndpoints
//	WithForceLogin
//	WithAdminGroup
//	WithAllowGroup
//	WithGroupsClaim
//	WithProviderCA
//	WithHTTPTimeout
//	WithUILocales
//	WithLogger
func NewConfig(baseURL string, clientID string, clientSecret ClientSecret, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ForceLogin:   opts.withForceLogin,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		Issuer:       opts.withIssuer,
		AuthURL:      opts.withAuthURL,
		TokenURL:     opts.withTokenURL,
		UserInfoURL:  opts.withUserInfoURL,
		AdminGroup:   opts.withAdminGroup,
		AllowGroup:   opts.withAllowGroup,
		GroupsClaim:  opts.withGroupsClaim,
		ProviderCA:   opts.withProviderCA,
		HTTPTimeout:  opts.withHTTPTimeout,
		UILocales:    opts.withUILocales,
		Logger:       opts.withLogger,
	}
	if c.BaseURL != "" {
		c.CallbackURL = c.BaseURL + CallbackPath
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  It collects every problem found and
// returns them wrapped by ErrConfiguration.  It verifies the issuer is a valid
// URL, but it doesn't verify the Issuer is discoverable via an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client ID is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if err := validURL("base URL", c.BaseURL); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validURL("callback URL", c.CallbackURL); err != nil {
		result = multierror.Append(result, err)
	}
	switch {
	case c.Issuer != "":
		if err := validURL("issuer", c.Issuer); err != nil {
			result = multierror.Append(result, err)
		}
	default:
		for _, e := range []struct{ name, u string }{
			{"auth URL", c.AuthURL},
			{"token URL", c.TokenURL},
			{"user info URL", c.UserInfoURL},
		} {
			if e.u == "" {
				result = multierror.Append(result, fmt.Errorf("%s is empty and no issuer was provided: %w", e.name, ErrInvalidParameter))
				continue
			}
			if err := validURL(e.name, e.u); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			result = multierror.Append(result, fmt.Errorf("provider CA is not a valid PEM: %w", ErrInvalidCACert))
		}
	}
	if c.HTTPTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("http timeout is negative: %w", ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return nil
}

// usesDiscovery reports whether the endpoints come from the issuer.
func (c *Config) usesDiscovery() bool {
	return c.Issuer != ""
}

// hasExplicitEndpoints reports whether any of the endpoints were configured.
func (c *Config) hasExplicitEndpoints() bool {
	return c.AuthURL != "" || c.TokenURL != "" || c.UserInfoURL != ""
}

func (c *Config) groupsClaim() string {
	if c.GroupsClaim == "" {
		return DefaultGroupsClaim
	}
	return c.GroupsClaim
}

func (c *Config) logger() hclog.Logger {
	if c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}

// scopes returns the scopes requested by every authorization request:
// openid, profile and email, plus the groups claim when an admin group is
// configured.
func (c *Config) scopes() []string {
	scopes := []string{oidc.ScopeOpenID, "profile", "email"}
	if c.AdminGroup != "" {
		scopes = append(scopes, c.groupsClaim())
	}
	return strutils.RemoveDuplicatesStable(scopes, false)
}

// HTTPClient creates a new http client for the provider configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, c.HTTPTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HTTPClientContext returns a new Context that carries the provided HTTP
// client. This method sets the same context key used by the
// github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the returned
// context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

func validURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q is invalid: %w", name, raw, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s %q scheme is not http or https: %w", name, raw, ErrInvalidParameter)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q has no host: %w", name, raw, ErrInvalidParameter)
	}
	return nil
}

// configOptions is the set of available options
type configOptions struct {
	withForceLogin  bool
	withIssuer      string
	withAuthURL     string
	withTokenURL    string
	withUserInfoURL string
	withAdminGroup  string
	withAllowGroup  string
	withGroupsClaim string
	withProviderCA  string
	withHTTPTimeout time.Duration
	withUILocales   []language.Tag
	withLogger      hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withGroupsClaim: DefaultGroupsClaim,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithIssuer provides the issuer used to discover the provider's endpoints.
func WithIssuer(issuer string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withIssuer = issuer
		}
	}
}

// WithEndpoints provides the provider's endpoints when discovery isn't used.
func WithEndpoints(authURL, tokenURL, userInfoURL string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthURL = authURL
			o.withTokenURL = tokenURL
			o.withUserInfoURL = userInfoURL
		}
	}
}

// WithForceLogin provides an optional force login flag.
func WithForceLogin(force bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withForceLogin = force
		}
	}
}

// WithAdminGroup provides an optional group whose members are administrators.
func WithAdminGroup(group string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAdminGroup = group
		}
	}
}

// WithAllowGroup provides an optional group whose members are allowed to
// login.
func WithAllowGroup(group string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAllowGroup = group
		}
	}
}

// WithGroupsClaim provides an optional name for the groups claim.  An empty
// name keeps DefaultGroupsClaim.
func WithGroupsClaim(claim string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && claim != "" {
			o.withGroupsClaim = claim
		}
	}
}

// WithProviderCA provides optional CA certs (PEM encoded) for the provider's
// config.  These certs will can be used when making http requests to the
// provider.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithHTTPTimeout provides an optional timeout for requests to the provider.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHTTPTimeout = d
		}
	}
}

// WithUILocales provides optional preferred languages for the IdP's login
// pages.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithLogger provides an optional logger for the provider's config.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
