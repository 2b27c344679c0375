// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidclogin/oidc"
	"golang.org/x/text/language"
)

// appConfig is loaded from OIDC_* environment variables.
type appConfig struct {
	Addr         string        `env:"OIDC_ADDR" envDefault:"localhost:8080"`
	BaseURL      string        `env:"OIDC_BASE_URL" envDefault:"http://localhost:8080"`
	ClientID     string        `env:"OIDC_CLIENT_ID,required,notEmpty"`
	ClientSecret string        `env:"OIDC_CLIENT_SECRET,required,notEmpty"`
	Issuer       string        `env:"OIDC_ISSUER"`
	AuthURL      string        `env:"OIDC_AUTH_URL"`
	TokenURL     string        `env:"OIDC_TOKEN_URL"`
	UserInfoURL  string        `env:"OIDC_USERINFO_URL"`
	ForceLogin   bool          `env:"OIDC_FORCE_LOGIN"`
	AdminGroup   string        `env:"OIDC_ADMIN_GROUP"`
	AllowGroup   string        `env:"OIDC_ALLOW_GROUP"`
	GroupsClaim  string        `env:"OIDC_GROUPS_CLAIM" envDefault:"groups"`
	ProviderCA   string        `env:"OIDC_PROVIDER_CA"`
	HTTPTimeout  time.Duration `env:"OIDC_HTTP_TIMEOUT" envDefault:"30s"`
	UILocales    []string      `env:"OIDC_UI_LOCALES" envSeparator:","`
	LogLevel     string        `env:"OIDC_LOG_LEVEL" envDefault:"info"`
}

// loadConfig loads the appConfig from the environment.
func loadConfig() (*appConfig, error) {
	const op = "loadConfig"
	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: parse env: %w", op, err)
	}
	return &cfg, nil
}

// providerConfig converts the appConfig into an oidc.Config.
func (c *appConfig) providerConfig(logger hclog.Logger) (*oidc.Config, error) {
	const op = "appConfig.providerConfig"
	locales := make([]language.Tag, 0, len(c.UILocales))
	for _, l := range c.UILocales {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid ui locale %q: %w", op, l, err)
		}
		locales = append(locales, tag)
	}
	opts := []oidc.Option{
		oidc.WithForceLogin(c.ForceLogin),
		oidc.WithAdminGroup(c.AdminGroup),
		oidc.WithAllowGroup(c.AllowGroup),
		oidc.WithGroupsClaim(c.GroupsClaim),
		oidc.WithProviderCA(c.ProviderCA),
		oidc.WithHTTPTimeout(c.HTTPTimeout),
		oidc.WithUILocales(locales...),
		oidc.WithLogger(logger),
	}
	switch {
	case c.Issuer != "":
		opts = append(opts, oidc.WithIssuer(c.Issuer))
	default:
		opts = append(opts, oidc.WithEndpoints(c.AuthURL, c.TokenURL, c.UserInfoURL))
	}
	pc, err := oidc.NewConfig(c.BaseURL, c.ClientID, oidc.ClientSecret(c.ClientSecret), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc, nil
}
