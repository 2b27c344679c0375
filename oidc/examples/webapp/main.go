// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// webapp is an example web application using OIDC login.  It's configured
// with OIDC_* environment variables, see appConfig.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidclogin/oidc"
	"github.com/hashicorp/oidclogin/oidc/callback"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "webapp",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	pc, err := cfg.providerConfig(logger.Named("oidc"))
	if err != nil {
		return err
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		return err
	}
	defer p.Done()

	store := newMemStore(logger.Named("store"))
	states := callback.NewCookieStateStore(callback.WithSecureCookie(strings.HasPrefix(pc.CallbackURL, "https://")))
	h, err := callback.NewHandler(p, store, store, store, states, callback.WithLogger(logger.Named("callback")))
	if err != nil {
		return err
	}
	router, err := newRouter(p, h, store)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// handle ctrl-c
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srvCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "base_url", p.BaseURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()

	select {
	case err := <-srvCh:
		return fmt.Errorf("server closed with error: %w", err)
	case <-ctx.Done():
		logger.Info("interrupted, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
