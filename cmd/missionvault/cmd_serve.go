// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianResearch/services/mission"
	"github.com/AleutianAI/AleutianResearch/services/mission/mcpserver"
)

const shutdownTimeout = 10 * time.Second

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mission tools over HTTP",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the mission tools over MCP stdio",
	RunE:  runMCP,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable gin debug mode")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	sc := a.cfg.Server
	router := mission.NewRouter(mission.RouterConfig{
		ServiceName:        a.cfg.Telemetry.ServiceName,
		MetricsPath:        a.cfg.Telemetry.MetricsPath,
		Gatherer:           a.registry,
		RateLimitPerSecond: sc.RateLimitPerSecond,
		RateLimitBurst:     sc.RateLimitBurst,
		RequestTimeout:     sc.RequestTimeout,
	}, mission.NewHandlers(a.svc, a.metrics))

	srv := &http.Server{
		Addr:              sc.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.slog().Info("Starting mission vault server", "address", sc.Addr, "version", mission.ServiceVersion)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.slog().Info("Shutting down mission vault server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	return mcpserver.New(a.svc, a.slog()).Run(ctx)
}
