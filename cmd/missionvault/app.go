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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AleutianAI/AleutianResearch/pkg/logging"
	"github.com/AleutianAI/AleutianResearch/services/mission"
	"github.com/AleutianAI/AleutianResearch/services/mission/config"
	"github.com/AleutianAI/AleutianResearch/services/mission/observability"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage/badgerstore"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage/gcsstore"
	"github.com/AleutianAI/AleutianResearch/services/mission/telemetry"
)

// app is the wired process: config, logging, tracing, metrics, the durable
// backend and the mission service.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	svc      *mission.Service
	closers  []func(context.Context) error
}

// newApp builds an app from cfg.
//
// Description:
//
//	Creates the logger, installs tracing, opens the durable backend named by
//	storage.durable and constructs the service. On error everything opened
//	so far is closed.
//
// Inputs:
//
//	ctx - Context for backend and exporter construction.
//	cfg - Validated configuration.
//
// Outputs:
//
//	*app - The wired app. Call close when done.
//	error - Logger, exporter or backend failure.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return logger.Close() })
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: mission.ServiceVersion,
		Exporter:       cfg.Telemetry.TraceExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	durable, err := a.openDurable(ctx)
	if err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)

	a.svc = mission.NewService(mission.Options{
		Durable:  durable,
		States:   storage.NewStateRegistry(storage.WithIdleTTL(cfg.Storage.StateIdleTTL)),
		Delivery: cfg.Delivery,
		Metrics:  a.metrics,
		Logger:   logger.Slog(),
	})
	return a, nil
}

// openDurable opens the backend that serves /memories/.
func (a *app) openDurable(ctx context.Context) (storage.Backend, error) {
	sc := a.cfg.Storage
	log := a.logger.Slog().With("durable", sc.Durable)

	switch sc.Durable {
	case config.DurableBadger:
		bc := badgerstore.DefaultConfig(expandHome(sc.Badger.Path))
		bc.InMemory = sc.Badger.InMemory
		bc.SyncWrites = sc.Badger.SyncWrites
		bc.GCInterval = sc.Badger.GCInterval
		bc.Logger = log
		db, err := badgerstore.Open(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		log.Info("durable store ready", "path", bc.Path, "in_memory", bc.InMemory)
		return badgerstore.NewStore(db), nil

	case config.DurableGCS:
		store, err := gcsstore.New(ctx, gcsstore.Config{
			Bucket:          sc.GCS.Bucket,
			Prefix:          sc.GCS.Prefix,
			CredentialsFile: sc.GCS.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("open gcs store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		log.Info("durable store ready", "bucket", sc.GCS.Bucket, "prefix", sc.GCS.Prefix)
		return store, nil

	case config.DurableMemory:
		log.Warn("durable store is in-process memory; mission files are lost on exit")
		return storage.NewMemoryStore(), nil

	case config.DurableNone:
		log.Warn("no durable store; /memories/ paths are kept in ephemeral state")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown durable backend %q", sc.Durable)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) slog() *slog.Logger { return a.logger.Slog() }

// loadApp loads configuration from the --config flag and wires the app.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
