// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads mission vault configuration.
//
// Values come from Default(), then an optional YAML file, then
// MISSIONVAULT_* environment variables, and are validated last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Durable scope backends.
const (
	DurableBadger = "badger"
	DurableGCS    = "gcs"
	DurableMemory = "memory"
	DurableNone   = "none"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MISSIONVAULT_"

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// Config is the full mission vault configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP tool surface.
type ServerConfig struct {
	Addr               string        `yaml:"addr" validate:"required"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst     int           `yaml:"rate_limit_burst" validate:"gte=0"`
	RequestTimeout     time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// StorageConfig selects and configures the durable scope.
type StorageConfig struct {
	Durable string       `yaml:"durable" validate:"oneof=badger gcs memory none"`
	Badger  BadgerConfig `yaml:"badger"`
	GCS     GCSConfig    `yaml:"gcs"`

	// StateIdleTTL evicts a conversation's ephemeral files after this long
	// without a call. Zero keeps them for the life of the process.
	StateIdleTTL time.Duration `yaml:"state_idle_ttl" validate:"gte=0"`
}

// BadgerConfig configures the embedded durable store.
type BadgerConfig struct {
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// GCSConfig configures the bucket-backed durable store.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// DeliveryConfig names the public delivery copies.
type DeliveryConfig struct {
	FinalReportPath     string `yaml:"final_report_path" validate:"required,startswith=/"`
	SourcesAppendixPath string `yaml:"sources_appendix_path" validate:"required,startswith=/"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig configures tracing and metrics exposure.
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" validate:"required"`
	TraceExporter string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	MetricsPath   string `yaml:"metrics_path" validate:"required,startswith=/"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":12240",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			RequestTimeout:     30 * time.Second,
		},
		Storage: StorageConfig{
			Durable:      DurableBadger,
			StateIdleTTL: time.Hour,
			Badger: BadgerConfig{
				Path:       "~/.aleutian/missionvault/badger",
				GCInterval: 5 * time.Minute,
			},
		},
		Delivery: DeliveryConfig{
			FinalReportPath:     "/final_report.md",
			SourcesAppendixPath: "/sources_appendix.md",
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "mission-vault",
			MetricsPath: "/metrics",
		},
	}
}

// Load reads configuration.
//
// Description:
//
//	Starts from Default(). When path is non-empty the YAML file is decoded
//	over the defaults, so omitted keys keep their default values.
//	Environment overrides are applied and the result is validated.
//
// Outputs:
//
//	*Config - The effective configuration.
//	error - Read, parse, override or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MISSIONVAULT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Server.Addr)
	duration("REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_PER_SECOND: %w", EnvPrefix, err))
		} else {
			c.Server.RateLimitPerSecond = f
		}
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err))
		} else {
			c.Server.RateLimitBurst = n
		}
	}

	str("STORAGE_DURABLE", &c.Storage.Durable)
	duration("STATE_IDLE_TTL", &c.Storage.StateIdleTTL)
	str("BADGER_PATH", &c.Storage.Badger.Path)
	boolean("BADGER_IN_MEMORY", &c.Storage.Badger.InMemory)
	boolean("BADGER_SYNC_WRITES", &c.Storage.Badger.SyncWrites)
	duration("BADGER_GC_INTERVAL", &c.Storage.Badger.GCInterval)
	str("GCS_BUCKET", &c.Storage.GCS.Bucket)
	str("GCS_PREFIX", &c.Storage.GCS.Prefix)
	str("GCS_CREDENTIALS_FILE", &c.Storage.GCS.CredentialsFile)

	str("FINAL_REPORT_PATH", &c.Delivery.FinalReportPath)
	str("SOURCES_APPENDIX_PATH", &c.Delivery.SourcesAppendixPath)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_DIR", &c.Logging.Dir)
	boolean("LOG_JSON", &c.Logging.JSON)

	str("SERVICE_NAME", &c.Telemetry.ServiceName)
	str("TRACE_EXPORTER", &c.Telemetry.TraceExporter)
	str("OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	boolean("OTLP_INSECURE", &c.Telemetry.OTLPInsecure)
	str("METRICS_PATH", &c.Telemetry.MetricsPath)

	return errors.Join(errs...)
}

// Validate checks struct tags and cross-field requirements of the
// selected durable backend.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Durable {
	case DurableBadger:
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
			return errors.New("invalid config: storage.badger.path is required unless in_memory is set")
		}
	case DurableGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("invalid config: storage.gcs.bucket is required for the gcs backend")
		}
	}
	if c.Delivery.FinalReportPath == c.Delivery.SourcesAppendixPath {
		return errors.New("invalid config: delivery paths must differ")
	}
	return nil
}
