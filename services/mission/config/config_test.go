// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":12240", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DurableBadger, cfg.Storage.Durable)
	assert.Equal(t, time.Hour, cfg.Storage.StateIdleTTL)
	assert.Equal(t, "/final_report.md", cfg.Delivery.FinalReportPath)
	assert.Equal(t, "/sources_appendix.md", cfg.Delivery.SourcesAppendixPath)
	assert.Equal(t, "/metrics", cfg.Telemetry.MetricsPath)
}

// TestLoad_FileOverDefaults verifies omitted keys keep defaults.
func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missionvault.yaml")
	data := []byte(`
server:
  addr: ":9000"
  request_timeout: 5s
storage:
  durable: gcs
  gcs:
    bucket: research-artifacts
    prefix: prod
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 40, cfg.Server.RateLimitBurst)
	assert.Equal(t, DurableGCS, cfg.Storage.Durable)
	assert.Equal(t, "research-artifacts", cfg.Storage.GCS.Bucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/final_report.md", cfg.Delivery.FinalReportPath)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"MISSIONVAULT_ADDR":                  ":8080",
		"MISSIONVAULT_STORAGE_DURABLE":       "memory",
		"MISSIONVAULT_BADGER_IN_MEMORY":      "true",
		"MISSIONVAULT_RATE_LIMIT_PER_SECOND": "2.5",
		"MISSIONVAULT_RATE_LIMIT_BURST":      "5",
		"MISSIONVAULT_REQUEST_TIMEOUT":       "10s",
		"MISSIONVAULT_STATE_IDLE_TTL":        "15m",
		"MISSIONVAULT_OTLP_ENDPOINT":         "collector:4317",
		"MISSIONVAULT_LOG_JSON":              "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DurableMemory, cfg.Storage.Durable)
	assert.True(t, cfg.Storage.Badger.InMemory)
	assert.Equal(t, 2.5, cfg.Server.RateLimitPerSecond)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Storage.StateIdleTTL)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Logging.JSON)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"MISSIONVAULT_LOG_JSON":         "maybe",
		"MISSIONVAULT_REQUEST_TIMEOUT":  "soon",
		"MISSIONVAULT_RATE_LIMIT_BURST": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSIONVAULT_LOG_JSON")
	assert.Contains(t, err.Error(), "MISSIONVAULT_REQUEST_TIMEOUT")
	assert.Contains(t, err.Error(), "MISSIONVAULT_RATE_LIMIT_BURST")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("MISSIONVAULT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown durable", func(c *Config) { c.Storage.Durable = "s3" }},
		{"relative delivery path", func(c *Config) { c.Delivery.FinalReportPath = "final_report.md" }},
		{"same delivery paths", func(c *Config) { c.Delivery.SourcesAppendixPath = c.Delivery.FinalReportPath }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"badger without path", func(c *Config) { c.Storage.Badger.Path = "" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Durable = DurableGCS }},
		{"negative burst", func(c *Config) { c.Server.RateLimitBurst = -1 }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Storage.Badger.Path = ""
	cfg.Storage.Badger.InMemory = true
	assert.NoError(t, cfg.Validate())
}

// TestDefault_YAMLRoundTrip verifies the default config survives a write
// and re-read, as used when seeding a config file.
func TestDefault_YAMLRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(Default())
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, *Default(), cfg)
}
