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
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/mission"
	"github.com/AleutianAI/AleutianResearch/services/mission/citation"
	"github.com/AleutianAI/AleutianResearch/services/mission/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryEnv(t *testing.T) {
	t.Setenv(config.EnvPrefix+"STORAGE_DURABLE", config.DurableMemory)
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "error")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "missionvault "+mission.ServiceVersion+"\n", out)
}

func TestRouteCommand(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "route", "latest", "market", "news", "--fresh")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "external_web", res["route"])
}

func TestManifestCommand(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "manifest", "--user", "u1", "--mission", "m1")
	require.NoError(t, err)

	var res mission.ManifestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "/memories/users/u1/missions/m1/knowledge_graph/citation_ledger.json", res.CitationLedgerPath)
}

func TestManifestCommand_InvalidScopePrintsEnvelope(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "manifest", "--user", "u 1", "--mission", "m1")
	require.Error(t, err)

	var env mission.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, mission.ErrorTypeValidation, env.ErrorType)
	assert.Equal(t, mission.ToolManifest, env.Tool)
}

func TestVerifyCommand_RecoversFromDurableStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	t.Setenv(config.EnvPrefix+"STORAGE_DURABLE", config.DurableBadger)
	t.Setenv(config.EnvPrefix+"BADGER_PATH", dir)
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "error")

	cfg, err := config.Load("")
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	scopeCfg := map[string]any{"metadata": map[string]any{"user_id": "u1", "mission_id": "m1"}}
	_, err = a.svc.SubmitEvidence(ctx, mission.SubmitEvidenceRequest{Config: scopeCfg, Evidence: []citation.Evidence{
		{Channel: "web", Title: "A", URL: "https://a.example"},
	}})
	require.NoError(t, err)
	_, err = a.svc.FinalizeReport(ctx, mission.ReportRequest{Config: scopeCfg, Body: "Claim [WEB-1]."})
	require.NoError(t, err)
	require.NoError(t, a.close(ctx))

	out, err := execute(t, "verify", "--user", "u1", "--mission", "m1")
	require.NoError(t, err, out)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "pass", res["status"])
	assert.Equal(t, true, res["repaired"])
}

func TestNewApp_DurableBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"memory", func(c *config.Config) { c.Storage.Durable = config.DurableMemory }},
		{"none", func(c *config.Config) { c.Storage.Durable = config.DurableNone }},
		{"badger in memory", func(c *config.Config) {
			c.Storage.Durable = config.DurableBadger
			c.Storage.Badger.InMemory = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Logging.Level = "error"
			tt.mutate(cfg)
			require.NoError(t, cfg.Validate())

			a, err := newApp(context.Background(), cfg)
			require.NoError(t, err)
			defer a.close(context.Background())

			res, err := a.svc.Manifest(context.Background(), mission.ScopedRequest{
				Config: map[string]any{"metadata": map[string]any{"user_id": "u1", "mission_id": "m1"}},
			})
			require.NoError(t, err)
			assert.Equal(t, "/memories/users/u1/missions/m1", res.MissionRoot)
		})
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.aleutian/x", expandHome("~/.aleutian/x"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
}
