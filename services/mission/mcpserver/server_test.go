// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/mission"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

func connectInMemory(t *testing.T, ctx context.Context) *sdkmcp.ClientSession {
	t.Helper()
	svc := mission.NewService(mission.Options{
		Durable: storage.NewMemoryStore(),
		States:  storage.NewStateRegistry(),
	})
	srv := New(svc, nil)

	t1, t2 := sdkmcp.NewInMemoryTransports()
	_, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callTool returns the decoded JSON payload and the IsError flag.
func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "expected text content")

	payload := make(map[string]any)
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &payload), tc.Text)
	return payload, res.IsError
}

func scopeArgs(userID, missionID string) map[string]any {
	return map[string]any{"metadata": map[string]any{"user_id": userID, "mission_id": missionID}}
}

func TestListTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		mission.ToolManifest,
		mission.ToolBuildLedger,
		mission.ToolRenderSources,
		mission.ToolSubmitEvidence,
		mission.ToolPersistLedger,
		mission.ToolPersistAppendix,
		mission.ToolFinalizeReport,
		mission.ToolVerifyReport,
		mission.ToolPublishReport,
		mission.ToolRouteResearch,
		mission.ToolRequestApproval,
		mission.ToolRecordReflection,
	}, names)
}

func TestManifestTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)

	out, isErr := callTool(t, ctx, session, mission.ToolManifest, map[string]any{"config": scopeArgs("u1", "m1")})
	require.False(t, isErr, out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "/memories/users/u1/missions/m1", out["mission_root"])
	assert.Equal(t, "/final_report.md", out["final_report_public_path"])
}

func TestToolErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)

	out, isErr := callTool(t, ctx, session, mission.ToolManifest, map[string]any{"config": map[string]any{}})
	require.True(t, isErr)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, mission.ToolManifest, out["tool"])
	assert.Equal(t, mission.ErrorTypeValidation, out["error_type"])
	assert.NotEmpty(t, out["message"])
}

func TestTraversalMissionIDRejected(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)

	out, isErr := callTool(t, ctx, session, mission.ToolManifest, map[string]any{"config": scopeArgs("u1", "../m2")})
	require.True(t, isErr)
	assert.Equal(t, mission.ErrorTypeValidation, out["error_type"])
}

func TestPublishFlowOverMCP(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)
	cfg := scopeArgs("u1", "m1")

	out, isErr := callTool(t, ctx, session, mission.ToolSubmitEvidence, map[string]any{
		"config": cfg,
		"evidence": []any{
			map[string]any{"channel": "web", "title": "Market", "url": "https://a.example", "section": "Intro"},
			map[string]any{"channel": "web", "title": "Survey", "url": "https://b.example", "section": "Analysis"},
		},
	})
	require.False(t, isErr, out)
	assert.Equal(t, []any{"WEB-1", "WEB-2"}, out["new_citation_ids"])

	out, isErr = callTool(t, ctx, session, mission.ToolPersistAppendix, map[string]any{"config": cfg})
	require.False(t, isErr, out)

	out, isErr = callTool(t, ctx, session, mission.ToolPublishReport, map[string]any{
		"config": cfg,
		"body":   "Growth is strong [WEB-1] and adoption rising [WEB-2].",
	})
	require.False(t, isErr, out)
	assert.Equal(t, "pass", out["status"])
	assert.Equal(t, mission.NextActionComplete, out["next_action"])

	verify, ok := out["verify"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, verify["repaired"])
}

func TestRouteResearchTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx)

	out, isErr := callTool(t, ctx, session, mission.ToolRouteResearch, map[string]any{
		"query":           "our internal playbook",
		"prefer_internal": true,
		"config":          scopeArgs("u1", "m1"),
	})
	require.False(t, isErr, out)
	assert.Equal(t, "internal_kb", out["route"])
	md, ok := out["tool_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", md["user_id"])
}
