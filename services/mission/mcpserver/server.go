// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcpserver exposes the mission tools over the Model Context Protocol.
//
// Every tool returns a single text content block holding JSON: the
// operation result on success, or the error envelope with IsError set.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianResearch/services/mission"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server with the mission tools registered.
type Server struct {
	MCPServer *sdkmcp.Server

	svc    *mission.Service
	logger *slog.Logger
}

// New creates an MCP server for svc. logger may be nil.
func New(svc *mission.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{
			Name:    "mission-vault",
			Version: mission.ServiceVersion,
		}, nil),
		svc:    svc,
		logger: logger.With("component", "mission-mcp"),
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving mission tools over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	svc := s.svc

	addTool(s, mission.ToolManifest,
		"Return every storage path of the mission: private mission files, profile preferences and public delivery copies.",
		svc.Manifest)
	addTool(s, mission.ToolBuildLedger,
		"Merge evidence into a caller-supplied ledger and return the merged ledger. Nothing is persisted.",
		svc.BuildLedger)
	addTool(s, mission.ToolRenderSources,
		"Render a ledger as a markdown Sources section, optionally limited to one report section.",
		svc.RenderSources)
	addTool(s, mission.ToolSubmitEvidence,
		"Merge evidence into the mission's persisted citation ledger and return the newly assigned citation IDs.",
		svc.SubmitEvidence)
	addTool(s, mission.ToolPersistLedger,
		"Store a citation ledger snapshot as the mission's ledger.",
		svc.PersistLedger)
	addTool(s, mission.ToolPersistAppendix,
		"Store the sources appendix privately and publicly. Empty markdown renders it from the persisted ledger.",
		svc.PersistAppendix)
	addTool(s, mission.ToolFinalizeReport,
		"Compose the report body with its sources appendix and write the private and public copies.",
		svc.FinalizeReport)
	addTool(s, mission.ToolVerifyReport,
		"Check that the final report has a Sources section backing every inline citation; append ledger sources if not.",
		svc.VerifyReport)
	addTool(s, mission.ToolPublishReport,
		"Finalize then verify the report in one step. This is the canonical way to deliver a mission report.",
		svc.PublishReport)
	addTool(s, mission.ToolRouteResearch,
		"Recommend internal knowledge base, external web or hybrid retrieval for a research query.",
		svc.RouteResearch)
	addTool(s, mission.ToolRequestApproval,
		"Pause for human review of a research plan before execution.",
		svc.RequestPlanApproval)
	addTool(s, mission.ToolRecordReflection,
		"Append a reflection note to the mission's reflections file.",
		svc.RecordReflection)
}

// addTool registers one mission operation as an MCP tool.
func addTool[In, Out any](s *Server, name, description string, call func(context.Context, In) (Out, error)) {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, any, error) {
		out, err := call(ctx, in)
		if err != nil {
			env := mission.ToolError(name, err)
			s.logger.Info("tool call failed", "tool", name, "error_type", env.ErrorType, "error", err)
			res, encErr := textResult(env)
			if encErr != nil {
				return nil, nil, encErr
			}
			res.IsError = true
			return res, nil, nil
		}
		res, err := textResult(out)
		if err != nil {
			return nil, nil, err
		}
		return res, nil, nil
	})
}

func textResult(v any) (*sdkmcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil
}
