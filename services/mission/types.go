// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mission

import (
	"github.com/AleutianAI/AleutianResearch/services/mission/artifact"
	"github.com/AleutianAI/AleutianResearch/services/mission/citation"
	"github.com/AleutianAI/AleutianResearch/services/mission/report"
	"github.com/AleutianAI/AleutianResearch/services/mission/routing"
)

// Tool names, shared by every transport.
const (
	ToolManifest          = "mission_storage_manifest"
	ToolBuildLedger       = "build_citation_ledger"
	ToolRenderSources     = "render_sources_from_ledger"
	ToolSubmitEvidence    = "submit_evidence"
	ToolPersistLedger     = "persist_citation_ledger"
	ToolPersistAppendix   = "persist_sources_appendix"
	ToolFinalizeReport    = "finalize_mission_report"
	ToolVerifyReport      = "verify_and_repair_final_report"
	ToolPublishReport     = "publish_final_report"
	ToolRouteResearch     = "route_research"
	ToolRequestApproval   = "request_plan_approval"
	ToolRecordReflection  = "record_reflection"
	CheckpointPlanApprove = "plan_approval"
)

// Next actions returned by publish.
const (
	NextActionComplete    = "complete"
	NextActionRepairRetry = "repair_and_retry_publish"
)

// =============================================================================
// Requests
// =============================================================================

// ScopedRequest carries the runtime config a tenant scope is resolved from.
type ScopedRequest struct {
	Config map[string]any `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
}

// BuildLedgerRequest merges evidence into a caller-supplied ledger.
type BuildLedgerRequest struct {
	Evidence        []citation.Evidence `json:"evidence" validate:"required,min=1"`
	PriorLedgerJSON string              `json:"prior_ledger_json,omitempty"`
}

// RenderSourcesRequest renders a ledger.
type RenderSourcesRequest struct {
	LedgerJSON string `json:"ledger_json,omitempty"`
	Section    string `json:"section,omitempty"`
}

// SubmitEvidenceRequest merges evidence into the persisted ledger.
type SubmitEvidenceRequest struct {
	Config   map[string]any      `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
	Evidence []citation.Evidence `json:"evidence" validate:"required,min=1"`
}

// PersistLedgerRequest stores a ledger snapshot.
type PersistLedgerRequest struct {
	Config     map[string]any `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
	LedgerJSON string         `json:"ledger_json" validate:"required"`
}

// PersistAppendixRequest stores a sources appendix. Markdown empty means
// render it from the persisted ledger, filtered by Section.
type PersistAppendixRequest struct {
	Config   map[string]any `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
	Markdown string         `json:"markdown,omitempty"`
	Section  string         `json:"section,omitempty"`
}

// ReportRequest carries a report body and optional appendix.
type ReportRequest struct {
	Config   map[string]any `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
	Body     string         `json:"body" validate:"required"`
	Appendix string         `json:"appendix,omitempty"`
}

// RouteRequest asks for a retrieval route. Config is optional and only
// used for metadata propagation.
type RouteRequest struct {
	Config         map[string]any `json:"config,omitempty"`
	Query          string         `json:"query" validate:"required"`
	NeedFreshness  bool           `json:"need_freshness,omitempty"`
	PreferInternal bool           `json:"prefer_internal,omitempty"`
}

// PlanApprovalRequest opens a human approval checkpoint.
type PlanApprovalRequest struct {
	Config map[string]any `json:"config,omitempty"`
	Plan   string         `json:"plan" validate:"required"`
}

// ReflectionRequest records a reflection note.
type ReflectionRequest struct {
	Config     map[string]any `json:"config" jsonschema:"runtime config; metadata.user_id and metadata.mission_id select the tenant scope"`
	Reflection string         `json:"reflection" validate:"required"`
}

// =============================================================================
// Results
// =============================================================================

// ManifestResult lists every path of a mission.
type ManifestResult struct {
	Status                     string `json:"status"`
	UserID                     string `json:"user_id"`
	MissionID                  string `json:"mission_id"`
	CanonicalDeliveryRoot      string `json:"canonical_delivery_root"`
	UserProfilePreferences     string `json:"user_profile_preferences"`
	MissionRoot                string `json:"mission_root"`
	RawMaterialsDir            string `json:"raw_materials_dir"`
	KnowledgeGraphDir          string `json:"knowledge_graph_dir"`
	DraftsDir                  string `json:"drafts_dir"`
	CitationLedgerPath         string `json:"citation_ledger_path"`
	SourcesAppendixPrivatePath string `json:"sources_appendix_private_path"`
	SourcesAppendixPublicPath  string `json:"sources_appendix_public_path"`
	FinalReportPrivatePath     string `json:"final_report_private_path"`
	FinalReportPublicPath      string `json:"final_report_public_path"`
	ReflectionsPath            string `json:"reflections_path"`
}

// LedgerResult returns a merged ledger.
type LedgerResult struct {
	Status     string           `json:"status"`
	Ledger     *citation.Ledger `json:"ledger"`
	LedgerJSON string           `json:"ledger_json"`
}

// RenderResult returns rendered markdown.
type RenderResult struct {
	Status   string `json:"status"`
	Markdown string `json:"markdown"`
}

// SubmitEvidenceResult reports a persisted merge.
type SubmitEvidenceResult struct {
	Status         string                `json:"status"`
	Path           string                `json:"path"`
	WriteStatus    artifact.WriteOutcome `json:"write_status"`
	NewCitationIDs []string              `json:"new_citation_ids"`
	Ledger         *citation.Ledger      `json:"ledger"`
}

// WriteResult reports a single-path upsert.
type WriteResult struct {
	Status      string                `json:"status"`
	Path        string                `json:"path"`
	WriteStatus artifact.WriteOutcome `json:"write_status"`
}

// DualWriteResult reports a private plus public upsert.
type DualWriteResult struct {
	Status string `json:"status"`
	artifact.DualResult
}

// PublishResult is the outcome of the canonical publish flow.
type PublishResult struct {
	Status       string            `json:"status"`
	Finalize     DualWriteResult   `json:"finalize"`
	Verify       report.GateResult `json:"verify"`
	DeliveryPath string            `json:"delivery_path"`
	NextAction   string            `json:"next_action"`
}

// RouteResult is a routing decision plus the tenant metadata to forward to
// the chosen retrieval collaborators.
type RouteResult struct {
	Status string `json:"status"`
	routing.Decision
	ToolMetadata map[string]string `json:"tool_metadata,omitempty"`
}

// CheckpointResult acknowledges a human-in-the-loop checkpoint.
type CheckpointResult struct {
	Status     string `json:"status"`
	Checkpoint string `json:"checkpoint"`
	Message    string `json:"message"`
}

// ReflectionResult acknowledges a recorded reflection.
type ReflectionResult struct {
	Status      string                `json:"status"`
	Message     string                `json:"message"`
	Path        string                `json:"path"`
	WriteStatus artifact.WriteOutcome `json:"write_status"`
}
