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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the mission tool routes with the router.
//
// Description:
//
//	Registers POST /mission/<tool> for every tool. The router group should
//	already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/mission/mission_storage_manifest
//	POST /v1/mission/build_citation_ledger
//	POST /v1/mission/render_sources_from_ledger
//	POST /v1/mission/submit_evidence
//	POST /v1/mission/persist_citation_ledger
//	POST /v1/mission/persist_sources_appendix
//	POST /v1/mission/finalize_mission_report
//	POST /v1/mission/verify_and_repair_final_report
//	POST /v1/mission/publish_final_report
//	POST /v1/mission/route_research
//	POST /v1/mission/request_plan_approval
//	POST /v1/mission/record_reflection
//	GET  /v1/mission/health
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	svc := handlers.svc
	m := rg.Group("/mission")
	{
		m.POST("/"+ToolManifest, toolHandler(ToolManifest, svc.Manifest))
		m.POST("/"+ToolBuildLedger, toolHandler(ToolBuildLedger, svc.BuildLedger))
		m.POST("/"+ToolRenderSources, toolHandler(ToolRenderSources, svc.RenderSources))
		m.POST("/"+ToolSubmitEvidence, toolHandler(ToolSubmitEvidence, svc.SubmitEvidence))
		m.POST("/"+ToolPersistLedger, toolHandler(ToolPersistLedger, svc.PersistLedger))
		m.POST("/"+ToolPersistAppendix, toolHandler(ToolPersistAppendix, svc.PersistAppendix))
		m.POST("/"+ToolFinalizeReport, toolHandler(ToolFinalizeReport, svc.FinalizeReport))
		m.POST("/"+ToolVerifyReport, toolHandler(ToolVerifyReport, svc.VerifyReport))
		m.POST("/"+ToolPublishReport, toolHandler(ToolPublishReport, svc.PublishReport))
		m.POST("/"+ToolRouteResearch, toolHandler(ToolRouteResearch, svc.RouteResearch))
		m.POST("/"+ToolRequestApproval, toolHandler(ToolRequestApproval, svc.RequestPlanApproval))
		m.POST("/"+ToolRecordReflection, toolHandler(ToolRecordReflection, svc.RecordReflection))

		m.GET("/health", handlers.HandleHealth)
	}
}
