// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing picks the retrieval channel mix for a research query.
package routing

import (
	"strings"
)

// Route is a retrieval channel mix.
type Route string

const (
	RouteInternal Route = "internal_kb"
	RouteExternal Route = "external_web"
	RouteHybrid   Route = "hybrid"
)

var freshnessSignals = []string{
	"latest", "today", "current", "news", "recent",
	"实时", "最新", "近况",
}

var internalSignals = []string{
	"internal", "private", "policy", "playbook", "history",
	"内部", "私有", "制度", "知识库",
}

var executionPlans = map[Route][]string{
	RouteInternal: {
		"Query the internal knowledge base first for internal and historical depth",
		"Preserve citation and source fields from the knowledge-base response",
	},
	RouteExternal: {
		"Run web search for external and latest context",
		"Use the returned web citations in the draft",
	},
	RouteHybrid: {
		"Query the internal knowledge base for internal depth and private context",
		"Run web search for latest external updates",
		"Merge evidence and keep citations from both channels",
	},
}

// Decision is the routing recommendation for one query.
type Decision struct {
	Route         Route    `json:"route"`
	Rationale     string   `json:"rationale"`
	ExecutionPlan []string `json:"execution_plan"`
}

// Decide chooses a route from explicit flags and keyword signals.
//
// Description:
//
//	Rules apply in order and the first match wins:
//	  1. preferInternal, no freshness flag or keyword: internal
//	  2. needFreshness, no internal flag or keyword: external
//	  3. internal and freshness keywords together: hybrid
//	  4. both flags: hybrid
//	  5. internal keyword: internal
//	  6. freshness keyword: external
//	  7. otherwise: hybrid
//
// Inputs:
//
//	query - Research question. Matched case-insensitively by substring.
//	needFreshness - Caller requires up-to-date information.
//	preferInternal - Caller prioritizes private knowledge.
//
// Outputs:
//
//	Decision - Route, rationale and ordered next actions.
func Decide(query string, needFreshness, preferInternal bool) Decision {
	q := strings.ToLower(query)
	fresh := containsAny(q, freshnessSignals)
	internal := containsAny(q, internalSignals)

	var route Route
	var why string
	switch {
	case preferInternal && !needFreshness && !fresh:
		route, why = RouteInternal, "Explicit internal preference with no freshness requirement"
	case needFreshness && !preferInternal && !internal:
		route, why = RouteExternal, "Freshness required without private-knowledge dependency"
	case internal && fresh:
		route, why = RouteHybrid, "Query mixes internal-depth and external-freshness signals"
	case preferInternal && needFreshness:
		route, why = RouteHybrid, "Both internal depth and external freshness are requested"
	case internal:
		route, why = RouteInternal, "Internal or private knowledge signals detected"
	case fresh:
		route, why = RouteExternal, "Freshness or news signals detected"
	default:
		route, why = RouteHybrid, "Default to hybrid retrieval for balanced depth and coverage"
	}

	return Decision{
		Route:         route,
		Rationale:     why,
		ExecutionPlan: append([]string(nil), executionPlans[route]...),
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
