// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		needFreshness  bool
		preferInternal bool
		want           Route
	}{
		{"prefer internal", "market size", false, true, RouteInternal},
		{"prefer internal loses to freshness keyword", "latest market size", false, true, RouteExternal},
		{"need freshness", "market size", true, false, RouteExternal},
		{"need freshness with internal keyword", "our policy on pricing", true, false, RouteInternal},
		{"both keywords", "Recent changes to internal playbook", false, false, RouteHybrid},
		{"both flags", "market size", true, true, RouteHybrid},
		{"internal keyword", "company History", false, false, RouteInternal},
		{"freshness keyword", "Today's NEWS on chips", false, false, RouteExternal},
		{"cjk freshness", "半导体最新进展", false, false, RouteExternal},
		{"cjk internal", "查询知识库中的制度", false, false, RouteInternal},
		{"cjk mixed", "内部 实时 数据", false, false, RouteHybrid},
		{"default", "how do batteries work", false, false, RouteHybrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.query, tt.needFreshness, tt.preferInternal)
			assert.Equal(t, tt.want, d.Route)
			assert.NotEmpty(t, d.Rationale)
			assert.NotEmpty(t, d.ExecutionPlan)
		})
	}
}

func TestDecide_PlanIsACopy(t *testing.T) {
	d := Decide("x", false, false)
	d.ExecutionPlan[0] = "mutated"
	assert.NotEqual(t, "mutated", Decide("x", false, false).ExecutionPlan[0])
	assert.Len(t, d.ExecutionPlan, 3)
}
