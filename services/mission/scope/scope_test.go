// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scope

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TenantScope
// =============================================================================

// TestNew_ValidIdentifiers verifies accepted identifier shapes.
func TestNew_ValidIdentifiers(t *testing.T) {
	valid := []string{"a", "user_1", "MISSION-2024", strings.Repeat("x", 64), "A-b_C-9"}
	for _, id := range valid {
		s, err := New(id, id)
		require.NoError(t, err, id)
		assert.Equal(t, id, s.UserID)
		assert.Equal(t, id, s.MissionID)
	}
}

// TestNew_InvalidIdentifiers verifies construction fails fast.
func TestNew_InvalidIdentifiers(t *testing.T) {
	invalid := []string{"", strings.Repeat("x", 65), "a/b", "..", "../etc", "has space", "ünicode", "a.b", " a"}
	for _, id := range invalid {
		_, err := New(id, "m1")
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "user_id %q", id)
		assert.Equal(t, "user_id", verr.Field)

		_, err = New("u1", id)
		require.True(t, errors.As(err, &verr), "mission_id %q", id)
		assert.Equal(t, "mission_id", verr.Field)
	}
}

func TestValidationError_TruncatesValue(t *testing.T) {
	err := &ValidationError{Field: "user_id", Value: strings.Repeat("z", 200)}
	assert.Less(t, len(err.Error()), 200)
}

func TestTenantScope_Key(t *testing.T) {
	s, err := New("u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "u1/m1", s.Key())
	assert.Equal(t, []any{"user_id", "u1", "mission_id", "m1"}, s.LogAttrs())
}

// =============================================================================
// Paths
// =============================================================================

func mustPaths(t *testing.T, user, mission string) Paths {
	t.Helper()
	s, err := New(user, mission)
	require.NoError(t, err)
	return NewPaths(s)
}

// TestPaths_Layout verifies the canonical layout.
func TestPaths_Layout(t *testing.T) {
	p := mustPaths(t, "u1", "m1")

	cases := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"root", p.MissionRoot, "/memories/users/u1/missions/m1"},
		{"profile", p.ProfilePreferences, "/memories/users/u1/profile/preferences.json"},
		{"raw", p.RawMaterialsDir, "/memories/users/u1/missions/m1/raw_materials"},
		{"kg", p.KnowledgeGraphDir, "/memories/users/u1/missions/m1/knowledge_graph"},
		{"drafts", p.DraftsDir, "/memories/users/u1/missions/m1/drafts"},
		{"ledger", p.CitationLedgerPath, "/memories/users/u1/missions/m1/knowledge_graph/citation_ledger.json"},
		{"appendix", p.SourcesAppendixPath, "/memories/users/u1/missions/m1/drafts/sources_appendix.md"},
		{"report", p.FinalReportPath, "/memories/users/u1/missions/m1/drafts/final_report.md"},
		{"reflections", p.ReflectionsPath, "/memories/users/u1/missions/m1/drafts/reflections.md"},
	}
	for _, tc := range cases {
		got, err := tc.fn()
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

// TestPaths_MissionDerivationsStayUnderRoot verifies every mission
// derivation starts with the mission root for a range of identifiers.
func TestPaths_MissionDerivationsStayUnderRoot(t *testing.T) {
	ids := [][2]string{{"u", "m"}, {"user-1", "mission_2"}, {strings.Repeat("a", 64), strings.Repeat("b", 64)}}
	for _, pair := range ids {
		p := mustPaths(t, pair[0], pair[1])
		root, err := p.MissionRoot()
		require.NoError(t, err)

		for _, fn := range []func() (string, error){
			p.RawMaterialsDir, p.KnowledgeGraphDir, p.DraftsDir,
			p.CitationLedgerPath, p.SourcesAppendixPath, p.FinalReportPath,
		} {
			got, err := fn()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got, root+"/"), got)
		}

		got, err := p.MissionPath("notes", "a", "..", "b.md")
		require.NoError(t, err)
		assert.Equal(t, root+"/notes/b.md", got)
	}
}

// TestPaths_MissionPathEscape verifies traversal fails instead of clamping.
func TestPaths_MissionPathEscape(t *testing.T) {
	p := mustPaths(t, "u1", "m1")

	escapes := [][]string{
		{".."},
		{"../m2/drafts"},
		{"drafts", "..", "..", "m2"},
		{"../../../../etc/passwd"},
		{"ok\x00bad"},
	}
	for _, parts := range escapes {
		_, err := p.MissionPath(parts...)
		var perr *PathEscapeError
		require.True(t, errors.As(err, &perr), "%q", parts)
		assert.Equal(t, "/memories/users/u1/missions/m1", perr.Root)
	}
}

func TestPaths_LeadingSlashStaysInside(t *testing.T) {
	p := mustPaths(t, "u1", "m1")
	got, err := p.MissionPath("/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "/memories/users/u1/missions/m1/etc/passwd", got)
}

// TestPaths_NoOverlappingRoots verifies sibling missions never nest.
func TestPaths_NoOverlappingRoots(t *testing.T) {
	a, err := mustPaths(t, "u1", "m").MissionRoot()
	require.NoError(t, err)
	b, err := mustPaths(t, "u1", "m2").MissionRoot()
	require.NoError(t, err)
	c, err := mustPaths(t, "u11", "m").MissionRoot()
	require.NoError(t, err)

	assert.False(t, Within(a, b))
	assert.False(t, Within(b, a))
	assert.False(t, Within(a, c))
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("/a/b", "/a/b"))
	assert.True(t, Within("/a/b/", "/a/b/c"))
	assert.False(t, Within("/a/b", "/a/bc"))
	assert.False(t, Within("/a/b", "/a"))
}
