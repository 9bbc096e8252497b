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
	"path"
	"strings"
)

// MemoriesPrefix is the tenant memory root. Paths under it are durable.
const MemoriesPrefix = "/memories/"

// Mission sub-directories and artifact names.
const (
	RawMaterialsDirName   = "raw_materials"
	KnowledgeGraphDirName = "knowledge_graph"
	DraftsDirName         = "drafts"

	CitationLedgerFile  = "citation_ledger.json"
	SourcesAppendixFile = "sources_appendix.md"
	FinalReportFile     = "final_report.md"
	ReflectionsFile     = "reflections.md"
)

// Paths derives canonical, sandboxed paths for a TenantScope.
//
// Layout:
//
//	/memories/users/{user_id}/profile/preferences.json
//	/memories/users/{user_id}/missions/{mission_id}/
//	    raw_materials/
//	    knowledge_graph/citation_ledger.json
//	    drafts/sources_appendix.md
//	    drafts/final_report.md
//
// Every derivation is checked against its root and fails with
// *PathEscapeError instead of returning a path outside it.
type Paths struct {
	scope       TenantScope
	userRoot    string
	missionRoot string
}

// NewPaths returns the path manager for s.
func NewPaths(s TenantScope) Paths {
	userRoot := path.Join(MemoriesPrefix, "users", s.UserID)
	return Paths{
		scope:       s,
		userRoot:    userRoot,
		missionRoot: path.Join(userRoot, "missions", s.MissionID),
	}
}

// Scope returns the scope the paths were derived from.
func (p Paths) Scope() TenantScope { return p.scope }

// MissionRoot returns the root directory of the mission.
func (p Paths) MissionRoot() (string, error) {
	return p.resolve(p.missionRoot, p.missionRoot)
}

// ProfilePreferences returns the user's preferences file. It is rooted at
// the user root since preferences outlive any single mission.
func (p Paths) ProfilePreferences() (string, error) {
	return p.resolve(p.userRoot, p.userRoot, "profile", "preferences.json")
}

// RawMaterialsDir returns the directory for collected source material.
func (p Paths) RawMaterialsDir() (string, error) {
	return p.MissionPath(RawMaterialsDirName)
}

// KnowledgeGraphDir returns the directory for structured knowledge.
func (p Paths) KnowledgeGraphDir() (string, error) {
	return p.MissionPath(KnowledgeGraphDirName)
}

// DraftsDir returns the directory for private report drafts.
func (p Paths) DraftsDir() (string, error) {
	return p.MissionPath(DraftsDirName)
}

// CitationLedgerPath returns knowledge_graph/citation_ledger.json.
func (p Paths) CitationLedgerPath() (string, error) {
	return p.MissionPath(KnowledgeGraphDirName, CitationLedgerFile)
}

// SourcesAppendixPath returns the private drafts/sources_appendix.md.
func (p Paths) SourcesAppendixPath() (string, error) {
	return p.MissionPath(DraftsDirName, SourcesAppendixFile)
}

// FinalReportPath returns the private drafts/final_report.md.
func (p Paths) FinalReportPath() (string, error) {
	return p.MissionPath(DraftsDirName, FinalReportFile)
}

// ReflectionsPath returns drafts/reflections.md.
func (p Paths) ReflectionsPath() (string, error) {
	return p.MissionPath(DraftsDirName, ReflectionsFile)
}

// MissionPath joins parts onto the mission root.
//
// Description:
//
//	The joined path is cleaned, so "a/../b" is accepted while anything
//	that climbs above the mission root is rejected. Leading slashes in
//	parts do not reset the root.
//
// Inputs:
//
//	parts - Relative path segments.
//
// Outputs:
//
//	string - The absolute canonical path.
//	error - *PathEscapeError if the result leaves the mission root.
func (p Paths) MissionPath(parts ...string) (string, error) {
	return p.resolve(p.missionRoot, p.missionRoot, parts...)
}

func (p Paths) resolve(root, base string, parts ...string) (string, error) {
	for _, part := range parts {
		if strings.ContainsRune(part, 0) {
			return "", &PathEscapeError{Root: root, Path: base + "/" + strings.ReplaceAll(part, "\x00", `\0`)}
		}
	}
	candidate := path.Join(append([]string{base}, parts...)...)
	if !Within(root, candidate) {
		return "", &PathEscapeError{Root: root, Path: candidate}
	}
	return candidate, nil
}

// Within reports whether candidate equals root or lies beneath it on a
// segment boundary, so "/a/m1" is not within "/a/m".
func Within(root, candidate string) bool {
	root = strings.TrimSuffix(root, "/")
	return candidate == root || strings.HasPrefix(candidate, root+"/")
}
