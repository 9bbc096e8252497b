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
	"fmt"
	"strings"
)

// =============================================================================
// Scope Resolution
// =============================================================================

// Strategy locates a metadata object inside a runtime config shape.
type Strategy struct {
	// Name is the dotted path the strategy reads, for diagnostics.
	Name string

	// Lookup returns the metadata map, or nil if the shape is absent.
	Lookup func(configLike map[string]any) map[string]any
}

// DefaultStrategies lists the config shapes runtimes pass metadata in,
// highest priority first.
var DefaultStrategies = []Strategy{
	{Name: "metadata", Lookup: nestedMap("metadata")},
	{Name: "configurable.metadata", Lookup: nestedMap("configurable", "metadata")},
	{Name: "configurable.thread.metadata", Lookup: nestedMap("configurable", "thread", "metadata")},
	{Name: "configurable.thread_config.metadata", Lookup: nestedMap("configurable", "thread_config", "metadata")},
	{Name: "context.metadata", Lookup: nestedMap("context", "metadata")},
	{Name: "context", Lookup: nestedMap("context")},
}

// Resolve builds a TenantScope from a runtime config object using
// DefaultStrategies.
func Resolve(configLike map[string]any) (TenantScope, error) {
	return ResolveWith(configLike, DefaultStrategies)
}

// ResolveWith builds a TenantScope from configLike.
//
// Description:
//
//	The first strategy that yields a metadata map is authoritative; later
//	shapes are not consulted even if the winning map lacks IDs. The
//	mission ID is read from "mission_id" and falls back to "thread_id"
//	only when "mission_id" is absent.
//
// Inputs:
//
//	configLike - The runtime config (nil is treated as empty).
//	strategies - Lookup strategies in priority order.
//
// Outputs:
//
//	TenantScope - The validated scope.
//	error - ErrMissingScope (wrapped) when IDs are absent,
//	        *ValidationError when they are malformed.
func ResolveWith(configLike map[string]any, strategies []Strategy) (TenantScope, error) {
	var metadata map[string]any
	source := ""
	for _, s := range strategies {
		if m := s.Lookup(configLike); m != nil {
			metadata, source = m, s.Name
			break
		}
	}

	userID := stringValue(metadata["user_id"])
	missionID := stringValue(metadata["mission_id"])
	if missionID == "" {
		missionID = stringValue(metadata["thread_id"])
	}
	if userID == "" || missionID == "" {
		if source == "" {
			return TenantScope{}, fmt.Errorf("no metadata found: %w", ErrMissingScope)
		}
		return TenantScope{}, fmt.Errorf("resolve from %s: %w", source, ErrMissingScope)
	}
	return New(userID, missionID)
}

// =============================================================================
// Metadata Propagation
// =============================================================================

// AllowedMetadataKeys are the tenant keys forwarded to retrieval
// collaborators. Other metadata stays inside the vault.
var AllowedMetadataKeys = []string{"user_id", "thread_id", "mission_id", "tenant_role", "tenant_id"}

// PropagatedMetadata resolves the metadata map from configLike and keeps
// only AllowedMetadataKeys with non-empty values.
func PropagatedMetadata(configLike map[string]any) map[string]string {
	var metadata map[string]any
	for _, s := range DefaultStrategies {
		if m := s.Lookup(configLike); m != nil {
			metadata = m
			break
		}
	}
	out := make(map[string]string)
	for _, key := range AllowedMetadataKeys {
		if v := stringValue(metadata[key]); v != "" {
			out[key] = v
		}
	}
	return out
}

func nestedMap(keys ...string) func(map[string]any) map[string]any {
	return func(root map[string]any) map[string]any {
		current := root
		for _, key := range keys {
			next, ok := current[key].(map[string]any)
			if !ok {
				return nil
			}
			current = next
		}
		return current
	}
}

// stringValue stringifies v without normalizing it, so padded IDs still
// fail validation. Blank values count as absent.
func stringValue(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
