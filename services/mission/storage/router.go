// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianResearch/services/mission/scope"
)

type route struct {
	prefix  string
	backend Backend
}

// Router dispatches each call to the backend whose prefix is the longest
// match for the path, or to the default backend.
//
// Thread Safety: Immutable after construction; safe for concurrent use if
// the underlying backends are.
type Router struct {
	def    Backend
	routes []route
}

// NewRouter builds a Router.
//
// Inputs:
//
//	def - Backend for paths no route matches. Must not be nil.
//	routes - Prefix to backend. Nil backends are skipped.
func NewRouter(def Backend, routes map[string]Backend) *Router {
	r := &Router{def: def}
	for prefix, b := range routes {
		if b == nil || prefix == "" {
			continue
		}
		r.routes = append(r.routes, route{prefix: prefix, backend: b})
	}
	sort.Slice(r.routes, func(i, j int) bool {
		if len(r.routes[i].prefix) != len(r.routes[j].prefix) {
			return len(r.routes[i].prefix) > len(r.routes[j].prefix)
		}
		return r.routes[i].prefix < r.routes[j].prefix
	})
	return r
}

// BackendFor returns the backend serving path.
func (r *Router) BackendFor(path string) Backend {
	for _, rt := range r.routes {
		if strings.HasPrefix(path, rt.prefix) {
			return rt.backend
		}
	}
	return r.def
}

func (r *Router) Download(ctx context.Context, path string) ([]byte, error) {
	return r.BackendFor(path).Download(ctx, path)
}

func (r *Router) Write(ctx context.Context, path string, content []byte) (FilesUpdate, error) {
	return r.BackendFor(path).Write(ctx, path, content)
}

func (r *Router) Edit(ctx context.Context, path string, oldContent, newContent []byte) (FilesUpdate, error) {
	return r.BackendFor(path).Edit(ctx, path, oldContent, newContent)
}

// =============================================================================
// Tenant Backend
// =============================================================================

// Runtime is the storage a single call runs against.
type Runtime struct {
	// State is the conversation's ephemeral file state. Required.
	State *FileState

	// Durable is the cross-conversation store. Nil means unavailable.
	Durable Backend
}

// NewTenantBackend builds the composite backend for rt: tenant memory
// paths go to rt.Durable when present, everything else (and everything
// when rt.Durable is nil) to the ephemeral state.
func NewTenantBackend(rt Runtime) *Router {
	var routes map[string]Backend
	if rt.Durable != nil {
		routes = map[string]Backend{scope.MemoriesPrefix: rt.Durable}
	}
	return NewRouter(NewStateBackend(rt.State), routes)
}
