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
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianResearch/services/mission/scope"
)

// =============================================================================
// FileState
// =============================================================================

// FileState is the ephemeral file set of one conversation.
//
// StateBackend reads from it but never writes to it: writes return a
// FilesUpdate which the caller merges with Merge. A caller that skips the
// merge will read stale content.
//
// Thread Safety: Safe for concurrent use.
type FileState struct {
	mu    sync.RWMutex
	files map[string]FileRecord
}

// NewFileState returns an empty FileState.
func NewFileState() *FileState {
	return &FileState{files: make(map[string]FileRecord)}
}

// Get returns the record at path.
func (s *FileState) Get(path string) (FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[path]
	return rec, ok
}

// Merge applies a write delta. Nil updates are ignored.
func (s *FileState) Merge(update FilesUpdate) {
	if len(update) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, rec := range update {
		s.files[path] = FileRecord{Content: bytes.Clone(rec.Content), ModifiedAt: rec.ModifiedAt}
	}
}

// Paths returns tracked paths in sorted order.
func (s *FileState) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// =============================================================================
// StateBackend
// =============================================================================

// StateBackend is the ephemeral Backend over a FileState.
type StateBackend struct {
	state *FileState
	now   func() time.Time
}

// NewStateBackend returns a StateBackend reading from state.
func NewStateBackend(state *FileState) *StateBackend {
	return &StateBackend{state: state, now: time.Now}
}

// Download returns a copy of the tracked content.
func (b *StateBackend) Download(_ context.Context, path string) ([]byte, error) {
	rec, ok := b.state.Get(path)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(rec.Content), nil
}

// Write reports a creation delta without applying it.
func (b *StateBackend) Write(_ context.Context, path string, content []byte) (FilesUpdate, error) {
	if _, ok := b.state.Get(path); ok {
		return nil, ErrAlreadyExists
	}
	return FilesUpdate{path: {Content: bytes.Clone(content), ModifiedAt: b.now()}}, nil
}

// Edit reports an edit delta without applying it.
func (b *StateBackend) Edit(_ context.Context, path string, oldContent, newContent []byte) (FilesUpdate, error) {
	rec, ok := b.state.Get(path)
	if !ok {
		return nil, ErrNotFound
	}
	edited, err := ApplyEdit(rec.Content, oldContent, newContent)
	if err != nil {
		return nil, err
	}
	return FilesUpdate{path: {Content: edited, ModifiedAt: b.now()}}, nil
}

// =============================================================================
// StateRegistry
// =============================================================================

// DefaultStateIdleTTL is how long an untouched conversation state is kept.
const DefaultStateIdleTTL = time.Hour

type stateEntry struct {
	state    *FileState
	lastSeen time.Time
}

// StateRegistry holds the ephemeral FileState of each live conversation,
// keyed by tenant scope. States not touched for the idle TTL are evicted
// on the next lookup.
//
// Thread Safety: Safe for concurrent use.
type StateRegistry struct {
	mu      sync.Mutex
	entries map[string]*stateEntry
	idleTTL time.Duration
	now     func() time.Time
}

// RegistryOption configures a StateRegistry.
type RegistryOption func(*StateRegistry)

// WithIdleTTL sets the idle eviction window. Non-positive values disable
// eviction.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *StateRegistry) { r.idleTTL = d }
}

// WithRegistryClock overrides the registry's time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *StateRegistry) { r.now = now }
}

// NewStateRegistry returns an empty registry.
func NewStateRegistry(opts ...RegistryOption) *StateRegistry {
	r := &StateRegistry{
		entries: make(map[string]*stateEntry),
		idleTTL: DefaultStateIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns the FileState of s, creating it on first use, and prunes
// idle conversations.
func (r *StateRegistry) For(s scope.TenantScope) *FileState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.idleTTL > 0 {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) > r.idleTTL {
				delete(r.entries, k)
			}
		}
	}
	e, ok := r.entries[s.Key()]
	if !ok {
		e = &stateEntry{state: NewFileState()}
		r.entries[s.Key()] = e
	}
	e.lastSeen = now
	return e.state
}

// Len returns the number of live conversations.
func (r *StateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
