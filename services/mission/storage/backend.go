// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the file capability the mission vault writes
// through, and the router that splits it across two scopes.
//
// # Description
//
// Two scopes exist:
//
//   - ephemeral: per-conversation file state (StateBackend over a
//     FileState the caller holds)
//   - durable: cross-conversation storage (MemoryStore, badgerstore,
//     gcsstore)
//
// Router dispatches each call to one of them by longest path prefix, so
// callers see one Backend regardless of where a path lives.
//
// # Error Contract
//
//   - ErrNotFound: the path does not exist. A legitimate state.
//   - ErrAlreadyExists: Write was called on an existing path.
//   - ErrEditConflict: Edit's old content was not found exactly once.
//   - *BackendError: any other storage failure. Never retried here.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound indicates the path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates Write targeted an existing path.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrEditConflict indicates Edit's old content did not occur exactly once.
	ErrEditConflict = errors.New("edit conflict")
)

// BackendError wraps a storage failure with the operation and path.
type BackendError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// =============================================================================
// Types
// =============================================================================

// FileRecord is one file as tracked in ephemeral state.
type FileRecord struct {
	Content    []byte    `json:"content"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FilesUpdate is the delta a write reports for the caller's file state.
// Durable backends persist directly and return nil.
type FilesUpdate map[string]FileRecord

// Backend is the file capability.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Backend interface {
	// Download returns the content at path, or ErrNotFound.
	Download(ctx context.Context, path string) ([]byte, error)

	// Write creates path with content. Fails with ErrAlreadyExists if
	// path exists.
	Write(ctx context.Context, path string, content []byte) (FilesUpdate, error)

	// Edit replaces the single occurrence of oldContent with newContent
	// in path.
	Edit(ctx context.Context, path string, oldContent, newContent []byte) (FilesUpdate, error)
}

// ApplyEdit replaces the single occurrence of oldContent in current with
// newContent.
//
// Description:
//
//	An empty oldContent is only accepted when current is empty, so an edit can
//	never silently prepend. Zero or multiple occurrences fail with
//	ErrEditConflict.
//
// Outputs:
//
//	[]byte - The edited content (a new slice).
//	error - ErrEditConflict (wrapped) when oldContent is not unique.
func ApplyEdit(current, oldContent, newContent []byte) ([]byte, error) {
	if len(oldContent) == 0 {
		if len(current) != 0 {
			return nil, fmt.Errorf("empty old content on non-empty file: %w", ErrEditConflict)
		}
		return bytes.Clone(newContent), nil
	}
	switch n := bytes.Count(current, oldContent); n {
	case 0:
		return nil, fmt.Errorf("old content not found: %w", ErrEditConflict)
	case 1:
		return bytes.Replace(current, oldContent, newContent, 1), nil
	default:
		return nil, fmt.Errorf("old content occurs %d times: %w", n, ErrEditConflict)
	}
}
