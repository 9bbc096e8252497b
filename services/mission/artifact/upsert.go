// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact implements idempotent artifact writes.
//
// # Description
//
// Upsert compares the new content with what the backend holds and only
// writes when it differs, reporting an explicit WriteOutcome so a retried
// call can tell "already there" from "just written". UpsertDual mirrors
// one logical artifact to a private scoped path and a public delivery
// path.
//
// # Thread Safety
//
// Upserter is safe for concurrent use across distinct paths. Concurrent
// upserts of the same path must be serialized by the caller.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// WriteOutcome is the result of one upsert.
type WriteOutcome string

const (
	// Created means the path did not exist and was written.
	Created WriteOutcome = "created"

	// Updated means the path held different content and was replaced.
	Updated WriteOutcome = "updated"

	// Unchanged means the path already held identical content.
	Unchanged WriteOutcome = "unchanged"

	// Failed marks a dual-write side that returned an error.
	Failed WriteOutcome = "error"
)

// ErrPartialWrite indicates exactly one side of a dual write failed.
var ErrPartialWrite = errors.New("partial dual write")

// OutcomeObserver receives every successful outcome. Used for metrics.
type OutcomeObserver func(outcome WriteOutcome)

// Upserter writes artifacts through a backend and keeps the caller's
// ephemeral file state in sync with reported deltas.
type Upserter struct {
	backend storage.Backend
	state   *storage.FileState
	observe OutcomeObserver
	logger  *slog.Logger
}

// Option configures an Upserter.
type Option func(*Upserter)

// WithObserver registers an outcome observer.
func WithObserver(fn OutcomeObserver) Option {
	return func(u *Upserter) { u.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Upserter) { u.logger = logger }
}

// NewUpserter returns an Upserter.
//
// Inputs:
//
//	backend - The (usually routed) backend to write through.
//	state - The caller's ephemeral file state. May be nil when the
//	        backend never reports deltas.
//	opts - Optional observer and logger.
func NewUpserter(backend storage.Backend, state *storage.FileState, opts ...Option) *Upserter {
	u := &Upserter{backend: backend, state: state, logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upsert writes content to path idempotently.
//
// Description:
//
//	1. Download the current content; storage.ErrNotFound means absent.
//	2. Absent: Write, return Created.
//	3. Byte-identical: return Unchanged without writing.
//	4. Different: Edit with the whole previous content as the old text,
//	   return Updated.
//
//	Any delta the backend reports is merged into the file state before
//	returning.
//
// Outputs:
//
//	WriteOutcome - Created, Updated or Unchanged.
//	error - Backend failures other than not-found.
func (u *Upserter) Upsert(ctx context.Context, path string, content []byte) (WriteOutcome, error) {
	existing, err := u.backend.Download(ctx, path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		update, err := u.backend.Write(ctx, path, content)
		if err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		u.track(update)
		return u.done(path, Created), nil

	case err != nil:
		return "", fmt.Errorf("read %s: %w", path, err)

	case bytes.Equal(existing, content):
		return u.done(path, Unchanged), nil

	default:
		update, err := u.backend.Edit(ctx, path, existing, content)
		if err != nil {
			return "", fmt.Errorf("edit %s: %w", path, err)
		}
		u.track(update)
		return u.done(path, Updated), nil
	}
}

// UpsertString is Upsert for text content.
func (u *Upserter) UpsertString(ctx context.Context, path, content string) (WriteOutcome, error) {
	return u.Upsert(ctx, path, []byte(content))
}

// DualResult reports both sides of a dual write.
type DualResult struct {
	PrivatePath   string       `json:"private_path"`
	PrivateStatus WriteOutcome `json:"private_status"`
	PrivateError  string       `json:"private_error,omitempty"`
	PublicPath    string       `json:"public_path"`
	PublicStatus  WriteOutcome `json:"public_status"`
	PublicError   string       `json:"public_error,omitempty"`
}

// OK reports whether both sides succeeded.
func (r DualResult) OK() bool {
	return r.PrivateStatus != Failed && r.PublicStatus != Failed
}

// UpsertDual upserts content to both paths independently.
//
// Description:
//
//	The public write is attempted even when the private one fails. The
//	writes are not transactional.
//
// Outputs:
//
//	DualResult - Per-side outcome; failed sides carry Failed and a message.
//	error - nil when both succeed; wraps ErrPartialWrite and the failing
//	        side's error when exactly one fails; joins both errors when
//	        both fail.
func (u *Upserter) UpsertDual(ctx context.Context, privatePath, publicPath string, content []byte) (DualResult, error) {
	res := DualResult{PrivatePath: privatePath, PublicPath: publicPath}

	privOutcome, privErr := u.Upsert(ctx, privatePath, content)
	res.PrivateStatus = privOutcome
	if privErr != nil {
		res.PrivateStatus = Failed
		res.PrivateError = privErr.Error()
	}

	pubOutcome, pubErr := u.Upsert(ctx, publicPath, content)
	res.PublicStatus = pubOutcome
	if pubErr != nil {
		res.PublicStatus = Failed
		res.PublicError = pubErr.Error()
	}

	switch {
	case privErr != nil && pubErr != nil:
		return res, errors.Join(privErr, pubErr)
	case privErr != nil:
		u.logger.Warn("dual write partially failed", "failed_path", privatePath, "error", privErr)
		return res, fmt.Errorf("%w: private %s: %w", ErrPartialWrite, privatePath, privErr)
	case pubErr != nil:
		u.logger.Warn("dual write partially failed", "failed_path", publicPath, "error", pubErr)
		return res, fmt.Errorf("%w: public %s: %w", ErrPartialWrite, publicPath, pubErr)
	}
	return res, nil
}

func (u *Upserter) track(update storage.FilesUpdate) {
	if u.state != nil {
		u.state.Merge(update)
	}
}

func (u *Upserter) done(path string, outcome WriteOutcome) WriteOutcome {
	u.logger.Debug("artifact upserted", "path", path, "outcome", string(outcome))
	if u.observe != nil {
		u.observe(outcome)
	}
	return outcome
}
