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
	"errors"
	"fmt"
	"net/http"

	"github.com/AleutianAI/AleutianResearch/services/mission/artifact"
	"github.com/AleutianAI/AleutianResearch/services/mission/scope"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// =============================================================================
// Envelope
// =============================================================================

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPass  = "pass"
	StatusFail  = "fail"
)

// Error types carried by an error envelope.
const (
	ErrorTypeValidation   = "ValidationError"
	ErrorTypePathEscape   = "PathEscapeError"
	ErrorTypeNotFound     = "NotFound"
	ErrorTypeBackend      = "BackendError"
	ErrorTypePartialWrite = "PartialWriteError"
	ErrorTypeInternal     = "InternalError"
	ErrorTypeRateLimited  = "RateLimitError"
)

// Envelope is the machine-parseable failure payload of a tool call.
type Envelope struct {
	Status    string `json:"status"`
	Tool      string `json:"tool"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

// HTTPStatus maps the error type to an HTTP status code.
func (e Envelope) HTTPStatus() int {
	switch e.ErrorType {
	case ErrorTypeValidation, ErrorTypePathEscape:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeBackend, ErrorTypePartialWrite:
		return http.StatusBadGateway
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToolError classifies err into an error envelope for tool.
func ToolError(tool string, err error) Envelope {
	env := Envelope{
		Status:    StatusError,
		Tool:      tool,
		ErrorType: classify(err),
		Message:   err.Error(),
	}
	var dual *DualWriteError
	if errors.As(err, &dual) {
		env.Details = dual.Result
	}
	return env
}

func classify(err error) string {
	var (
		verr  *scope.ValidationError
		perr  *scope.PathEscapeError
		inerr *InputError
		berr  *storage.BackendError
		dual  *DualWriteError
	)
	switch {
	case errors.As(err, &perr):
		return ErrorTypePathEscape
	case errors.As(err, &verr), errors.As(err, &inerr), errors.Is(err, scope.ErrMissingScope):
		return ErrorTypeValidation
	case errors.Is(err, artifact.ErrPartialWrite):
		return ErrorTypePartialWrite
	case errors.Is(err, storage.ErrNotFound):
		return ErrorTypeNotFound
	case errors.As(err, &berr), errors.As(err, &dual):
		return ErrorTypeBackend
	default:
		return ErrorTypeInternal
	}
}

// =============================================================================
// Errors
// =============================================================================

// ErrCorruptLedger indicates the persisted citation ledger does not parse.
// It is never overwritten automatically.
var ErrCorruptLedger = errors.New("persisted citation ledger is corrupt")

// InputError reports a malformed request field.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// DualWriteError carries the per-side outcome of a failed dual write.
type DualWriteError struct {
	Result artifact.DualResult
	Err    error
}

func (e *DualWriteError) Error() string { return e.Err.Error() }

func (e *DualWriteError) Unwrap() error { return e.Err }
