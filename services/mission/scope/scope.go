// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scope derives tenant isolation for research missions.
//
// # Description
//
// A TenantScope names one mission belonging to one user. Every artifact
// the mission produces lives under a single path root derived from the
// scope, and every derived path is checked to stay inside that root.
//
// Scopes are resolved per call from runtime metadata (see Resolve) and are
// never persisted.
//
// # Thread Safety
//
// TenantScope and Paths are immutable values and safe for concurrent use.
package scope

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// identifierPattern is the safe-identifier rule for user and mission IDs.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var scopeValidate *validator.Validate

func init() {
	scopeValidate = validator.New()
	scopeValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = scopeValidate.RegisterValidation("safeid", validateSafeID)
}

// validateSafeID is the validator for the "safeid" tag.
func validateSafeID(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

// =============================================================================
// Errors
// =============================================================================

// ErrMissingScope indicates runtime metadata carried no user or mission ID.
var ErrMissingScope = errors.New("metadata.user_id and metadata.mission_id are required")

// ValidationError reports an identifier that failed the safe-identifier rule.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	v := e.Value
	if len(v) > 80 {
		v = v[:80] + "..."
	}
	return fmt.Sprintf("invalid %s %q: must match %s", e.Field, v, identifierPattern.String())
}

// PathEscapeError reports a derived path that resolved outside its root.
type PathEscapeError struct {
	Root string
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path escape detected: %s is outside %s", e.Path, e.Root)
}

// =============================================================================
// TenantScope
// =============================================================================

// TenantScope identifies one mission of one user.
type TenantScope struct {
	UserID    string `json:"user_id" validate:"safeid"`
	MissionID string `json:"mission_id" validate:"safeid"`
}

// New validates and returns a TenantScope.
//
// Description:
//
//	Both identifiers must match ^[a-zA-Z0-9_-]{1,64}$. Input is not
//	trimmed or corrected; anything else fails before a scope exists.
//
// Inputs:
//
//	userID - The owning user.
//	missionID - The mission (unit of work) within that user.
//
// Outputs:
//
//	TenantScope - The validated scope.
//	error - *ValidationError for the first offending field.
func New(userID, missionID string) (TenantScope, error) {
	s := TenantScope{UserID: userID, MissionID: missionID}
	if err := scopeValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return TenantScope{}, &ValidationError{
				Field: verrs[0].Field(),
				Value: fmt.Sprint(verrs[0].Value()),
			}
		}
		return TenantScope{}, err
	}
	return s, nil
}

// Key returns "user_id/mission_id", unique per scope.
func (s TenantScope) Key() string {
	return s.UserID + "/" + s.MissionID
}

// LogAttrs returns slog key-value pairs for the scope.
func (s TenantScope) LogAttrs() []any {
	return []any{"user_id", s.UserID, "mission_id", s.MissionID}
}
