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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md(user, mission string) map[string]any {
	return map[string]any{"user_id": user, "mission_id": mission}
}

func fromMetadata(metadata map[string]any) (TenantScope, error) {
	return Resolve(map[string]any{"metadata": metadata})
}

// TestResolve_Shapes verifies each supported config shape.
func TestResolve_Shapes(t *testing.T) {
	shapes := map[string]map[string]any{
		"metadata":                            {"metadata": md("u1", "m1")},
		"configurable.metadata":               {"configurable": map[string]any{"metadata": md("u1", "m1")}},
		"configurable.thread.metadata":        {"configurable": map[string]any{"thread": map[string]any{"metadata": md("u1", "m1")}}},
		"configurable.thread_config.metadata": {"configurable": map[string]any{"thread_config": map[string]any{"metadata": md("u1", "m1")}}},
		"context.metadata":                    {"context": map[string]any{"metadata": md("u1", "m1")}},
		"context":                             {"context": md("u1", "m1")},
	}
	for name, cfg := range shapes {
		s, err := Resolve(cfg)
		require.NoError(t, err, name)
		assert.Equal(t, TenantScope{UserID: "u1", MissionID: "m1"}, s, name)
	}
}

// TestResolve_Priority verifies the first shape present wins.
func TestResolve_Priority(t *testing.T) {
	cfg := map[string]any{
		"metadata": md("top", "m-top"),
		"configurable": map[string]any{
			"metadata": md("nested", "m-nested"),
		},
	}
	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "top", s.UserID)

	cfg = map[string]any{
		"configurable": map[string]any{
			"thread":        map[string]any{"metadata": md("thread", "m")},
			"thread_config": map[string]any{"metadata": md("thread_config", "m")},
		},
	}
	s, err = Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "thread", s.UserID)
}

// TestResolve_FirstMapIsAuthoritative verifies a winning map without IDs
// does not fall through to lower-priority shapes.
func TestResolve_FirstMapIsAuthoritative(t *testing.T) {
	cfg := map[string]any{
		"metadata":     map[string]any{"other": "x"},
		"configurable": map[string]any{"metadata": md("u1", "m1")},
	}
	_, err := Resolve(cfg)
	assert.ErrorIs(t, err, ErrMissingScope)
}

// TestResolve_ThreadFallback verifies thread_id is used only when
// mission_id is absent.
func TestResolve_ThreadFallback(t *testing.T) {
	s, err := fromMetadata(map[string]any{"user_id": "u1", "thread_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", s.MissionID)

	s, err = fromMetadata(map[string]any{"user_id": "u1", "thread_id": "t1", "mission_id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", s.MissionID)
}

func TestResolve_Missing(t *testing.T) {
	_, err := Resolve(nil)
	assert.ErrorIs(t, err, ErrMissingScope)

	_, err = fromMetadata(map[string]any{"user_id": "u1"})
	assert.ErrorIs(t, err, ErrMissingScope)

	_, err = Resolve(map[string]any{"metadata": "not-a-map"})
	assert.ErrorIs(t, err, ErrMissingScope)
}

func TestResolve_InvalidIDs(t *testing.T) {
	_, err := fromMetadata(md("u1", "../m"))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "mission_id", verr.Field)
}

func TestResolve_Stringifies(t *testing.T) {
	s, err := fromMetadata(map[string]any{"user_id": "u1", "mission_id": 42})
	require.NoError(t, err)
	assert.Equal(t, "42", s.MissionID)
}

// TestResolve_PaddedIDsFail verifies whitespace is rejected, not trimmed.
func TestResolve_PaddedIDsFail(t *testing.T) {
	tests := []struct {
		name  string
		md    map[string]any
		field string
	}{
		{"padded user", map[string]any{"user_id": " u1 ", "mission_id": "m1"}, "user_id"},
		{"newline mission", map[string]any{"user_id": "alice", "mission_id": "m1\n"}, "mission_id"},
		{"tab thread", map[string]any{"user_id": "u1", "thread_id": "\tt1"}, "mission_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromMetadata(tt.md)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

// TestResolve_BlankIDsAreMissing verifies whitespace-only IDs count as absent.
func TestResolve_BlankIDsAreMissing(t *testing.T) {
	_, err := fromMetadata(map[string]any{"user_id": "   ", "mission_id": "m1"})
	assert.ErrorIs(t, err, ErrMissingScope)

	s, err := fromMetadata(map[string]any{"user_id": "u1", "mission_id": " ", "thread_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", s.MissionID)
}

// TestPropagatedMetadata verifies only allow-listed keys are forwarded.
func TestPropagatedMetadata(t *testing.T) {
	cfg := map[string]any{"metadata": map[string]any{
		"user_id":     "u1",
		"mission_id":  "m1",
		"tenant_role": "analyst",
		"api_key":     "secret",
		"tenant_id":   "",
	}}
	got := PropagatedMetadata(cfg)
	assert.Equal(t, map[string]string{"user_id": "u1", "mission_id": "m1", "tenant_role": "analyst"}, got)
	assert.Empty(t, PropagatedMetadata(nil))
}
