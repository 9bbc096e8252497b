// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianResearch/services/mission/artifact"
	"github.com/AleutianAI/AleutianResearch/services/mission/citation"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// Gate statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// ReasonEmptyReport is reported when neither report copy has content.
const ReasonEmptyReport = "final report is empty or missing"

// Locations names the artifacts the gate reads and writes.
type Locations struct {
	// PublicReport is the delivery copy, checked first.
	PublicReport string

	// PrivateReport is the mission-scoped copy.
	PrivateReport string

	// Ledger is the persisted citation ledger.
	Ledger string
}

// GateResult is the outcome of one verify-and-repair run.
type GateResult struct {
	Status                   string               `json:"status"`
	Reason                   string               `json:"reason,omitempty"`
	Repaired                 bool                 `json:"repaired"`
	Notes                    []string             `json:"notes"`
	FinalReportPath          string               `json:"final_report_path"`
	FinalReportPrivatePath   string               `json:"final_report_private_path"`
	UnmatchedInlineCitations []string             `json:"unmatched_inline_citations"`
	Write                    *artifact.DualResult `json:"write,omitempty"`
}

// Passed reports whether the report may be declared complete.
func (r GateResult) Passed() bool { return r.Status == StatusPass }

// Gate verifies that every inline citation in the final report is listed in
// its sources section, appending the full ledger render when it is not.
//
// Thread Safety: Gate holds no state of its own. Runs against the same
// mission must be serialized by the caller.
type Gate struct {
	backend  storage.Backend
	upserter *artifact.Upserter
	logger   *slog.Logger
}

// NewGate creates a gate reading through backend and repairing through
// upserter. A nil logger uses slog.Default().
func NewGate(backend storage.Backend, upserter *artifact.Upserter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{backend: backend, upserter: upserter, logger: logger}
}

// VerifyAndRepair runs the gate.
//
// Description:
//
//	Loads the public report, falling back to the private copy when the
//	public one is missing or blank. Repair is needed when the report has
//	no sources heading or cites IDs its sources section does not list. A
//	repair appends Separator plus the full ledger render and dual-writes
//	the result, unless the report already ends with that exact block.
//	The status is then recomputed from the final text.
//
// Inputs:
//
//	ctx - Context for storage calls.
//	loc - Report and ledger paths.
//
// Outputs:
//
//	GateResult - The verdict. Status is "fail" with ReasonEmptyReport when
//	             no report content exists.
//	error - Storage read failures, or the dual-write error of a repair.
//	        On a repair write error the returned result is still filled.
func (g *Gate) VerifyAndRepair(ctx context.Context, loc Locations) (GateResult, error) {
	res := GateResult{
		Notes:                    []string{},
		FinalReportPath:          loc.PublicReport,
		FinalReportPrivatePath:   loc.PrivateReport,
		UnmatchedInlineCitations: []string{},
	}

	doc, err := g.readText(ctx, loc.PublicReport)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(doc) == "" {
		if doc, err = g.readText(ctx, loc.PrivateReport); err != nil {
			return res, err
		}
	}
	if strings.TrimSpace(doc) == "" {
		res.Status = StatusFail
		res.Reason = ReasonEmptyReport
		return res, nil
	}

	missing := Unmatched(doc)
	hasHeading := HasSourcesHeading(doc)

	var writeErr error
	if !hasHeading || len(missing) > 0 {
		block, err := g.ledgerBlock(ctx, loc.Ledger)
		if err != nil {
			return res, err
		}

		trimmed := strings.TrimRightFunc(doc, unicode.IsSpace)
		if strings.HasSuffix(trimmed, block) {
			res.Notes = append(res.Notes, "ledger sources already appended; no further repair possible")
		} else {
			doc = trimmed + Separator + block + "\n"
			res.Repaired = true
			if !hasHeading {
				res.Notes = append(res.Notes, "appended missing Sources section from ledger")
			} else {
				res.Notes = append(res.Notes, fmt.Sprintf(
					"sources section missing citation ids: %v; appended full ledger sources", missing))
			}

			write, err := g.upserter.UpsertDual(ctx, loc.PrivateReport, loc.PublicReport, []byte(doc))
			res.Write = &write
			writeErr = err
		}
	}

	res.UnmatchedInlineCitations = Unmatched(doc)
	res.Status = StatusFail
	if HasSourcesHeading(doc) && len(res.UnmatchedInlineCitations) == 0 {
		res.Status = StatusPass
	}

	g.logger.Info("final report gate evaluated",
		"status", res.Status,
		"repaired", res.Repaired,
		"unmatched", len(res.UnmatchedInlineCitations),
		"path", loc.PublicReport)
	return res, writeErr
}

// ledgerBlock renders the persisted ledger. A missing or blank ledger
// renders as empty; an unparsable one renders degraded.
func (g *Gate) ledgerBlock(ctx context.Context, path string) (string, error) {
	raw, err := g.readText(ctx, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return citation.EmptySources, nil
	}
	return citation.RenderJSON(raw, ""), nil
}

// readText downloads path, treating absence as empty.
func (g *Gate) readText(ctx context.Context, path string) (string, error) {
	data, err := g.backend.Download(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
