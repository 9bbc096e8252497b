// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mission exposes the mission vault operations.
//
// # Description
//
// Service binds the core packages (scope, storage, artifact, citation,
// report, routing) into named tool operations. Every operation takes a
// typed request and returns a typed result or an error that ToolError
// classifies into an envelope. The HTTP handlers in this package and the
// MCP server in mcpserver are thin dispatchers over Service.
//
// # Thread Safety
//
// Service is safe for concurrent use. Ledger merges, appendix and report
// writes, and reflections are serialized per mission.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianResearch/services/mission/artifact"
	"github.com/AleutianAI/AleutianResearch/services/mission/citation"
	"github.com/AleutianAI/AleutianResearch/services/mission/config"
	"github.com/AleutianAI/AleutianResearch/services/mission/observability"
	"github.com/AleutianAI/AleutianResearch/services/mission/report"
	"github.com/AleutianAI/AleutianResearch/services/mission/routing"
	"github.com/AleutianAI/AleutianResearch/services/mission/scope"
	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// CanonicalDeliveryRoot is the root of the public delivery copies.
const CanonicalDeliveryRoot = "/"

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Options configures a Service.
type Options struct {
	// Durable serves /memories/. Nil keeps everything in ephemeral state.
	Durable storage.Backend

	// States holds ephemeral file state per mission. Nil creates one.
	States *storage.StateRegistry

	// Delivery names the public copies. Blank fields use config defaults.
	Delivery config.DeliveryConfig

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service implements the mission tool operations.
type Service struct {
	durable  storage.Backend
	states   *storage.StateRegistry
	delivery config.DeliveryConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	locks    *missionLocks
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	defaults := config.Default().Delivery
	if opts.Delivery.FinalReportPath == "" {
		opts.Delivery.FinalReportPath = defaults.FinalReportPath
	}
	if opts.Delivery.SourcesAppendixPath == "" {
		opts.Delivery.SourcesAppendixPath = defaults.SourcesAppendixPath
	}
	if opts.States == nil {
		opts.States = storage.NewStateRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		durable:  opts.Durable,
		states:   opts.States,
		delivery: opts.Delivery,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "mission"),
		tracer:   otel.Tracer("aleutian.mission"),
		locks:    newMissionLocks(),
	}
}

// Delivery returns the public delivery paths in use.
func (s *Service) Delivery() config.DeliveryConfig { return s.delivery }

// =============================================================================
// Sessions
// =============================================================================

// session is the per-call view of one mission.
type session struct {
	scope    scope.TenantScope
	paths    scope.Paths
	backend  storage.Backend
	upserter *artifact.Upserter
	logger   *slog.Logger
}

func (s *Service) open(ctx context.Context, cfg map[string]any) (*session, error) {
	ts, err := scope.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("mission.user_id", ts.UserID),
		attribute.String("mission.mission_id", ts.MissionID),
	)

	state := s.states.For(ts)
	backend := storage.NewTenantBackend(storage.Runtime{State: state, Durable: s.durable})
	logger := s.logger.With(ts.LogAttrs()...)
	upserter := artifact.NewUpserter(backend, state,
		artifact.WithLogger(logger),
		artifact.WithObserver(func(o artifact.WriteOutcome) { s.metrics.RecordUpsert(string(o)) }),
	)
	return &session{
		scope:    ts,
		paths:    scope.NewPaths(ts),
		backend:  backend,
		upserter: upserter,
		logger:   logger,
	}, nil
}

// readText downloads path, treating absence as empty.
func (sess *session) readText(ctx context.Context, path string) (string, error) {
	data, err := sess.backend.Download(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// observe wraps one operation with a span, a latency sample and a status
// count.
func observe[T any](ctx context.Context, s *Service, tool string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "mission."+tool)
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)
	status := resultStatus(res, err)
	s.metrics.RecordToolCall(tool, status, time.Since(start))
	span.SetAttributes(attribute.String("mission.status", status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("mission tool failed", "tool", tool, "error", err)
	}
	return res, err
}

func resultStatus(res any, err error) string {
	if err != nil {
		return StatusError
	}
	switch r := res.(type) {
	case report.GateResult:
		return r.Status
	case PublishResult:
		return r.Status
	}
	return StatusOK
}

// validateRequest checks validate tags and reports the first failure as an
// InputError.
func validateRequest(req any) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &InputError{
			Field: fe.Field(),
			Err:   fmt.Errorf("failed %q constraint", fe.Tag()),
		}
	}
	return &InputError{Field: "request", Err: err}
}

// =============================================================================
// Manifest
// =============================================================================

// Manifest lists every storage path of the resolved mission.
func (s *Service) Manifest(ctx context.Context, req ScopedRequest) (ManifestResult, error) {
	return observe(ctx, s, ToolManifest, func(ctx context.Context) (ManifestResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return ManifestResult{}, err
		}
		p := sess.paths

		res := ManifestResult{
			Status:                    StatusOK,
			UserID:                    sess.scope.UserID,
			MissionID:                 sess.scope.MissionID,
			CanonicalDeliveryRoot:     CanonicalDeliveryRoot,
			SourcesAppendixPublicPath: s.delivery.SourcesAppendixPath,
			FinalReportPublicPath:     s.delivery.FinalReportPath,
		}
		derivations := []struct {
			dst *string
			fn  func() (string, error)
		}{
			{&res.UserProfilePreferences, p.ProfilePreferences},
			{&res.MissionRoot, p.MissionRoot},
			{&res.RawMaterialsDir, p.RawMaterialsDir},
			{&res.KnowledgeGraphDir, p.KnowledgeGraphDir},
			{&res.DraftsDir, p.DraftsDir},
			{&res.CitationLedgerPath, p.CitationLedgerPath},
			{&res.SourcesAppendixPrivatePath, p.SourcesAppendixPath},
			{&res.FinalReportPrivatePath, p.FinalReportPath},
			{&res.ReflectionsPath, p.ReflectionsPath},
		}
		for _, d := range derivations {
			if *d.dst, err = d.fn(); err != nil {
				return ManifestResult{}, err
			}
		}
		return res, nil
	})
}

// =============================================================================
// Citation Ledger
// =============================================================================

// BuildLedger merges evidence into a caller-supplied ledger without
// touching storage.
func (s *Service) BuildLedger(ctx context.Context, req BuildLedgerRequest) (LedgerResult, error) {
	return observe(ctx, s, ToolBuildLedger, func(ctx context.Context) (LedgerResult, error) {
		if err := validateRequest(req); err != nil {
			return LedgerResult{}, err
		}
		prior, err := citation.ParseLedger(req.PriorLedgerJSON)
		if err != nil {
			return LedgerResult{}, &InputError{Field: "prior_ledger_json", Err: err}
		}
		merged := citation.Merge(req.Evidence, prior)
		raw, err := merged.JSON()
		if err != nil {
			return LedgerResult{}, err
		}
		return LedgerResult{Status: StatusOK, Ledger: merged, LedgerJSON: raw}, nil
	})
}

// RenderSources renders ledger JSON as a sources block. Malformed input
// renders degraded rather than failing.
func (s *Service) RenderSources(ctx context.Context, req RenderSourcesRequest) (RenderResult, error) {
	return observe(ctx, s, ToolRenderSources, func(ctx context.Context) (RenderResult, error) {
		return RenderResult{Status: StatusOK, Markdown: citation.RenderJSON(req.LedgerJSON, req.Section)}, nil
	})
}

// SubmitEvidence merges evidence into the persisted mission ledger.
//
// Description:
//
//	Under the mission lock: load the persisted ledger, merge, and upsert
//	it back. New citation IDs are those appended by this merge.
//
// Outputs:
//
//	SubmitEvidenceResult - The persisted ledger and the IDs it gained.
//	error - InputError, ErrCorruptLedger (wrapped) when the persisted
//	        snapshot does not parse, or a storage error.
func (s *Service) SubmitEvidence(ctx context.Context, req SubmitEvidenceRequest) (SubmitEvidenceResult, error) {
	return observe(ctx, s, ToolSubmitEvidence, func(ctx context.Context) (SubmitEvidenceResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return SubmitEvidenceResult{}, err
		}
		if err := validateRequest(req); err != nil {
			return SubmitEvidenceResult{}, err
		}
		path, err := sess.paths.CitationLedgerPath()
		if err != nil {
			return SubmitEvidenceResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		raw, err := sess.readText(ctx, path)
		if err != nil {
			return SubmitEvidenceResult{}, err
		}
		prior, err := citation.ParseLedger(raw)
		if err != nil {
			return SubmitEvidenceResult{}, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, path, err)
		}

		merged := citation.Merge(req.Evidence, prior)
		encoded, err := merged.JSON()
		if err != nil {
			return SubmitEvidenceResult{}, err
		}
		outcome, err := sess.upserter.UpsertString(ctx, path, encoded)
		if err != nil {
			return SubmitEvidenceResult{}, err
		}
		s.metrics.SetLedgerSources(len(merged.Sources))

		newIDs := append([]string{}, merged.IDs()[len(prior.Sources):]...)
		sess.logger.Info("evidence merged",
			"path", path,
			"evidence", len(req.Evidence),
			"new_citations", len(newIDs),
			"outcome", string(outcome))

		return SubmitEvidenceResult{
			Status:         StatusOK,
			Path:           path,
			WriteStatus:    outcome,
			NewCitationIDs: newIDs,
			Ledger:         merged,
		}, nil
	})
}

// PersistLedger validates and stores a ledger snapshot in canonical form.
func (s *Service) PersistLedger(ctx context.Context, req PersistLedgerRequest) (WriteResult, error) {
	return observe(ctx, s, ToolPersistLedger, func(ctx context.Context) (WriteResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return WriteResult{}, err
		}
		if err := validateRequest(req); err != nil {
			return WriteResult{}, err
		}
		ledger, err := citation.ParseLedger(req.LedgerJSON)
		if err != nil {
			return WriteResult{}, &InputError{Field: "ledger_json", Err: err}
		}
		encoded, err := ledger.JSON()
		if err != nil {
			return WriteResult{}, err
		}
		path, err := sess.paths.CitationLedgerPath()
		if err != nil {
			return WriteResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		outcome, err := sess.upserter.UpsertString(ctx, path, encoded)
		if err != nil {
			return WriteResult{}, err
		}
		return WriteResult{Status: StatusOK, Path: path, WriteStatus: outcome}, nil
	})
}

// =============================================================================
// Reports
// =============================================================================

// PersistAppendix dual-writes the sources appendix. With no markdown the
// appendix is rendered from the persisted ledger.
func (s *Service) PersistAppendix(ctx context.Context, req PersistAppendixRequest) (DualWriteResult, error) {
	return observe(ctx, s, ToolPersistAppendix, func(ctx context.Context) (DualWriteResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return DualWriteResult{}, err
		}
		private, err := sess.paths.SourcesAppendixPath()
		if err != nil {
			return DualWriteResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		markdown := req.Markdown
		if strings.TrimSpace(markdown) == "" {
			ledgerPath, err := sess.paths.CitationLedgerPath()
			if err != nil {
				return DualWriteResult{}, err
			}
			raw, err := sess.readText(ctx, ledgerPath)
			if err != nil {
				return DualWriteResult{}, err
			}
			markdown = citation.EmptySources
			if strings.TrimSpace(raw) != "" {
				markdown = citation.RenderJSON(raw, req.Section)
			}
		}

		return s.dualWrite(ctx, sess, private, s.delivery.SourcesAppendixPath, markdown)
	})
}

// FinalizeReport composes and dual-writes the final report without
// running the gate. Prefer PublishReport.
func (s *Service) FinalizeReport(ctx context.Context, req ReportRequest) (DualWriteResult, error) {
	return observe(ctx, s, ToolFinalizeReport, func(ctx context.Context) (DualWriteResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return DualWriteResult{}, err
		}
		if err := validateRequest(req); err != nil {
			return DualWriteResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		return s.finalize(ctx, sess, req.Body, req.Appendix)
	})
}

// VerifyReport runs the verify-and-repair gate on the mission's report.
func (s *Service) VerifyReport(ctx context.Context, req ScopedRequest) (report.GateResult, error) {
	return observe(ctx, s, ToolVerifyReport, func(ctx context.Context) (report.GateResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return report.GateResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		return s.verify(ctx, sess)
	})
}

// PublishReport finalizes the report and runs the gate in one step.
//
// Description:
//
//	The canonical way to deliver a report. Status is "pass" only when the
//	gate passes, in which case NextAction is "complete". Any other verdict
//	yields "fail" with NextAction "repair_and_retry_publish"; the caller
//	must not declare the mission complete.
func (s *Service) PublishReport(ctx context.Context, req ReportRequest) (PublishResult, error) {
	return observe(ctx, s, ToolPublishReport, func(ctx context.Context) (PublishResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return PublishResult{}, err
		}
		if err := validateRequest(req); err != nil {
			return PublishResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		finalized, err := s.finalize(ctx, sess, req.Body, req.Appendix)
		if err != nil {
			return PublishResult{}, err
		}
		verdict, err := s.verify(ctx, sess)
		if err != nil {
			return PublishResult{}, err
		}

		res := PublishResult{
			Status:       StatusFail,
			Finalize:     finalized,
			Verify:       verdict,
			DeliveryPath: s.delivery.FinalReportPath,
			NextAction:   NextActionRepairRetry,
		}
		if verdict.Passed() {
			res.Status = StatusPass
			res.NextAction = NextActionComplete
		}
		sess.logger.Info("final report published", "status", res.Status, "next_action", res.NextAction)
		return res, nil
	})
}

// finalize composes and dual-writes the report. Caller holds the lock.
func (s *Service) finalize(ctx context.Context, sess *session, body, appendix string) (DualWriteResult, error) {
	private, err := sess.paths.FinalReportPath()
	if err != nil {
		return DualWriteResult{}, err
	}
	if strings.TrimSpace(appendix) == "" {
		appendixPath, err := sess.paths.SourcesAppendixPath()
		if err != nil {
			return DualWriteResult{}, err
		}
		if appendix, err = sess.readText(ctx, appendixPath); err != nil {
			return DualWriteResult{}, err
		}
	}
	return s.dualWrite(ctx, sess, private, s.delivery.FinalReportPath, report.Compose(body, appendix))
}

// verify runs the gate. Caller holds the lock.
func (s *Service) verify(ctx context.Context, sess *session) (report.GateResult, error) {
	private, err := sess.paths.FinalReportPath()
	if err != nil {
		return report.GateResult{}, err
	}
	ledger, err := sess.paths.CitationLedgerPath()
	if err != nil {
		return report.GateResult{}, err
	}

	gate := report.NewGate(sess.backend, sess.upserter, sess.logger)
	res, err := gate.VerifyAndRepair(ctx, report.Locations{
		PublicReport:  s.delivery.FinalReportPath,
		PrivateReport: private,
		Ledger:        ledger,
	})
	if err != nil {
		if res.Write != nil {
			return res, &DualWriteError{Result: *res.Write, Err: err}
		}
		return res, err
	}
	s.metrics.RecordGate(res.Status, res.Repaired)
	return res, nil
}

func (s *Service) dualWrite(ctx context.Context, sess *session, private, public, content string) (DualWriteResult, error) {
	res, err := sess.upserter.UpsertDual(ctx, private, public, []byte(content))
	if err != nil {
		return DualWriteResult{}, &DualWriteError{Result: res, Err: err}
	}
	return DualWriteResult{Status: StatusOK, DualResult: res}, nil
}

// =============================================================================
// Workflow
// =============================================================================

// RouteResearch recommends a retrieval route for a query.
func (s *Service) RouteResearch(ctx context.Context, req RouteRequest) (RouteResult, error) {
	return observe(ctx, s, ToolRouteResearch, func(ctx context.Context) (RouteResult, error) {
		if err := validateRequest(req); err != nil {
			return RouteResult{}, err
		}
		res := RouteResult{
			Status:   StatusOK,
			Decision: routing.Decide(req.Query, req.NeedFreshness, req.PreferInternal),
		}
		if md := scope.PropagatedMetadata(req.Config); len(md) > 0 {
			res.ToolMetadata = md
		}
		return res, nil
	})
}

// RequestPlanApproval records a human approval checkpoint for a plan.
func (s *Service) RequestPlanApproval(ctx context.Context, req PlanApprovalRequest) (CheckpointResult, error) {
	return observe(ctx, s, ToolRequestApproval, func(ctx context.Context) (CheckpointResult, error) {
		if err := validateRequest(req); err != nil {
			return CheckpointResult{}, err
		}
		attrs := []any{"checkpoint", CheckpointPlanApprove}
		for k, v := range scope.PropagatedMetadata(req.Config) {
			attrs = append(attrs, k, v)
		}
		s.logger.Info("plan approval checkpoint reached", attrs...)
		s.metrics.RecordCheckpoint(CheckpointPlanApprove)

		return CheckpointResult{
			Status:     StatusOK,
			Checkpoint: CheckpointPlanApprove,
			Message: "Plan approval checkpoint reached. Please review and approve or revise before execution.\n\n" +
				strings.TrimSpace(req.Plan),
		}, nil
	})
}

// RecordReflection appends a reflection note to the mission's drafts.
func (s *Service) RecordReflection(ctx context.Context, req ReflectionRequest) (ReflectionResult, error) {
	return observe(ctx, s, ToolRecordReflection, func(ctx context.Context) (ReflectionResult, error) {
		sess, err := s.open(ctx, req.Config)
		if err != nil {
			return ReflectionResult{}, err
		}
		if err := validateRequest(req); err != nil {
			return ReflectionResult{}, err
		}
		path, err := sess.paths.ReflectionsPath()
		if err != nil {
			return ReflectionResult{}, err
		}

		unlock := s.locks.lock(sess.scope.Key())
		defer unlock()

		existing, err := sess.readText(ctx, path)
		if err != nil {
			return ReflectionResult{}, err
		}
		note := strings.TrimSpace(req.Reflection)
		content := note + "\n"
		if prior := strings.TrimRightFunc(existing, unicode.IsSpace); prior != "" {
			content = prior + "\n\n" + content
		}

		outcome, err := sess.upserter.UpsertString(ctx, path, content)
		if err != nil {
			return ReflectionResult{}, err
		}
		return ReflectionResult{
			Status:      StatusOK,
			Message:     "Reflection recorded: " + note,
			Path:        path,
			WriteStatus: outcome,
		}, nil
	})
}
