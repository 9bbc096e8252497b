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
	"context"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianResearch/services/mission/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the mission vault service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the mission tools.
type Handlers struct {
	svc     *Service
	metrics *observability.Metrics
}

// NewHandlers creates handlers for the given service. metrics may be nil.
func NewHandlers(svc *Service, metrics *observability.Metrics) *Handlers {
	return &Handlers{svc: svc, metrics: metrics}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// toolHandler adapts one service operation to a gin handler.
//
// Description:
//
//	Binds the JSON body into Req, calls the operation with the request
//	context and writes either the result (200) or the error envelope with
//	the status its error_type maps to. Bind failures are validation errors.
//
// Inputs:
//
//	tool - Tool name used in the envelope and log lines.
//	call - The service operation.
//
// Outputs:
//
//	gin.HandlerFunc - The handler.
func toolHandler[Req, Res any](tool string, call func(context.Context, Req) (Res, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := getOrCreateRequestID(c)
		logger := slog.With("request_id", requestID, "handler", tool)

		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			env := ToolError(tool, &InputError{Field: "body", Err: err})
			c.JSON(env.HTTPStatus(), env)
			return
		}

		res, err := call(c.Request.Context(), req)
		if err != nil {
			env := ToolError(tool, err)
			logger.Info("Tool call failed", "error_type", env.ErrorType, "error", err)
			c.JSON(env.HTTPStatus(), env)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
