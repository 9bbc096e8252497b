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
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianResearch/services/mission/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// TenantHeader names the caller's user for rate limiting.
const TenantHeader = "X-User-ID"

// limiterIdleTTL is how long an unused tenant limiter is retained.
const limiterIdleTTL = 10 * time.Minute

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName is the otelgin server name.
	ServiceName string

	// MetricsPath serves Gatherer when both are set.
	MetricsPath string
	Gatherer    prometheus.Gatherer

	// RateLimitPerSecond of zero disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// RequestTimeout of zero leaves request contexts without a deadline.
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine serving the mission tools.
//
// Description:
//
//	Installs recovery, tracing, request timeout and per-tenant rate
//	limiting, then registers /health, the metrics endpoint and the
//	/v1/mission routes.
//
// Inputs:
//
//	cfg - Router configuration.
//	handlers - The handlers instance.
//
// Outputs:
//
//	*gin.Engine - The configured router.
func NewRouter(cfg RouterConfig, handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	router.GET("/health", handlers.HandleHealth)
	if cfg.MetricsPath != "" && cfg.Gatherer != nil {
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	if cfg.RequestTimeout > 0 {
		v1.Use(requestTimeout(cfg.RequestTimeout))
	}
	if cfg.RateLimitPerSecond > 0 {
		v1.Use(newTenantLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, handlers.metrics).middleware())
	}
	RegisterRoutes(v1, handlers)
	return router
}

// requestTimeout bounds the request context handed to the service.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// =============================================================================
// Rate limiting
// =============================================================================

type tenantEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tenantLimiter holds one token bucket per tenant key.
//
// Thread Safety: Safe for concurrent use.
type tenantLimiter struct {
	mu      sync.Mutex
	entries map[string]*tenantEntry
	limit   rate.Limit
	burst   int
	metrics *observability.Metrics
	now     func() time.Time
}

func newTenantLimiter(perSecond float64, burst int, metrics *observability.Metrics) *tenantLimiter {
	if burst < 1 {
		burst = 1
	}
	return &tenantLimiter{
		entries: make(map[string]*tenantEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		metrics: metrics,
		now:     time.Now,
	}
}

// allow reports whether key may proceed and prunes idle tenants.
func (l *tenantLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.entries, k)
		}
	}
	e, ok := l.entries[key]
	if !ok {
		e = &tenantEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *tenantLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(TenantHeader)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if l.allow(key) {
			c.Next()
			return
		}
		l.metrics.RecordRateLimited()
		env := Envelope{
			Status:    StatusError,
			Tool:      path.Base(c.Request.URL.Path),
			ErrorType: ErrorTypeRateLimited,
			Message:   fmt.Sprintf("rate limit exceeded for %s", key),
		}
		c.AbortWithStatusJSON(env.HTTPStatus(), env)
	}
}
