// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
)

// RequestRecorder receives one call per served request.
type RequestRecorder interface {
	RecordHTTPRequest(route string, status int, elapsed time.Duration)
}

type noopRequestRecorder struct{}

func (noopRequestRecorder) RecordHTTPRequest(string, int, time.Duration) {}

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// Option configures NewRouter.
type Option func(*routerConfig)

type routerConfig struct {
	logger   *slog.Logger
	recorder RequestRecorder
}

// WithLogger sets the logger used for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *routerConfig) { c.logger = logger }
}

// WithRecorder sets the per-request metrics recorder.
func WithRecorder(r RequestRecorder) Option {
	return func(c *routerConfig) { c.recorder = r }
}

// NewRouter builds the gin engine serving register, login and me at the
// root and under /api/user.
func NewRouter(svc AuthService, opts ...Option) (*gin.Engine, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_ROUTER_INVALID").Errorf("auth service is required")
	}
	cfg := routerConfig{logger: slog.Default(), recorder: noopRequestRecorder{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		return nil, oops.Code("HTTP_ROUTER_INVALID").Errorf("logger must not be nil")
	}
	if cfg.recorder == nil {
		cfg.recorder = noopRequestRecorder{}
	}

	h := &handlers{svc: svc, logger: cfg.logger}

	r := gin.New()
	r.Use(accessLog(cfg.logger, cfg.recorder), recovery(cfg.logger))
	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Not found")
	})
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		respondError(c, http.StatusMethodNotAllowed, "Method not allowed")
	})

	for _, group := range []*gin.RouterGroup{&r.RouterGroup, r.Group("/api/user")} {
		group.POST("/register", h.register)
		group.POST("/login", h.login)
		group.POST("/me", h.me)
	}

	return r, nil
}

// accessLog logs every request once it has been served and records its
// metrics. 5xx responses log at Error, everything else at Info.
func accessLog(logger *slog.Logger, recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		recorder.RecordHTTPRequest(route, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", elapsed),
		}
		if err := c.Errors.Last(); err != nil {
			if oopsErr, ok := oops.AsOops(err.Err); ok {
				attrs = append(attrs, slog.Any("code", oopsErr.Code()))
			}
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// recovery turns a handler panic into a 500 response.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "handler panic", "panic", recovered, "route", c.FullPath())
		respondError(c, http.StatusInternalServerError, msgInternal)
	})
}
