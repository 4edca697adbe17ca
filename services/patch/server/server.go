// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the tool registry over HTTP with gin.
//
//	POST /v1/tools/:name  invoke a tool with a JSON object of parameters
//	GET  /v1/tools        list tool definitions
//	GET  /health          liveness
//	GET  /metrics         Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Tom-0727/researcher-zero/services/patch/config"
	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
	"github.com/Tom-0727/researcher-zero/services/patch/tools"
)

var errBodyTooLarge = errors.New("request body too large")

// Server is the HTTP tool server.
type Server struct {
	cfg     config.ServerConfig
	engine  *gin.Engine
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router. serviceName names otelgin spans.
func New(cfg config.ServerConfig, registry *tools.Registry, serviceName string, opts ...Option) *Server {
	s := &Server{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(requestIDMiddleware())
	engine.Use(s.accessLog())

	var callMW []gin.HandlerFunc
	if cfg.RateLimit > 0 {
		callMW = append(callMW, rateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	RegisterRoutes(engine, NewHandlers(registry, s.logger), callMW...)
	s.engine = engine
	return s
}

// RegisterRoutes wires every endpoint onto router. callMW runs before tool
// invocations only.
func RegisterRoutes(router *gin.Engine, h *Handlers, callMW ...gin.HandlerFunc) {
	v1 := router.Group("/v1")
	{
		v1.GET("/tools", h.HandleListTools)
		v1.POST("/tools/:name", append(callMW, h.HandleToolCall)...)
	}
	router.GET("/health", h.HandleHealth)

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("tool server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("tool server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// accessLog logs each request and records its status.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.RecordHTTPRequest(c.Request.Context(), route, status)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		telemetry.LoggerWithTrace(c.Request.Context(), s.logger).Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", requestID(c)),
		)
	}
}

// rateLimit rejects tool calls beyond perSecond with 429 RATE_LIMITED.
func rateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
