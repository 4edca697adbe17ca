// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
	"github.com/Tom-0727/researcher-zero/services/patch/tools"
)

// maxBodyBytes caps a tool call body.
const maxBodyBytes = 8 << 20

// Handlers serves the tool endpoints.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// NewHandlers creates handlers over registry.
func NewHandlers(registry *tools.Registry, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{registry: registry, logger: logger}
}

// ListToolsResponse is the body of GET /v1/tools.
type ListToolsResponse struct {
	Tools []tools.ToolDefinition `json:"tools"`
}

// HandleListTools handles GET /v1/tools.
func (h *Handlers) HandleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, ListToolsResponse{Tools: h.registry.Definitions()})
}

// HandleToolCall handles POST /v1/tools/:name.
//
// Description:
//
//	The body is a JSON object of tool parameters; an empty body means no
//	parameters. Numbers decode as float64, which integer parameters accept
//	when integral.
//
// Responses:
//
//	200 OK: tools.Result
//	400/403/404/409/422: ErrorResponse, classified by statusFor
//	500 Internal Server Error: ErrorResponse
func (h *Handlers) HandleToolCall(c *gin.Context) {
	name := c.Param("name")
	logger := telemetry.LoggerWithTrace(c.Request.Context(), h.logger).With(
		slog.String("request_id", requestID(c)),
		slog.String("tool", name),
	)

	params, err := decodeParams(c.Request.Body)
	if err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	res, err := h.registry.Execute(c.Request.Context(), name, params)
	if err != nil {
		status, code := statusFor(err)
		body := ErrorResponse{Error: err.Error(), Code: code}
		if res != nil && (res.Output != nil || len(res.ModifiedFiles) > 0) {
			body.Result = res
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tools": len(h.registry.Names())})
}

func decodeParams(body io.Reader) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// requestID returns the X-Request-ID set by the middleware.
func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

const requestIDKey = "request_id"

// requestIDMiddleware propagates or assigns an X-Request-ID.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
