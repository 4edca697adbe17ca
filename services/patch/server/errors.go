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
	"errors"
	"net/http"

	"github.com/Tom-0727/researcher-zero/services/patch/config"
	"github.com/Tom-0727/researcher-zero/services/patch/editblock"
	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/plan"
	"github.com/Tom-0727/researcher-zero/services/patch/tools"
	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// Result carries partial tool output, such as edit blocks applied
	// before a failing block.
	Result *tools.Result `json:"result,omitempty"`
}

// errorMapping pairs a sentinel with its HTTP status and code. Order
// matters: the first match wins.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{tools.ErrUnknownTool, http.StatusNotFound, "UNKNOWN_TOOL"},
	{tools.ErrInvalidParams, http.StatusBadRequest, "INVALID_PARAMS"},
	{config.ErrInvalidConfig, http.StatusBadRequest, "INVALID_CONFIG"},
	{plan.ErrFormat, http.StatusBadRequest, "PLAN_FORMAT"},
	{editblock.ErrParse, http.StatusBadRequest, "EDIT_PARSE"},
	{plan.ErrRange, http.StatusNotFound, "PLAN_RANGE"},
	{workspace.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{plan.ErrConflict, http.StatusConflict, "PLAN_CONFLICT"},
	{plan.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{workspace.ErrContentChanged, http.StatusConflict, "CONTENT_CHANGED"},
	{workspace.ErrFileExists, http.StatusConflict, "FILE_EXISTS"},
	{ledger.ErrNotFinished, http.StatusConflict, "NOT_FINISHED"},
	{ledger.ErrTooManyItems, http.StatusUnprocessableEntity, "TOO_MANY_ITEMS"},
	{editblock.ErrMatch, http.StatusUnprocessableEntity, "EDIT_NO_MATCH"},
	{workspace.ErrIsDirectory, http.StatusUnprocessableEntity, "IS_DIRECTORY"},
	{workspace.ErrPathNotAllowed, http.StatusForbidden, "PATH_NOT_ALLOWED"},
	{workspace.ErrSensitivePath, http.StatusForbidden, "SENSITIVE_PATH"},
	{ledger.ErrHistoryUnsupported, http.StatusNotImplemented, "HISTORY_UNSUPPORTED"},
}

// statusFor classifies err. Unclassified errors are 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}
