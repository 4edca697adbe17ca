// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

// Default builds a registry holding every plan and file tool.
func Default(svc *ledger.Service, m *workspace.Manager, opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	for _, t := range PlanTools(svc) {
		r.Register(t)
	}
	for _, t := range FileTools(m) {
		r.Register(t)
	}
	return r
}
