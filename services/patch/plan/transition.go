// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

// transitions is the lifecycle table. done and aborted have no exits.
var transitions = map[Status][]Status{
	StatusTodo:    {StatusDoing},
	StatusDoing:   {StatusDone, StatusAborted},
	StatusDone:    nil,
	StatusAborted: nil,
}

// CanTransition reports whether from -> to is a legal edge.
//
// Same-state requests are not edges and return false.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an ErrInvalidTransition PlanError naming id and
// the attempted edge when from -> to is not legal.
func ValidateTransition(id int, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &PlanError{Kind: ErrInvalidTransition, ItemID: id, From: from, To: to}
}

// Next returns the legal target states of s.
func Next(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
