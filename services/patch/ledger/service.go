// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tom-0727/researcher-zero/services/patch/plan"
	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
)

const tracerName = "patch.ledger"

// Service runs plan mutations against a Store.
//
// Every operation loads the current text, applies the pure plan engine and
// saves the result. A failed mutation saves nothing.
//
// Thread Safety: Safe for concurrent use. Read-modify-write cycles are
// serialized within one Service; separate processes sharing a FileStore are
// not coordinated.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	maxItems int

	mu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceMetrics sets the metrics recorder.
func WithServiceMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithMaxItems rejects mutations that leave more than n items. 0 is unlimited.
func WithMaxItems(n int) ServiceOption {
	return func(s *Service) { s.maxItems = n }
}

// NewService creates a Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Load returns the current canonical text and its items.
func (s *Service) Load(ctx context.Context) (string, []plan.Item, error) {
	text, err := s.store.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	items, err := plan.Parse(text)
	if err != nil {
		return "", nil, err
	}
	return text, items, nil
}

// Mutate applies m and persists the rendered result.
//
// Outputs:
//
//	string - New canonical text.
//	[]plan.Item - New items.
//	error - plan errors, ErrTooManyItems, or store errors.
func (s *Service) Mutate(ctx context.Context, m plan.Mutation) (string, []plan.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(ctx, mutationName(m), func(items []plan.Item) ([]plan.Item, error) {
		return plan.Apply(items, m)
	})
}

// Upsert is Mutate with a plan.Upsert.
func (s *Service) Upsert(ctx context.Context, entries []plan.Entry) (string, []plan.Item, error) {
	return s.Mutate(ctx, plan.Upsert{Entries: entries})
}

// Remove is Mutate with a plan.Remove.
func (s *Service) Remove(ctx context.Context, ids []int) (string, []plan.Item, error) {
	return s.Mutate(ctx, plan.Remove{IDs: ids})
}

// TransitionItem moves item id to status to. The move must be a legal edge;
// a same-status request is rejected with plan.ErrInvalidTransition.
func (s *Service) TransitionItem(ctx context.Context, id int, to plan.Status) (plan.Item, []plan.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, items, err := s.mutateLocked(ctx, "transition", func(items []plan.Item) ([]plan.Item, error) {
		return transition(items, id, to)
	})
	if err != nil {
		return plan.Item{}, nil, err
	}
	return items[id-1], items, nil
}

// StartNextSubtask moves the first todo item to doing.
//
// Description:
//
//	When no todo item exists nothing is saved and ok is false; this is the
//	signal that the plan is ready to finalize. Items already in doing do
//	not block the transition.
//
// Outputs:
//
//	plan.Item - The started item, zero when ok is false.
//	bool - Whether an item was started.
//	[]plan.Item - The ledger after the call.
//	error - Store or engine errors.
func (s *Service) StartNextSubtask(ctx context.Context) (item plan.Item, ok bool, items []plan.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, current, err := s.Load(ctx)
	if err != nil {
		return plan.Item{}, false, nil, err
	}
	next, found := plan.NextTodo(current)
	if !found {
		return plan.Item{}, false, current, nil
	}
	_, items, err = s.mutateLocked(ctx, "start_next", func(items []plan.Item) ([]plan.Item, error) {
		return transition(items, next.ID, plan.StatusDoing)
	})
	if err != nil {
		return plan.Item{}, false, nil, err
	}
	return items[next.ID-1], true, items, nil
}

// CheckFinalize returns a NotFinishedError while any todo or doing item
// remains, and nil otherwise.
func (s *Service) CheckFinalize(ctx context.Context) error {
	_, items, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if open := plan.Open(items); len(open) > 0 {
		return &NotFinishedError{Open: open}
	}
	return nil
}

// History returns up to n prior revisions when the store keeps them.
func (s *Service) History(ctx context.Context, n int) ([]Revision, error) {
	h, ok := s.store.(Historian)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return h.History(ctx, n)
}

func (s *Service) mutateLocked(ctx context.Context, op string, fn func([]plan.Item) ([]plan.Item, error)) (text string, items []plan.Item, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Mutate",
		trace.WithAttributes(attribute.String("op", op)))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.RecordPlanMutation(ctx, op, start, err)
	}()
	logger := telemetry.LoggerWithTrace(ctx, s.logger)

	_, current, err := s.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	next, err := fn(current)
	if err != nil {
		logger.Warn("plan mutation rejected", slog.String("op", op), slog.String("error", err.Error()))
		return "", nil, err
	}
	if s.maxItems > 0 && len(next) > s.maxItems {
		return "", nil, fmt.Errorf("%w: %d items, limit %d", ErrTooManyItems, len(next), s.maxItems)
	}
	text, err = plan.Render(next)
	if err != nil {
		return "", nil, err
	}
	if err := s.store.Save(ctx, text); err != nil {
		return "", nil, err
	}

	span.SetAttributes(attribute.Int("items", len(next)))
	logger.Info("plan updated",
		slog.String("op", op),
		slog.Int("items", len(next)),
		slog.Int("open", len(plan.Open(next))),
	)
	return text, next, nil
}

// transition applies one validated status edge.
func transition(items []plan.Item, id int, to plan.Status) ([]plan.Item, error) {
	if id < 1 || id > len(items) {
		return nil, &plan.PlanError{Kind: plan.ErrRange, ItemID: id,
			Message: fmt.Sprintf("id %d outside 1..%d", id, len(items))}
	}
	if !to.Valid() {
		return nil, &plan.PlanError{Kind: plan.ErrFormat, ItemID: id,
			Message: fmt.Sprintf("unknown status %q", to)}
	}
	if err := plan.ValidateTransition(id, items[id-1].Status, to); err != nil {
		return nil, err
	}
	next, err := plan.Apply(items, plan.Upsert{Entries: []plan.Entry{{ID: id, Status: to}}})
	if err != nil {
		return nil, err
	}
	if next[id-1].Status != to {
		return nil, errors.New("status transition was not applied")
	}
	return next, nil
}

func mutationName(m plan.Mutation) string {
	switch m.(type) {
	case plan.Upsert, *plan.Upsert:
		return "upsert"
	case plan.Remove, *plan.Remove:
		return "remove"
	default:
		return "unknown"
	}
}
