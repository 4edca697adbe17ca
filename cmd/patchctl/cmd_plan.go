// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/plan"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Read and mutate the plan ledger",
	}
	cmd.AddCommand(
		newPlanShowCmd(a),
		newPlanUpsertCmd(a),
		newPlanRemoveCmd(a),
		newPlanTransitionCmd(a),
		newPlanStartNextCmd(a),
		newPlanFinalizeCmd(a),
		newPlanHistoryCmd(a),
		newPlanWatchCmd(a),
	)
	return cmd
}

type planView struct {
	Plan  string      `json:"plan"`
	Items []plan.Item `json:"items"`
}

func view(text string, items []plan.Item) planView {
	if items == nil {
		items = []plan.Item{}
	}
	return planView{Plan: text, Items: items}
}

func newPlanShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, items, err := a.ledger.Load(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd, view(text, items), text)
		},
	}
}

func newPlanUpsertCmd(a *app) *cobra.Command {
	var (
		id     int
		status string
	)
	cmd := &cobra.Command{
		Use:   "upsert [title...]",
		Short: "Append todo items, or edit one item with --id",
		Example: `  patchctl plan upsert "collect sources" "write summary"
  patchctl plan upsert --id 2 --status doing
  patchctl plan upsert --id 3 "retitled step"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []plan.Entry
			if id > 0 {
				if len(args) > 1 {
					return fmt.Errorf("--id takes at most one title")
				}
				e := plan.Entry{ID: id, Status: plan.Status(status)}
				if len(args) == 1 {
					e.Title = args[0]
				}
				entries = append(entries, e)
			} else {
				if len(args) == 0 {
					return fmt.Errorf("at least one title is required")
				}
				for _, title := range args {
					entries = append(entries, plan.Entry{Title: title, Status: plan.Status(status)})
				}
			}
			text, items, err := a.ledger.Upsert(cmd.Context(), entries)
			if err != nil {
				return err
			}
			return a.emit(cmd, view(text, items), text)
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "existing item id to edit")
	cmd.Flags().StringVar(&status, "status", "", "status for the item")
	return cmd
}

func newPlanRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <ids>",
		Short:   "Remove items by id; remaining items are renumbered",
		Example: "  patchctl plan remove 2,4",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := plan.ParseIDs(strings.Join(args, ","))
			if err != nil {
				return err
			}
			text, items, err := a.ledger.Remove(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return a.emit(cmd, view(text, items), text)
		},
	}
}

func newPlanTransitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move an item to doing, done or aborted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			_, items, err := a.ledger.TransitionItem(cmd.Context(), id, plan.Status(args[1]))
			if err != nil {
				return err
			}
			text, err := plan.Render(items)
			if err != nil {
				return err
			}
			return a.emit(cmd, view(text, items), text)
		},
	}
}

func newPlanStartNextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start-next",
		Short: "Move the first todo item to doing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			item, ok, items, err := a.ledger.StartNextSubtask(cmd.Context())
			if err != nil {
				return err
			}
			text, err := plan.Render(items)
			if err != nil {
				return err
			}
			out := struct {
				planView
				Started bool       `json:"started"`
				Item    *plan.Item `json:"item,omitempty"`
			}{planView: view(text, items), Started: ok}
			msg := "no todo items remain\n" + text
			if ok {
				out.Item = &item
				msg = fmt.Sprintf("started [%d] %s\n%s", item.ID, item.Title, text)
			}
			return a.emit(cmd, out, msg)
		},
	}
}

func newPlanFinalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Exit non-zero while todo or doing items remain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ledger.CheckFinalize(cmd.Context()); err != nil {
				return err
			}
			return a.emit(cmd, map[string]bool{"finished": true}, "plan finished")
		},
	}
}

func newPlanHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List prior revisions (badger backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			revs, err := a.ledger.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, r := range revs {
				fmt.Fprintf(&b, "#%d %s\n%s", r.Seq, r.SavedAt.Format("2006-01-02T15:04:05Z07:00"), r.Text)
			}
			return a.emit(cmd, revs, b.String())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum revisions; 0 for all")
	return cmd
}

func newPlanWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the ledger each time the plan file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, ok := a.store.(*ledger.FileStore)
			if !ok {
				return fmt.Errorf("watch needs the file ledger backend")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ledger.Watch(ctx, fs, ledger.DefaultDebounce, func(text string, items []plan.Item, err error) {
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					return
				}
				_ = a.emit(cmd, view(text, items), text)
			})
		},
	}
}
