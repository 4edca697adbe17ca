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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Tom-0727/researcher-zero/pkg/logging"
	"github.com/Tom-0727/researcher-zero/services/patch/config"
	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
	"github.com/Tom-0727/researcher-zero/services/patch/tools"
	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

// app holds the flags and the components built from them for one run.
type app struct {
	configPath string
	root       string
	planPath   string
	backend    string
	jsonOut    bool

	cfg      config.Config
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error
	store    ledger.Store
	ledger   *ledger.Service
	files    *workspace.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "patchctl",
		Short:         "Manage a plan ledger and apply edit blocks to a workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				_ = a.teardown(cmd.Context())
				return err
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.root, "root", "", "workspace root (overrides config)")
	root.PersistentFlags().StringVar(&a.planPath, "plan", "", "plan ledger file (overrides config, implies the file backend)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "ledger backend: file or badger")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print structured JSON output")

	root.AddCommand(newPlanCmd(a), newFileCmd(a), newServeCmd(a))

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.root != "" {
		cfg.Workspace.Root = a.root
	}
	if a.planPath != "" {
		abs, err := filepath.Abs(a.planPath)
		if err != nil {
			return err
		}
		cfg.Ledger.Path = abs
		cfg.Ledger.Backend = config.BackendFile
	}
	if a.backend != "" {
		cfg.Ledger.Backend = a.backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "patchctl",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	logger := a.logger.Slog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdown, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	a.metrics = telemetry.DefaultMetrics()

	guard, err := workspace.NewGuard(cfg.Workspace.Root,
		workspace.WithAllowedPaths(cfg.Workspace.AllowedPaths...),
		workspace.WithSensitiveBlocking(cfg.Workspace.BlockSensitive),
	)
	if err != nil {
		return err
	}
	a.files = workspace.NewManager(guard,
		workspace.WithLogger(logger),
		workspace.WithMetrics(a.metrics),
	)

	// Relative ledger locations from config live under the workspace root.
	switch cfg.Ledger.Backend {
	case config.BackendBadger:
		bcfg := ledger.DefaultBadgerConfig(underRoot(guard.Root(), cfg.Ledger.BadgerDir))
		bcfg.Key = cfg.Ledger.Key
		bcfg.Logger = logger.With(slog.String("component", "badger"))
		a.store, err = ledger.OpenBadgerStore(bcfg)
	default:
		a.store, err = ledger.NewFileStore(underRoot(guard.Root(), cfg.Ledger.Path))
	}
	if err != nil {
		return err
	}
	a.ledger = ledger.NewService(a.store,
		ledger.WithServiceLogger(logger),
		ledger.WithServiceMetrics(a.metrics),
		ledger.WithMaxItems(cfg.Ledger.MaxItems),
	)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

func (a *app) registry() *tools.Registry {
	return tools.Default(a.ledger, a.files,
		tools.WithLogger(a.logger.Slog()),
		tools.WithMetrics(a.metrics),
	)
}

func underRoot(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
