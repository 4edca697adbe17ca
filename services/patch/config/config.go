// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the patch service configuration from YAML, applies
// PATCH_* environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Ledger backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config is the root configuration document.
type Config struct {
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Ledger    LedgerConfig     `yaml:"ledger"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       LogConfig        `yaml:"log"`
}

// WorkspaceConfig confines file operations.
type WorkspaceConfig struct {
	// Root is the directory all file paths resolve against.
	Root string `yaml:"root" validate:"required"`

	// AllowedPaths narrows writes to these subtrees. Empty allows the root.
	AllowedPaths []string `yaml:"allowed_paths"`

	// BlockSensitive rejects writes to credential-like paths.
	BlockSensitive bool `yaml:"block_sensitive"`
}

// LedgerConfig selects where the plan ledger lives.
type LedgerConfig struct {
	Backend   string `yaml:"backend" validate:"required,oneof=file badger"`
	Path      string `yaml:"path" validate:"required_if=Backend file"`
	BadgerDir string `yaml:"badger_dir" validate:"required_if=Backend badger"`
	Key       string `yaml:"key" validate:"required"`

	// MaxItems caps the ledger length. 0 is unlimited.
	MaxItems int `yaml:"max_items" validate:"gte=0"`
}

// ServerConfig is the HTTP tool server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// RateLimit caps tool calls per second across all clients. 0 disables.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	// RateBurst is the token bucket size; 0 means ceil(RateLimit).
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`
}

// LogConfig is passed to pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workspace: WorkspaceConfig{
			Root:           ".",
			BlockSensitive: true,
		},
		Ledger: LedgerConfig{
			Backend:   BackendFile,
			Path:      ".patch/plan.md",
			BadgerDir: ".patch/badger",
			Key:       "plan",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8087",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Validate checks struct tags and returns an ErrInvalidConfig on failure.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
//
// Outputs:
//
//	Config - The effective configuration.
//	error - File, YAML, override or validation errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos surface instead of silently
// falling back to defaults. An empty document leaves cfg unchanged.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays PATCH_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PATCH_ROOT", &cfg.Workspace.Root)
	str("PATCH_LEDGER_BACKEND", &cfg.Ledger.Backend)
	str("PATCH_PLAN_FILE", &cfg.Ledger.Path)
	str("PATCH_BADGER_DIR", &cfg.Ledger.BadgerDir)
	str("PATCH_ADDR", &cfg.Server.Addr)
	str("PATCH_LOG_LEVEL", &cfg.Log.Level)
	str("PATCH_LOG_DIR", &cfg.Log.Dir)

	if v, ok := lookup("PATCH_ALLOWED_PATHS"); ok && v != "" {
		cfg.Workspace.AllowedPaths = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Workspace.AllowedPaths = append(cfg.Workspace.AllowedPaths, p)
			}
		}
	}
	if v, ok := lookup("PATCH_LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PATCH_LOG_JSON: %v", ErrInvalidConfig, err)
		}
		cfg.Log.JSON = b
	}
	if v, ok := lookup("PATCH_MAX_PLAN_ITEMS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PATCH_MAX_PLAN_ITEMS: %v", ErrInvalidConfig, err)
		}
		cfg.Ledger.MaxItems = n
	}
	return nil
}
