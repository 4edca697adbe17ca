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
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

func newFileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Guarded file operations inside the workspace root",
	}
	cmd.AddCommand(
		newFileReadCmd(a),
		newFileCreateCmd(a),
		newFileListCmd(a),
		newFileEditCmd(a),
		newFileApplyCmd(a),
	)
	return cmd
}

func describe(o workspace.Outcome) string {
	switch {
	case o.Created:
		return "created " + o.Path
	case !o.Changed:
		return "unchanged " + o.Path
	default:
		return fmt.Sprintf("edited %s (+%d -%d ~%d)", o.Path, o.Stats.Added, o.Stats.Deleted, o.Stats.Changed)
	}
}

func newFileReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "Print a file and its content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, hash, err := a.files.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := map[string]string{"path": args[0], "content": content, "hash": hash}
			return a.emit(cmd, out, content)
		},
	}
}

func newFileCreateCmd(a *app) *cobra.Command {
	var (
		content   string
		from      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a file from --content, --from or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("content") && from != "" {
				return fmt.Errorf("--content and --from are mutually exclusive")
			}
			if !cmd.Flags().Changed("content") {
				data, err := readInput(cmd, from)
				if err != nil {
					return err
				}
				content = data
			}
			out, err := a.files.CreateFile(cmd.Context(), args[0], content, overwrite)
			if err != nil {
				return err
			}
			return a.emit(cmd, out, describe(out))
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "file content")
	cmd.Flags().StringVar(&from, "from", "", "read content from this file, - for stdin")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	return cmd
}

func newFileListCmd(a *app) *cobra.Command {
	var opts workspace.ListOptions
	cmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List files under a directory of the workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := "."
			if len(args) == 1 {
				base = args[0]
			}
			files, err := a.files.ListFiles(cmd.Context(), base, opts)
			if err != nil {
				return err
			}
			return a.emit(cmd, files, strings.Join(files, "\n"))
		},
	}
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&opts.IncludeDirs, "dirs", false, "include directories")
	cmd.Flags().BoolVar(&opts.IncludeHidden, "hidden", false, "include dot files")
	return cmd
}

func newFileEditCmd(a *app) *cobra.Command {
	var (
		search  string
		replace string
		opts    workspace.EditOptions
	)
	cmd := &cobra.Command{
		Use:   "edit <path>",
		Short: "Replace the first match of --search with --replace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.files.EditFile(cmd.Context(), args[0], search, replace, opts)
			if err != nil {
				return err
			}
			text := describe(out)
			if out.Diff != "" {
				text += "\n" + out.Diff
			}
			return a.emit(cmd, out, text)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "text to find")
	cmd.Flags().StringVar(&replace, "replace", "", "replacement text")
	cmd.Flags().StringVar(&opts.ExpectedHash, "expected-hash", "", "fail unless the file's SHA-256 matches")
	return cmd
}

func newFileApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [file|-]",
		Short: "Apply SEARCH/REPLACE edit blocks read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			text, err := readInput(cmd, src)
			if err != nil {
				return err
			}
			outcomes, applyErr := a.files.ApplyEditBlocks(cmd.Context(), text)
			lines := make([]string, 0, len(outcomes))
			for _, o := range outcomes {
				lines = append(lines, describe(o))
			}
			if outcomes == nil {
				outcomes = []workspace.Outcome{}
			}
			if err := a.emit(cmd, outcomes, strings.Join(lines, "\n")); err != nil {
				return err
			}
			return applyErr
		},
	}
}
