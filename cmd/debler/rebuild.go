// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild MESSAGE...",
	Short: "Rebuild every package built with an outdated packaging layout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		current := make([]int64, len(e.Config.GemFormat))
		for i, f := range e.Config.GemFormat {
			current[i] = int64(f)
		}
		ids, err := e.Catalog.RebuildOutdated(cmd.Context(), current, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d rebuilds\n", len(ids))
		return nil
	},
}
