// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/debler/debler/pkg/config"
	"github.com/debler/debler/pkg/repo"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:       "publish (gems|apps|npms)",
	Short:     "Regenerate the signed repository indexes of one ecosystem",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"gems", "apps", "npms"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		p := &repo.Publisher{Config: cfg}
		return p.Publish(cmd.Context(), strings.TrimSuffix(args[0], "s"))
	},
}
