// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/debler/debler/pkg/catalog"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:     "info PACKAGE...",
	Aliases: []string{"i"},
	Short:   "Print a package's slots, versions and build revisions",
	Long: `Print a package's slots, versions and build revisions.

Packages are named either plainly (looked up with the bundler packager) or
as packager:name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		out := cmd.OutOrStdout()
		for _, arg := range args {
			_, _, info, err := e.resolvePackage(cmd, arg, "bundler")
			if err != nil {
				return err
			}
			tree, err := e.Catalog.Tree(cmd.Context(), info)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", info.Name)
			fmt.Fprintf(out, "  id: %d\n", info.ID)
			fmt.Fprintf(out, "  deb_name: %s\n", info.DebName)
			fmt.Fprintf(out, "  config: %+v\n", info.Config)
			for _, slot := range info.Slots {
				fmt.Fprintf(out, "  slot %q (id %d)\n", slot.Key, slot.ID)
				fmt.Fprintf(out, "    metadata: %+v\n", slot.Metadata)
				for _, v := range tree.Versions[slot.ID] {
					fmt.Fprintf(out, "    version %s (id %d, populated %t)\n",
						v.Version, v.ID, v.Populated)
					if v.Config.Repository != "" {
						fmt.Fprintf(out, "      source: %s@%s\n",
							v.Config.Repository, v.Config.Revision)
					}
					for _, r := range tree.Builds[v.ID] {
						printRevision(out, r)
					}
				}
			}
		}
		return nil
	},
}

func printRevision(out io.Writer, r catalog.Revision) {
	result := r.Result
	if result == "" {
		result = "pending"
	}
	fmt.Fprintf(out, "      %5d: %s %s\n", r.ID, r.Version, r.Changelog)
	fmt.Fprintf(out, "             scheduled %s", r.ScheduledAt.Format("2006-01-02 15:04"))
	if r.Builder != "" {
		fmt.Fprintf(out, ", built by %s", r.Builder)
		if !r.BuiltAt.IsZero() {
			fmt.Fprintf(out, " at %s", r.BuiltAt.Format("2006-01-02 15:04"))
		}
	}
	fmt.Fprintf(out, " => %s\n", result)
}
