// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/debler/debler/pkg/catalog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var pkgOpts struct {
	Packager string
	AddDir   string
	SoSubdir string
}

var pkgCmd = &cobra.Command{
	Use:     "pkg [--packager NAME] (--add-dir DIR | --so-subdir DIR) PACKAGE...",
	Aliases: []string{"gem"},
	Short:   "Change package configuration and schedule rebuilds",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (pkgOpts.AddDir == "") == (pkgOpts.SoSubdir == "") {
			return errors.New("exactly one of --add-dir and --so-subdir is required")
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		for _, arg := range args {
			_, _, info, err := e.resolvePackage(cmd, arg, pkgOpts.Packager)
			if err != nil {
				return err
			}
			var message string
			if pkgOpts.AddDir != "" {
				info.Config.ExtraDirs = append(info.Config.ExtraDirs, pkgOpts.AddDir)
				message = fmt.Sprintf("rebuild to include %q dir into package", pkgOpts.AddDir)
			} else {
				info.Config.SoSubdir = pkgOpts.SoSubdir
				message = fmt.Sprintf("rebuild to move so libs into %q subdir", pkgOpts.SoSubdir)
			}
			if err := e.Catalog.SetPackageConfig(cmd.Context(), info.ID, info.Config); err != nil {
				return err
			}
			ids, err := rebuildPackage(cmd, e, info, message)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: scheduled rebuild %d\n", info.Name, id)
			}
		}
		return nil
	},
}

// rebuildPackage schedules a rebuild of the newest revision of every slot of
// the package.
func rebuildPackage(cmd *cobra.Command, e *env, info *catalog.Package, message string) ([]int64, error) {
	tree, err := e.Catalog.Tree(cmd.Context(), info)
	if err != nil {
		return nil, err
	}
	var scheduled []int64
	for _, slot := range info.Slots {
		versions := tree.Versions[slot.ID]
		if len(versions) == 0 {
			continue
		}
		revs := tree.Builds[versions[len(versions)-1].ID]
		if len(revs) == 0 {
			continue
		}
		id, err := e.Catalog.ScheduleRebuild(cmd.Context(), revs[len(revs)-1].ID, message)
		if err != nil {
			return scheduled, err
		}
		scheduled = append(scheduled, id)
	}
	return scheduled, nil
}

func init() {
	pkgCmd.Flags().StringVar(&pkgOpts.Packager, "packager", "bundler",
		"packager the packages belong to")
	pkgCmd.Flags().StringVar(&pkgOpts.AddDir, "add-dir", "",
		"ship an additional dir in the package and schedule rebuilds")
	pkgCmd.Flags().StringVar(&pkgOpts.SoSubdir, "so-subdir", "",
		"set the shared-object subdir and schedule rebuilds")
}
