// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/packager"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog schema and register the known packagers",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.Catalog.Migrate(cmd.Context()); err != nil {
			return err
		}
		for _, name := range packager.Names() {
			_, err := e.Catalog.Packager(cmd.Context(), name)
			if err == nil {
				continue
			} else if !errors.Is(err, catalog.ErrNotFound) {
				return err
			}
			if _, err := e.Catalog.RegisterPackager(cmd.Context(), name, catalog.PackagerConfig{}); err != nil {
				return err
			}
		}
		return nil
	},
}
