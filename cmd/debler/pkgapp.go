// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/packager"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var pkgAppOpts struct {
	ScheduleOnly bool
	NoUpload     bool
}

var pkgAppCmd = &cobra.Command{
	Use:   "pkgapp APPDESCRIPTION...",
	Short: "Package an application from its description file",
	Long: `Package an application from its description file.

The description is looked up verbatim, then under the configured appdir.
Dependency builds are scheduled from the app's lockfiles first; the app
package itself is built unless --schedule-only is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		for _, arg := range args {
			if err := packageApp(cmd, e, arg); err != nil {
				if builder.IsBuildError(err) {
					log.Printf("building %s: %v", arg, err)
					return exitError{Code: 5}
				}
				return err
			}
		}
		return nil
	},
}

func packageApp(cmd *cobra.Command, e *env, arg string) error {
	path := arg
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(e.Config.AppDir, arg+".yml")
	}
	app, err := builder.LoadApp(path)
	if err != nil {
		return err
	}
	tmp, err := os.MkdirTemp("", "debler-app")
	if err != nil {
		return errors.Wrap(err, "creating work dir")
	}
	defer os.RemoveAll(tmp)
	env := e.builderEnv(tmp)

	names := make([]string, 0, len(app.Sections))
	for name := range app.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	var integrators []builder.AppIntegrator
	for _, name := range names {
		pkgr, err := packager.Get(name)
		if err != nil {
			return errors.Wrapf(err, "section %s of %s", name, app.Name)
		}
		in, err := pkgr.AppIntegrator(env, app, app.Sections[name])
		if err != nil {
			return errors.Wrapf(err, "section %s of %s", name, app.Name)
		}
		integrators = append(integrators, in)
	}
	for _, in := range integrators {
		if err := in.ScheduleDepBuilds(cmd.Context()); err != nil {
			return err
		}
	}
	if pkgAppOpts.ScheduleOnly {
		return nil
	}
	b := builder.NewAppBuilder(env, app, integrators)
	if err := b.Generate(cmd.Context()); err != nil {
		return err
	}
	if err := b.Run(cmd.Context()); err != nil {
		return err
	}
	if pkgAppOpts.NoUpload {
		return nil
	}
	return b.Upload(cmd.Context())
}

func init() {
	pkgAppCmd.Flags().BoolVar(&pkgAppOpts.ScheduleOnly, "schedule-only", false,
		"only schedule dependency builds, do not build the app")
	pkgAppCmd.Flags().BoolVar(&pkgAppOpts.NoUpload, "no-upload", false,
		"build the app but keep the artifacts local")
}
