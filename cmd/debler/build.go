// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/packager"
	"github.com/debler/debler/pkg/worker"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var buildOpts struct {
	FailFast    bool
	Retry       bool
	Limit       int
	Incognito   bool
	PrintBuilds bool
	Cancel      bool
}

var buildCmd = &cobra.Command{
	Use:     "build [BUILDID...]",
	Aliases: []string{"b", "work"},
	Short:   "Process scheduled builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		workDir, err := os.MkdirTemp("", "debler-build")
		if err != nil {
			return errors.Wrap(err, "creating work dir")
		}
		defer os.RemoveAll(workDir)
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		runner := &worker.Runner{
			Store: e.Catalog,
			New: func(data *catalog.BuildData) (builder.Builder, error) {
				pkgr, err := packager.Get(data.PackagerName)
				if err != nil {
					return nil, err
				}
				tmp, err := os.MkdirTemp(workDir, "rev")
				if err != nil {
					return nil, errors.Wrap(err, "creating build dir")
				}
				return pkgr.Builder(e.builderEnv(tmp), data)
			},
			Out: cmd.OutOrStdout(),
		}
		sum, err := runner.Run(cmd.Context(), worker.Options{
			Retry:     buildOpts.Retry,
			IDs:       ids,
			Cancel:    buildOpts.Cancel,
			ListOnly:  buildOpts.PrintBuilds,
			FailFast:  buildOpts.FailFast,
			Incognito: buildOpts.Incognito,
			Limit:     buildOpts.Limit,
			Builder:   host + "/" + filepath.Base(workDir),
		})
		if err != nil {
			return err
		}
		if buildOpts.PrintBuilds || buildOpts.Cancel {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum)
		if sum.Failed > 0 {
			return exitError{Code: 1}
		}
		return nil
	},
}

func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid build id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	buildCmd.Flags().BoolVarP(&buildOpts.FailFast, "fail-fast", "F", false,
		"stop on the first failed build")
	buildCmd.Flags().BoolVarP(&buildOpts.Retry, "retry", "R", false,
		"process failed builds instead of pending ones")
	buildCmd.Flags().IntVarP(&buildOpts.Limit, "limit", "L", 0,
		"build at most n packages")
	buildCmd.Flags().BoolVarP(&buildOpts.Incognito, "incognito", "I", false,
		"private build, do not record any changes")
	buildCmd.Flags().BoolVarP(&buildOpts.PrintBuilds, "print-builds", "P", false,
		"list matching builds without building")
	buildCmd.Flags().BoolVarP(&buildOpts.Cancel, "cancel", "C", false,
		"mark the given builds as canceled")
}
