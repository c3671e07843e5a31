// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Command debler manages the repackaging of language-ecosystem modules and
// applications as OS packages.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/debler/debler/internal/httpx"
	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/config"
	"github.com/debler/debler/pkg/packager"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	// Register the ecosystem packagers.
	_ "github.com/debler/debler/pkg/packager/bundler"
	_ "github.com/debler/debler/pkg/packager/yarn"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "debler [subcommand]",
	Short: "Repackage language-ecosystem modules as OS packages",
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
}

// exitError carries an explicit process exit status out of a RunE.
type exitError struct{ Code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// env is the shared command state: configuration, catalog connection and
// HTTP client.
type env struct {
	Config  *config.Config
	Catalog *catalog.DB
	HTTP    httpx.BasicClient
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := catalog.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	client := &httpx.WithUserAgent{BasicClient: http.DefaultClient, UserAgent: "debler/1.0"}
	return &env{Config: cfg, Catalog: db, HTTP: client}, nil
}

func (e *env) Close() error { return e.Catalog.Close() }

func (e *env) builderEnv(tmpDir string) builder.Env {
	return builder.Env{
		Config:  e.Config,
		Catalog: e.Catalog,
		HTTP:    e.HTTP,
		TmpDir:  tmpDir,
	}
}

// resolvePackage looks up "name" or "packager:name" in the catalog.
func (e *env) resolvePackage(cmd *cobra.Command, arg, defaultPackager string) (packager.Packager, *catalog.Packager, *catalog.Package, error) {
	pkgrName, name := defaultPackager, arg
	if before, after, found := strings.Cut(arg, ":"); found {
		pkgrName, name = before, after
	}
	pkgr, err := packager.Get(pkgrName)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, err := e.Catalog.Packager(cmd.Context(), pkgrName)
	if err != nil {
		return nil, nil, nil, err
	}
	info, err := e.Catalog.PackageInfo(cmd.Context(), reg.ID, name, pkgr.DebName(name))
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "package %s", arg)
	}
	return pkgr, reg, info, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"configuration file (default ~/.debler.yml)")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(pkgCmd)
	rootCmd.AddCommand(pkgAppCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.Code)
		}
		log.Fatalf("%+v", err)
	}
}
