// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundler repackages Ruby gems and wires Gemfile-managed
// applications into OS packages.
package bundler

import (
	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/packager"
	"gopkg.in/yaml.v3"
)

// Bundler is the Ruby ecosystem integration.
type Bundler struct{}

var _ packager.Packager = Bundler{}

func init() {
	packager.Register(Bundler{})
}

func (Bundler) Name() string { return "bundler" }

func (Bundler) DebName(upstream string) string { return gemNameToDeb(upstream) }

// DefaultLevel slots gems by their major version.
func (Bundler) DefaultLevel() int { return 1 }

func (Bundler) Builder(env builder.Env, build *catalog.BuildData) (builder.Builder, error) {
	return NewGemBuilder(env, build)
}

func (Bundler) AppIntegrator(env builder.Env, app *builder.App, section *yaml.Node) (builder.AppIntegrator, error) {
	return NewAppIntegrator(env, app, section)
}
