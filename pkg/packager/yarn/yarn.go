// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package yarn repackages npm modules resolved by yarn and wires
// yarn-managed applications into OS packages.
package yarn

import (
	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/packager"
	"gopkg.in/yaml.v3"
)

// defaultLevel slots node packages by major.minor; the caret convention
// makes plain major too coarse for the 0.x ranges npm is full of.
const defaultLevel = 2

// Yarn is the Node ecosystem integration.
type Yarn struct{}

var _ packager.Packager = Yarn{}

func init() {
	packager.Register(Yarn{})
}

func (Yarn) Name() string { return "yarn" }

func (Yarn) DebName(upstream string) string { return npmNameToDeb(upstream) }

func (Yarn) DefaultLevel() int { return defaultLevel }

func (Yarn) Builder(env builder.Env, build *catalog.BuildData) (builder.Builder, error) {
	return NewNodeBuilder(env, build)
}

func (Yarn) AppIntegrator(env builder.Env, app *builder.App, section *yaml.Node) (builder.AppIntegrator, error) {
	return NewAppIntegrator(env, app, section)
}
