// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package packager defines the contract an ecosystem integration implements
// and the registry the commands resolve packagers from.
package packager

import (
	"sort"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Packager is one ecosystem integration. Implementations register themselves
// at init time under the name the catalog uses.
type Packager interface {
	// Name is the catalog identifier ("bundler", "yarn").
	Name() string
	// DebName maps an upstream package name to its unslotted deb name.
	DebName(upstream string) string
	// DefaultLevel is how many leading version components form a slot key
	// when the package does not configure one.
	DefaultLevel() int
	// Builder prepares a build for one scheduled revision.
	Builder(env builder.Env, build *catalog.BuildData) (builder.Builder, error)
	// AppIntegrator interprets this packager's section of an app
	// description. The section node comes from the description file.
	AppIntegrator(env builder.Env, app *builder.App, section *yaml.Node) (builder.AppIntegrator, error)
}

var registry = make(map[string]Packager)

// Register adds a packager to the registry. It panics on duplicate names and
// is meant to be called from init functions.
func Register(p Packager) {
	if _, ok := registry[p.Name()]; ok {
		panic("packager: duplicate registration of " + p.Name())
	}
	registry[p.Name()] = p
}

// Get resolves a packager by catalog name.
func Get(name string) (Packager, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown packager %q", name)
	}
	return p, nil
}

// Names lists the registered packagers in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
