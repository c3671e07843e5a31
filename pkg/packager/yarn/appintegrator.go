// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package yarn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/constraint"
	"github.com/debler/debler/pkg/debpkg"
	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// appSection is the yarn part of an app description.
type appSection struct {
	Subdir string `yaml:"subdir"`
	// WithDevDependencies includes devDependencies in scheduling and
	// dependency generation.
	WithDevDependencies bool `yaml:"with_dev_dependencies"`
}

// AppIntegrator wires an app's yarn.lock into its OS package.
type AppIntegrator struct {
	env      builder.Env
	app      *builder.App
	cfg      appSection
	manifest *PackageJSON
	locked   []LockedPackage

	pkgr *catalog.Packager
}

// NewAppIntegrator parses the yarn section, the manifest and the lockfile.
func NewAppIntegrator(env builder.Env, app *builder.App, section *yaml.Node) (*AppIntegrator, error) {
	var cfg appSection
	if section != nil {
		if err := section.Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "parsing yarn section")
		}
	}
	if cfg.Subdir == "" {
		cfg.Subdir = "."
	}
	baseDir := filepath.Join(app.BaseDir, cfg.Subdir)
	manifest, err := LoadPackageJSON(filepath.Join(baseDir, "package.json"))
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(baseDir, "yarn.lock"))
	if err != nil {
		return nil, errors.Wrap(err, "reading yarn.lock")
	}
	locked, err := ParseLock(string(raw))
	if err != nil {
		return nil, err
	}
	return &AppIntegrator{
		env:      env,
		app:      app,
		cfg:      cfg,
		manifest: manifest,
		locked:   locked,
	}, nil
}

func (in *AppIntegrator) packager(ctx context.Context) (*catalog.Packager, error) {
	if in.pkgr != nil {
		return in.pkgr, nil
	}
	p, err := in.env.Catalog.Packager(ctx, "yarn")
	if err != nil {
		return nil, err
	}
	in.pkgr = p
	return p, nil
}

func (in *AppIntegrator) pkgInfo(ctx context.Context, packagerID int64, name string, autocreate bool) (*catalog.Package, error) {
	info, err := in.env.Catalog.PackageInfo(ctx, packagerID, name, npmNameToDeb(name))
	if err == nil || !errors.Is(err, catalog.ErrNotFound) || !autocreate {
		return info, err
	}
	if err := in.env.Catalog.RegisterPackage(ctx, packagerID, name, catalog.PackageConfig{}); err != nil {
		return nil, err
	}
	return in.env.Catalog.PackageInfo(ctx, packagerID, name, npmNameToDeb(name))
}

// ScheduleDepBuilds walks the lockfile and schedules a build for every
// resolved version the catalog does not track yet.
func (in *AppIntegrator) ScheduleDepBuilds(ctx context.Context) error {
	pkgr, err := in.packager(ctx)
	if err != nil {
		return err
	}
	for _, locked := range in.locked {
		info, err := in.pkgInfo(ctx, pkgr.ID, locked.Name, true)
		if err != nil {
			return err
		}
		slot, err := in.env.Catalog.SlotForVersion(ctx, info, locked.Version, defaultLevel, true)
		if err != nil {
			return err
		}
		versions, err := in.env.Catalog.Versions(ctx, slot.ID)
		if err != nil {
			return err
		}
		opts := catalog.ScheduleOpts{
			Version:      locked.Version,
			Distribution: in.env.Config.Distribution,
		}
		switch {
		case len(versions) == 0:
			opts.Changelog = "Import newly into debler"
		case version.CompareDotted(locked.Version, versions[len(versions)-1].Version) > 0:
			opts.Changelog = "Update to version used in application"
		default:
			continue
		}
		if _, err := in.env.Catalog.ScheduleBuild(ctx, slot, opts); err != nil {
			return err
		}
	}
	return nil
}

// dependencies returns the app's declared dependencies, optionally including
// the development set.
func (in *AppIntegrator) dependencies() map[string]string {
	deps := make(map[string]string, len(in.manifest.Dependencies))
	for name, c := range in.manifest.Dependencies {
		deps[name] = c
	}
	if in.cfg.WithDevDependencies {
		for name, c := range in.manifest.DevDependencies {
			deps[name] = c
		}
	}
	return deps
}

// ControlRecords emits dependencies on the slotted node packages.
func (in *AppIntegrator) ControlRecords(ctx context.Context) ([]debpkg.Record, error) {
	pkgr, err := in.packager(ctx)
	if err != nil {
		return nil, err
	}
	appDeb := in.app.Name
	records := []debpkg.Record{
		debpkg.Dependency{Package: appDeb, Dependency: "nodejs"},
	}
	deps := in.dependencies()
	for _, name := range sortedKeys(deps) {
		info, err := in.pkgInfo(ctx, pkgr.ID, name, false)
		if err != nil {
			return nil, errors.Wrapf(err, "dependency %s", name)
		}
		c, err := constraint.ParseNPM(deps[name])
		if err != nil {
			return nil, errors.Wrapf(err, "constraint of %s", name)
		}
		slots := make([]constraint.Slot, len(info.Slots))
		for i, s := range info.Slots {
			slots[i] = constraint.Slot{Key: s.Key}
		}
		lines, err := constraint.Compile(info.DebName, slots, c)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling constraint of %s", name)
		}
		for _, line := range lines {
			records = append(records, debpkg.Dependency{Package: appDeb, Dependency: line})
		}
	}
	return records, nil
}

// RulesRecords links the resolved modules into the app's node_modules.
func (in *AppIntegrator) RulesRecords(ctx context.Context) ([]debpkg.Record, error) {
	pkgr, err := in.packager(ctx)
	if err != nil {
		return nil, err
	}
	appDeb := in.app.Name
	var records []debpkg.Record
	seen := make(map[string]bool)
	for _, locked := range in.locked {
		if seen[locked.Name] {
			continue
		}
		seen[locked.Name] = true
		info, err := in.pkgInfo(ctx, pkgr.ID, locked.Name, false)
		if err != nil {
			return nil, errors.Wrapf(err, "dependency %s", locked.Name)
		}
		slot, ok := info.SlotFor(locked.Version)
		if !ok {
			return nil, errors.Errorf("no slot of %s covers %s", locked.Name, locked.Version)
		}
		slotted := locked.Name
		if slot.Key != "" {
			slotted += "-" + slot.Key
		}
		records = append(records, debpkg.Symlink{
			Package: appDeb,
			Dest:    "/" + sharePrefix + "/" + slotted,
			Src: fmt.Sprintf("/usr/share/%s/node_modules/%s",
				in.app.Name, locked.Name),
		})
	}
	return records, nil
}
