// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/debpkg"
	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// appSection is the bundler part of an app description.
type appSection struct {
	Subdir          string   `yaml:"subdir"`
	Executables     []string `yaml:"executables"`
	BundlerLauncher bool     `yaml:"bundler_launcher"`
	DefaultEnv      string   `yaml:"default_env"`
	IgnoreGems      []string `yaml:"ignore_gems"`
}

// launcherBinary is one gem executable reachable through the app launcher.
type launcherBinary struct {
	exe      string
	path     string
	requires []string
}

// AppIntegrator wires an app's Gemfile into its OS package: dependencies on
// slotted gem packages, load path files and the optional launcher.
type AppIntegrator struct {
	env     builder.Env
	app     *builder.App
	cfg     appSection
	gemfile *Gemfile

	pkgr *catalog.Packager

	// State collected by ControlRecords and consumed by RulesRecords.
	metadatas map[string]catalog.SlotMetadata
	binaries  []launcherBinary
	natives   [][2]string // deb dep, slotted gem name
	// loadPaths maps "all" and "<ruby>.0" to the owning package and paths.
	loadPathOrder []string
	loadPaths     map[string]*loadPathSet
}

type loadPathSet struct {
	pkg   string
	paths []string
}

// NewAppIntegrator parses the bundler section and the app's Gemfile.
func NewAppIntegrator(env builder.Env, app *builder.App, section *yaml.Node) (*AppIntegrator, error) {
	var cfg appSection
	if section != nil {
		if err := section.Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "parsing bundler section")
		}
	}
	if cfg.Subdir == "" {
		cfg.Subdir = "."
	}
	gemfile, err := ParseGemfile(
		filepath.Join(app.BaseDir, cfg.Subdir, "Gemfile"), cfg.IgnoreGems)
	if err != nil {
		return nil, err
	}
	in := &AppIntegrator{
		env:       env,
		app:       app,
		cfg:       cfg,
		gemfile:   gemfile,
		metadatas: make(map[string]catalog.SlotMetadata),
		loadPaths: make(map[string]*loadPathSet),
	}
	in.addLoadPathSet("all", app.Name)
	return in, nil
}

func (in *AppIntegrator) addLoadPathSet(key, pkg string) *loadPathSet {
	set := &loadPathSet{pkg: pkg}
	in.loadPathOrder = append(in.loadPathOrder, key)
	in.loadPaths[key] = set
	return set
}

// packager resolves the catalog record of the bundler packager once.
func (in *AppIntegrator) packager(ctx context.Context) (*catalog.Packager, error) {
	if in.pkgr != nil {
		return in.pkgr, nil
	}
	p, err := in.env.Catalog.Packager(ctx, "bundler")
	if err != nil {
		return nil, err
	}
	in.pkgr = p
	return p, nil
}

func (in *AppIntegrator) rubies(ctx context.Context) ([]string, error) {
	p, err := in.packager(ctx)
	if err != nil {
		return nil, err
	}
	if len(p.Config.Rubies) > 0 {
		return p.Config.Rubies, nil
	}
	return in.env.Config.RubyStrings(), nil
}

// gemInfo loads a gem's catalog record, registering it first when allowed.
func gemInfo(ctx context.Context, db *catalog.DB, packagerID int64, name string, autocreate bool) (*catalog.Package, error) {
	info, err := db.PackageInfo(ctx, packagerID, name, gemNameToDeb(name))
	if err == nil || !errors.Is(err, catalog.ErrNotFound) || !autocreate {
		return info, err
	}
	level := 1
	if err := db.RegisterPackage(ctx, packagerID, name, catalog.PackageConfig{Level: &level}); err != nil {
		return nil, err
	}
	return db.PackageInfo(ctx, packagerID, name, gemNameToDeb(name))
}

// ScheduleDepBuilds walks the locked gems and schedules a build for every
// version the catalog does not track yet.
func (in *AppIntegrator) ScheduleDepBuilds(ctx context.Context) error {
	pkgr, err := in.packager(ctx)
	if err != nil {
		return err
	}
	format := make([]int64, len(in.env.Config.GemFormat))
	for i, f := range in.env.Config.GemFormat {
		format[i] = int64(f)
	}
	for _, name := range in.gemfile.SortedNames() {
		gem := in.gemfile.Gems[name]
		if gem.Version == "" {
			continue
		}
		info, err := gemInfo(ctx, in.env.Catalog, pkgr.ID, name, true)
		if err != nil {
			return err
		}
		slot, err := in.env.Catalog.SlotForVersion(ctx, info, gem.Version, 1, true)
		if err != nil {
			return err
		}
		opts := catalog.ScheduleOpts{
			Version:      gem.Version,
			Format:       format,
			Distribution: in.env.Config.Distribution,
		}
		if gem.Revision != "" {
			opts.Version = gem.Version + ".rev" + gem.Revision
			opts.Extra = catalog.VersionConfig{
				Repository: gem.Remote,
				Revision:   gem.Revision,
			}
		}
		versions, err := in.env.Catalog.Versions(ctx, slot.ID)
		if err != nil {
			return err
		}
		switch {
		case gem.Revision != "":
			if hasVersion(versions, opts.Version) {
				continue
			}
			opts.Changelog = "Build from upstream repository"
		case len(versions) == 0:
			opts.Changelog = "Import newly into debler"
		case version.CompareDotted(opts.Version, versions[len(versions)-1].Version) > 0:
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

func hasVersion(versions []catalog.Version, v string) bool {
	for _, have := range versions {
		if have.Version == v {
			return true
		}
	}
	return false
}

func slottedName(name, key string) string {
	if key == "" {
		return name
	}
	return name + "-" + key
}

// ControlRecords emits the app's gem dependencies and the per-interpreter
// binary packages.
func (in *AppIntegrator) ControlRecords(ctx context.Context) ([]debpkg.Record, error) {
	pkgr, err := in.packager(ctx)
	if err != nil {
		return nil, err
	}
	rubies, err := in.rubies(ctx)
	if err != nil {
		return nil, err
	}
	appDeb := in.app.Name
	var records []debpkg.Record
	for _, name := range in.gemfile.SortedNames() {
		gem := in.gemfile.Gems[name]
		if gem.Version == "" {
			if gem.Path == "" {
				return nil, errors.Errorf("gem %s has neither a version nor a path", name)
			}
			continue
		}
		info, err := gemInfo(ctx, in.env.Catalog, pkgr.ID, name, false)
		if err != nil {
			return nil, err
		}
		if info.Config.BuildGem {
			// Not needed at runtime.
			continue
		}
		slot, ok := info.SlotFor(gem.Version)
		if !ok {
			return nil, errors.Errorf("no slot of %s covers %s", name, gem.Version)
		}
		in.metadatas[name] = slot.Metadata
		gemSlot := slottedName(name, slot.Key)
		records = append(records, debpkg.Symlink{
			Package: appDeb,
			Dest:    fmt.Sprintf("%s/%s/%s.gemspec", sharePrefix, gemSlot, name),
			Src: fmt.Sprintf("/usr/share/%s/.debler/gems/specifications/%s-%s.gemspec",
				in.app.Name, name, gem.Version),
		})
		debDep := gemNameToDeb(gemSlot)
		all := in.loadPaths["all"]
		for _, p := range slot.Metadata.RequirePaths {
			all.paths = append(all.paths,
				fmt.Sprintf("%s/%s/%s/", sharePrefix, gemSlot, p))
		}
		for _, bin := range slot.Metadata.Binaries {
			_, exe, _ := strings.Cut(bin, "/")
			in.binaries = append(in.binaries, launcherBinary{
				exe:      exe,
				path:     path.Join(sharePrefix, gemSlot, bin),
				requires: slot.Metadata.Require,
			})
		}
		if info.Config.Native != nil && *info.Config.Native {
			in.natives = append(in.natives, [2]string{debDep, gemSlot})
		}
		deps, err := gemDependencyRecords(appDeb, debDep, gem, info)
		if err != nil {
			return nil, err
		}
		records = append(records, deps...)
	}

	alts := make([]string, len(rubies))
	for i, ruby := range rubies {
		alts[i] = appDeb + "-ruby" + ruby
	}
	records = append(records, debpkg.Dependency{
		Package: appDeb, Dependency: strings.Join(alts, " | ")})

	firstLine, _, _ := strings.Cut(in.app.Description, "\n")
	for _, ruby := range rubies {
		deb := appDeb + "-ruby" + ruby
		set := in.addLoadPathSet(ruby+".0", deb)
		records = append(records,
			debpkg.Package{
				Name:         deb,
				Architecture: "all",
				Section:      "ruby",
				Description: firstLine + " - ruby " + ruby +
					"\n Needed dependencies and executables for Ruby" + ruby,
			},
			debpkg.Dependency{Package: deb, Dependency: "ruby" + ruby})
		for _, native := range in.natives {
			records = append(records, debpkg.Dependency{
				Package: deb, Dependency: native[0] + "-ruby" + ruby})
			set.paths = append(set.paths,
				fmt.Sprintf("/usr/lib/ARCH/rubygems-debler/%s.0/%s/", ruby, native[1]))
		}
		records = append(records,
			debpkg.Dependency{Package: deb, Dependency: "${shlibs:Depends}"},
			debpkg.Dependency{Package: deb, Dependency: "${misc:Depends}"})
	}
	return records, nil
}

// gemDependencyRecords renders one gem's dependency relations for the app
// package.
func gemDependencyRecords(appDeb, debDep string, gem *Gem, info *catalog.Package) ([]debpkg.Record, error) {
	if gem.Revision != "" {
		return []debpkg.Record{debpkg.Dependency{
			Package:    appDeb,
			Dependency: gemNameToDeb(gem.Name) + "-" + gem.Revision,
		}}, nil
	}
	if len(gem.Constraints) == 0 {
		return []debpkg.Record{debpkg.Dependency{Package: appDeb, Dependency: debDep}}, nil
	}
	var records []debpkg.Record
	for _, c := range gem.Constraints {
		if !strings.Contains(c, " ") {
			c = "= " + c
		}
		op, vers, _ := strings.Cut(c, " ")
		if op != "~>" {
			switch op {
			case "=", ">":
				op = ">="
			}
			records = append(records, debpkg.Dependency{
				Package:    appDeb,
				Dependency: fmt.Sprintf("%s (%s %s)", debDep, op, vers),
			})
			continue
		}
		records = append(records, debpkg.Dependency{
			Package:    appDeb,
			Dependency: fmt.Sprintf("%s (>= %s)", debDep, vers),
		})
		parts := strings.Split(vers, ".")
		if len(parts) > info.Config.LevelOr(1) && len(parts) >= 2 {
			upper, err := pessimisticBound(parts)
			if err != nil {
				return nil, errors.Wrapf(err, "constraint %q of %s", c, gem.Name)
			}
			records = append(records, debpkg.Dependency{
				Package:    appDeb,
				Dependency: fmt.Sprintf("%s (<= %s)", debDep, upper),
			})
		}
	}
	return records, nil
}

// pessimisticBound zeroes the last component and bumps the one above it.
func pessimisticBound(parts []string) (string, error) {
	up := append([]string{}, parts...)
	n := 0
	for _, r := range up[len(up)-2] {
		if r < '0' || r > '9' {
			return "", errors.Errorf("non-numeric component %q", up[len(up)-2])
		}
		n = n*10 + int(r-'0')
	}
	up[len(up)-1] = "0"
	up[len(up)-2] = fmt.Sprintf("%d", n+1)
	return strings.Join(up, "."), nil
}

// RulesRecords emits the load path files, path-gem installs and the optional
// launcher. It must run after ControlRecords.
func (in *AppIntegrator) RulesRecords(ctx context.Context) ([]debpkg.Record, error) {
	rubies, err := in.rubies(ctx)
	if err != nil {
		return nil, err
	}
	appDeb := in.app.Name
	var records []debpkg.Record
	for _, name := range in.gemfile.SortedNames() {
		gem := in.gemfile.Gems[name]
		if gem.Version != "" {
			continue
		}
		in.loadPaths["all"].paths = append(in.loadPaths["all"].paths,
			fmt.Sprintf("/usr/share/%s/%s/lib", in.app.Name, gem.Path))
		records = append(records, debpkg.Install{
			Package: appDeb,
			Obj:     gem.Path,
			Dest:    fmt.Sprintf("/usr/share/%s/%s", in.app.Name, path.Dir(gem.Path)),
		})
	}
	for _, key := range in.loadPathOrder {
		if key == "all" {
			continue
		}
		records = append(records, debpkg.RuleAction{
			Target: "build",
			Cmd: "sed --in-place --expression=s:/ARCH/:/${DEB_BUILD_MULTIARCH}/: " +
				"debian/data/" + key,
		})
	}
	for _, key := range in.loadPathOrder {
		set := in.loadPaths[key]
		records = append(records, debpkg.InstallContent{
			Package: set.pkg,
			Name:    "data/" + key,
			Dest:    fmt.Sprintf("/usr/share/%s/.debler/load_paths/", in.app.Name),
			Mode:    0o755,
			Content: strings.Join(set.paths, "\n") + "\n",
		})
	}
	if in.cfg.BundlerLauncher {
		records = append(records, in.launcherRecords(rubies)...)
	}
	return records, nil
}

// launcherRecords builds the per-interpreter launcher scripts, the
// alternatives maintainer scripts and the bundler replacement library.
func (in *AppIntegrator) launcherRecords(rubies []string) []debpkg.Record {
	var records []debpkg.Record
	app := in.app.Name
	for _, ruby := range rubies {
		deb := app + "-ruby" + ruby
		records = append(records,
			debpkg.InstallContent{
				Package: deb,
				Name:    "bin/" + app + ruby,
				Dest:    "/usr/bin",
				Mode:    0o755,
				Content: in.launcherScript(ruby),
			},
			debpkg.DebianContent{
				Name: deb + ".postinst",
				Mode: 0o755,
				Content: fmt.Sprintf(`#!/bin/sh
set -e

update-alternatives --install /usr/bin/%[1]s %[1]s /usr/bin/%[1]s%[2]s %[3]s

#DEBHELPER#

exit 0
`, app, ruby, "9"+strings.ReplaceAll(ruby, ".", "")),
			},
			debpkg.DebianContent{
				Name: deb + ".prerm",
				Mode: 0o755,
				Content: fmt.Sprintf(`#!/bin/sh
set -e

case "$1" in
  remove|deconfigure)
    update-alternatives --remove %[1]s /usr/bin/%[1]s%[2]s
    ;;

  upgrade|failed-upgrade)
    ;;

  *)
    echo "prerm called with unknown argument \"$1\"" >&2
    exit 0
    ;;

esac

#DEBHELPER#

exit 0
`, app, ruby),
			})
	}
	records = append(records,
		debpkg.Install{
			Package: app,
			Obj:     filepath.Join("debian", "lib"),
			Dest:    fmt.Sprintf("/usr/share/%s/.debler", app),
		},
		debpkg.DebianContent{
			Name:    "lib/bundler/setup.rb",
			Mode:    0o755,
			Content: "require \"bundler\"\n",
		},
		debpkg.DebianContent{
			Name:    "lib/bundler.rb",
			Mode:    0o755,
			Content: in.fakeBundler(),
		})
	return records
}

func (in *AppIntegrator) launcherScript(ruby string) string {
	var bins strings.Builder
	for _, bin := range in.binaries {
		fmt.Fprintf(&bins, "    '%s' => [\"%s\", [\"%s\"]],\n",
			bin.exe, bin.path, strings.Join(bin.requires, `", "`))
	}
	return fmt.Sprintf(`#!/usr/bin/ruby%[1]s

Dir.chdir("/usr/share/%[2]s")
ENV['HOME'] = '/tmp'  # will be fixed later
ENV['RAILS_ENV'] ||= '%[3]s'
ENV['GEM_PATH'] = '/usr/share/%[2]s/.debler/gems'
$LOAD_PATH << '/usr/share/%[2]s/.debler/lib'
File.readlines("/usr/share/%[2]s/.debler/load_paths/all").each do |dir|
  $LOAD_PATH << dir.strip
end
File.readlines("/usr/share/%[2]s/.debler/load_paths/%[1]s.0").each do |dir|
  $LOAD_PATH << dir.strip
end
require "bundler"
exe = ARGF.argv.shift
if File.exist? exe
  load exe
else
  binaries = {
%[4]s  }
  if binaries.key? exe
    binaries[exe][1].each do |torequire|
      require torequire
    end
    load binaries[exe][0]
  end
end
`, ruby, in.app.Name, in.cfg.DefaultEnv, bins.String())
}

// fakeBundler renders the Bundler replacement that requires the locked gems
// from the system load path instead of resolving anything.
func (in *AppIntegrator) fakeBundler() string {
	var sb strings.Builder
	sb.WriteString("class Bundler\n")
	sb.WriteString("  def self.require(*groups)\n")
	sb.WriteString("    groups = groups.map(&:to_s)\n")
	for _, name := range in.gemfile.SortedNames() {
		gem := in.gemfile.Gems[name]
		if !gem.Require && gem.RequireAs == "" {
			continue
		}
		if gem.RequireAs != "" {
			fmt.Fprintf(&sb, "    Kernel.require \"%s\"\n", gem.RequireAs)
			continue
		}
		requires := in.metadatas[name].Require
		if len(requires) == 0 {
			requires = []string{strings.ReplaceAll(name, "-", "/")}
		}
		guard := ""
		if !contains(gem.Envs, "default") {
			guard = fmt.Sprintf(" unless (groups & [\"%s\"]).empty?",
				strings.Join(gem.Envs, `", "`))
		}
		for _, req := range requires {
			fmt.Fprintf(&sb, "    Kernel.require \"%s\"%s\n", req, guard)
		}
	}
	sb.WriteString(`  end

  def self.setup(*args)
  end
  def self.with_clean_env
    yield
  end
end
`)
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}
