// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/debler/debler/internal/httpx"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/config"
	"github.com/debler/debler/pkg/debpkg"
	"github.com/pkg/errors"
)

// Env carries the process-wide dependencies a builder needs.
type Env struct {
	Config  *config.Config
	Catalog *catalog.DB
	HTTP    httpx.BasicClient
	// TmpDir is the process-local working directory of one build.
	TmpDir string
}

// Builder is the per-packager build contract. Generate produces the source
// package, Run builds the binaries, Upload pushes both changes files.
type Builder interface {
	DebName() string
	DebVersion() string
	Generate(context.Context) error
	Run(context.Context) error
	Upload(context.Context) error
}

// Base carries the state shared by all builders and implements the generic
// pipeline steps around the packager-specific generators.
type Base struct {
	Env   Env
	Build *catalog.BuildData

	// Name and Version identify the produced source package.
	Name    string
	Version string
	// PkgDir is the extracted source tree; OrigTar the upstream tarball next
	// to it.
	PkgDir  string
	OrigTar string
	// UploadKind selects the configured dput target ("gem", "app", "npm").
	UploadKind string

	Tree *debpkg.Tree
}

func (b *Base) DebName() string    { return b.Name }
func (b *Base) DebVersion() string { return b.Version }

// SlotDir is the directory holding the orig tar, dsc and changes files.
func (b *Base) SlotDir() string { return b.Env.TmpDir }

// ChangesPath returns the path of the changes file for an architecture.
func (b *Base) ChangesPath(arch string) string {
	return filepath.Join(b.SlotDir(), b.Name+"_"+b.Version+"_"+arch+".changes")
}

// Command runs an external tool with output attached to the process streams.
func (b *Base) Command(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "running %s", name)
	}
	return nil
}

// ExtractOrigTar unpacks the upstream tarball into the package directory.
func (b *Base) ExtractOrigTar(ctx context.Context) error {
	if err := os.MkdirAll(b.PkgDir, 0o755); err != nil {
		return errors.Wrap(err, "creating package dir")
	}
	return b.Command(ctx, b.PkgDir, "tar", "--extract", "--file", b.OrigTar)
}

// WriteChangelog stitches the revision's catalog changelog entries into
// debian/changelog.
func (b *Base) WriteChangelog() error {
	entries := make([]debpkg.ChangelogEntry, len(b.Build.ChangelogTail))
	for i, e := range b.Build.ChangelogTail {
		entries[i] = debpkg.ChangelogEntry{
			Version:      e.Version,
			Distribution: e.Distribution,
			Change:       e.Changelog,
			Date:         e.ScheduledAt,
		}
	}
	path := filepath.Join(b.PkgDir, "debian", "changelog")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating debian dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating changelog")
	}
	defer f.Close()
	return debpkg.WriteChangelog(f, b.Name, b.Env.Config.Maintainer, entries)
}

// CreateSourcePackage invokes the source-package builder on the tree.
func (b *Base) CreateSourcePackage(ctx context.Context) error {
	if err := b.Command(ctx, b.PkgDir, "dpkg-buildpackage", "-S", "-sa", "-d"); err != nil {
		return &BuildError{Err: err}
	}
	return nil
}

// Run builds binary packages, natively when every generator allowed the fast
// path, hermetically via sbuild otherwise.
func (b *Base) Run(ctx context.Context) error {
	if b.Tree != nil && b.Tree.FastBuildPossible() {
		return b.buildNative(ctx)
	}
	return b.buildWithSbuild(ctx)
}

func (b *Base) buildNative(ctx context.Context) error {
	err := b.Command(ctx, b.PkgDir, "dpkg-buildpackage",
		"-b",
		"-m"+b.Env.Config.Maintainer,
		"-us",
		"-rfakeroot")
	if err != nil {
		return &BuildError{Err: err}
	}
	return nil
}

func (b *Base) buildWithSbuild(ctx context.Context) error {
	// sbuild would try to resign the source changes; hide them temporarily.
	if err := os.Rename(b.ChangesPath("source"), b.ChangesPath("tmp")); err != nil {
		return errors.Wrap(err, "renaming source changes")
	}
	err := b.Command(ctx, b.SlotDir(), "sbuild",
		"--nolog",
		"--dist", b.Build.Distribution,
		"--keyid", b.Env.Config.KeyID.String(),
		"--maintainer", b.Env.Config.Maintainer,
		b.Name+"_"+b.Version+".dsc")
	if err != nil {
		return &BuildError{Err: err}
	}
	return os.Rename(b.ChangesPath("tmp"), b.ChangesPath("source"))
}

// Upload pushes the source and binary changes to the configured target.
func (b *Base) Upload(ctx context.Context) error {
	target := b.Env.Config.UploadTarget(b.UploadKind)
	if target == "" {
		return errors.Errorf("no upload target configured for %s", b.UploadKind)
	}
	if err := b.Command(ctx, b.SlotDir(), "dput", target, b.ChangesPath("source")); err != nil {
		return &BuildError{Err: err}
	}
	if err := b.Command(ctx, b.SlotDir(), "dput", target, b.ChangesPath("amd64")); err != nil {
		return &BuildError{Err: err}
	}
	return nil
}
