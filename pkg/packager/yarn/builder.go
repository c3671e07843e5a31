// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package yarn

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/constraint"
	"github.com/debler/debler/pkg/debpkg"
	"github.com/debler/debler/pkg/registry/npm"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// sharePrefix is where slotted node packages live on the target system.
const sharePrefix = "usr/share/node-debler"

// npmNameToDeb maps an upstream package name to its unslotted deb name.
func npmNameToDeb(name string) string {
	return "debler-yarn-" + debpkg.Sanitize(name)
}

// NodeBuilder packages one scheduled npm package revision.
type NodeBuilder struct {
	builder.Base

	pkgName  string
	slotKey  string
	upstream string
	// ownName is the slotted source name, e.g. "left-pad-1.1".
	ownName string
	reg     npm.Registry
	meta    *PackageJSON
}

// NewNodeBuilder prepares the build of one npm package revision.
func NewNodeBuilder(env builder.Env, build *catalog.BuildData) (*NodeBuilder, error) {
	if build.PackagerName != "yarn" {
		return nil, errors.Errorf("revision %d belongs to packager %s",
			build.Revision.ID, build.PackagerName)
	}
	b := &NodeBuilder{
		pkgName:  build.Package.Name,
		slotKey:  build.Slot.Key,
		upstream: build.UpstreamVer.Version,
	}
	b.Env = env
	b.Build = build
	b.UploadKind = "npm"
	b.ownName = b.pkgName
	if b.slotKey != "" {
		b.ownName += "-" + b.slotKey
	}
	b.Name = npmNameToDeb(b.ownName)
	b.Version = build.Revision.Version
	b.PkgDir = filepath.Join(env.TmpDir, b.pkgName+"-"+b.slotKey)
	b.OrigTar = filepath.Join(env.TmpDir,
		fmt.Sprintf("%s_%s.orig.tar.xz", b.Name, b.upstream))
	reg := npm.HTTPRegistry{Client: env.HTTP}
	if build.Packager.Registry != "" {
		base, err := url.Parse(build.Packager.Registry)
		if err != nil {
			return nil, errors.Wrap(err, "parsing registry URL")
		}
		reg.BaseURL = base
	}
	b.reg = reg
	return b, nil
}

func (b *NodeBuilder) srcFile() string {
	return filepath.Join(b.Env.Config.NPMDir, "versions", b.pkgName, b.upstream+".tar.gz")
}

func (b *NodeBuilder) tarxzFile() string {
	return filepath.Join(b.Env.Config.NPMDir, "versions", b.pkgName, b.upstream+".tar.xz")
}

// Generate produces the package's source package.
func (b *NodeBuilder) Generate(ctx context.Context) error {
	if err := b.fetchSource(ctx); err != nil {
		return err
	}
	meta, err := b.readManifest()
	if err != nil {
		return err
	}
	b.meta = meta
	if err := b.buildOrigTar(); err != nil {
		return err
	}
	if err := b.extractOrigTar(ctx); err != nil {
		return err
	}
	if err := b.WriteChangelog(); err != nil {
		return err
	}
	tree := debpkg.NewTree(b.pkgName)
	b.Tree = tree
	if err := b.generateControl(ctx, tree); err != nil {
		return err
	}
	if err := b.generateRules(tree); err != nil {
		return err
	}
	if err := tree.Materialize(b.PkgDir); err != nil {
		return err
	}
	return b.CreateSourcePackage(ctx)
}

func (b *NodeBuilder) fetchSource(ctx context.Context) error {
	if _, err := os.Stat(b.srcFile()); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.srcFile()), 0o755); err != nil {
		return errors.Wrap(err, "creating npm cache dir")
	}
	return b.Fetch(ctx, b.reg.ArtifactURL(b.pkgName, b.upstream), b.srcFile())
}

// readManifest extracts package/package.json from the upstream tarball.
func (b *NodeBuilder) readManifest() (*PackageJSON, error) {
	f, err := os.Open(b.srcFile())
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", b.srcFile())
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing upstream tarball")
	}
	t := tar.NewReader(gz)
	for {
		hdr, err := t.Next()
		if err == io.EOF {
			return nil, errors.Errorf("%s contains no package.json", b.srcFile())
		} else if err != nil {
			return nil, errors.Wrap(err, "reading upstream tarball")
		}
		if hdr.Name != "package/package.json" {
			continue
		}
		raw, err := io.ReadAll(t)
		if err != nil {
			return nil, errors.Wrap(err, "reading package.json")
		}
		return ParsePackageJSON(raw)
	}
}

// buildOrigTar recompresses the upstream gzip tarball as xz and links it into
// the build directory.
func (b *NodeBuilder) buildOrigTar() error {
	if _, err := os.Stat(b.OrigTar); err == nil {
		return nil
	}
	if _, err := os.Stat(b.tarxzFile()); err != nil {
		if err := b.recompress(); err != nil {
			return err
		}
	}
	return errors.Wrap(os.Symlink(b.tarxzFile(), b.OrigTar), "linking orig tar")
}

func (b *NodeBuilder) recompress() error {
	in, err := os.Open(b.srcFile())
	if err != nil {
		return errors.Wrapf(err, "opening %s", b.srcFile())
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "decompressing upstream tarball")
	}
	out, err := os.Create(b.tarxzFile())
	if err != nil {
		return errors.Wrap(err, "creating upstream tarball")
	}
	xzw, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return errors.Wrap(err, "starting xz stream")
	}
	if _, err := io.Copy(xzw, gz); err != nil {
		out.Close()
		os.Remove(b.tarxzFile())
		return errors.Wrap(err, "recompressing upstream tarball")
	}
	if err := xzw.Close(); err != nil {
		out.Close()
		return errors.Wrap(err, "closing xz stream")
	}
	return errors.Wrap(out.Close(), "closing upstream tarball")
}

// extractOrigTar unpacks the tarball, dropping the package/ prefix.
func (b *NodeBuilder) extractOrigTar(ctx context.Context) error {
	if err := os.MkdirAll(b.PkgDir, 0o755); err != nil {
		return errors.Wrap(err, "creating package dir")
	}
	return b.Command(ctx, b.PkgDir, "tar",
		"--extract",
		"--strip-components", "1",
		"--file", b.OrigTar)
}

func (b *NodeBuilder) generateControl(ctx context.Context, tree *debpkg.Tree) error {
	fields := []debpkg.Field{
		{Key: "source", Value: b.Name},
		{Key: "priority", Value: "optional"},
		{Key: "maintainer", Value: b.Env.Config.Maintainer},
		{Key: "standards_version", Value: "3.9.8"},
		{Key: "section", Value: "universe/web"},
	}
	if b.meta.Homepage != "" {
		fields = append(fields, debpkg.Field{Key: "homepage", Value: b.meta.Homepage})
	}
	description := b.meta.Description
	if description == "" {
		description = "not known ..."
	}
	records := []debpkg.Record{
		debpkg.SourceControl{Fields: fields},
		debpkg.BuildDependency{Dependency: "debhelper"},
		debpkg.Package{
			Name:         b.Name,
			Architecture: "all",
			Section:      "universe/web",
			Description:  description,
		},
		debpkg.Provide{Package: b.Name, Provide: npmNameToDeb(b.pkgName)},
		debpkg.Provide{Package: b.Name, Provide: npmNameToDeb(b.pkgName) + "-" + b.upstream},
	}
	parts := strings.Split(b.upstream, ".")
	if len(parts) >= 2 && parts[0] != "0" {
		minor := npmNameToDeb(b.pkgName) + "-" + parts[0] + "." + parts[1]
		if minor != npmNameToDeb(b.ownName) {
			records = append(records, debpkg.Provide{Package: b.Name, Provide: minor})
		}
	}
	records = append(records, debpkg.Dependency{Package: b.Name, Dependency: "nodejs"})

	for _, dep := range sortedKeys(b.meta.Dependencies) {
		info, err := b.Env.Catalog.PackageInfo(ctx,
			b.Build.Package.PackagerID, dep, npmNameToDeb(dep))
		if err != nil {
			return errors.Wrapf(err, "dependency %s of %s", dep, b.pkgName)
		}
		c, err := constraint.ParseNPM(b.meta.Dependencies[dep])
		if err != nil {
			return errors.Wrapf(err, "constraint of %s", dep)
		}
		slots := make([]constraint.Slot, len(info.Slots))
		for i, s := range info.Slots {
			slots[i] = constraint.Slot{Key: s.Key}
		}
		lines, err := constraint.Compile(info.DebName, slots, c)
		if err != nil {
			return errors.Wrapf(err, "compiling constraint of %s", dep)
		}
		for _, line := range lines {
			records = append(records, debpkg.Dependency{Package: b.Name, Dependency: line})
		}
	}
	records = append(records,
		debpkg.Dependency{Package: b.Name, Dependency: "${shlibs:Depends}"},
		debpkg.Dependency{Package: b.Name, Dependency: "${misc:Depends}"},
		debpkg.FastBuild{Possible: true})
	return tree.Add(records...)
}

// generateRules disables the upstream build steps and installs the payload
// verbatim.
func (b *NodeBuilder) generateRules(tree *debpkg.Tree) error {
	records := []debpkg.Record{
		debpkg.RuleOverride{Target: "clean"},
		debpkg.RuleOverride{Target: "build"},
		debpkg.RuleOverride{Target: "test"},
	}
	f, err := os.Open(b.tarxzFile())
	if err != nil {
		return errors.Wrapf(err, "opening %s", b.tarxzFile())
	}
	defer f.Close()
	xzr, err := xz.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "decompressing upstream tarball")
	}
	t := tar.NewReader(xzr)
	for {
		hdr, err := t.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "reading upstream tarball")
		}
		if strings.HasSuffix(hdr.Name, ".un~") {
			continue
		}
		// Drop the leading package/ component.
		_, stripped, found := strings.Cut(hdr.Name, "/")
		if !found || stripped == "" {
			continue
		}
		records = append(records, debpkg.Install{
			Package: b.Name,
			Obj:     stripped,
			Dest:    path.Join(sharePrefix, b.ownName, path.Dir(stripped)),
		})
	}
	return tree.Add(records...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
