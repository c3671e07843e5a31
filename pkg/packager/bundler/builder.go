// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"archive/tar"
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
	"github.com/debler/debler/pkg/registry/rubygems"
	"github.com/pkg/errors"
)

// sharePrefix is where slotted gem sources live on the target system.
const sharePrefix = "/usr/share/rubygems-debler"

// gemNameToDeb maps an upstream gem name to its unslotted deb name.
func gemNameToDeb(name string) string {
	return "debler-rubygem-" + debpkg.Sanitize(name)
}

// GemBuilder packages one scheduled gem revision.
type GemBuilder struct {
	builder.Base

	gemName string
	slotKey string
	// upstream is the catalog version, including the .rev<sha> suffix of
	// git-sourced builds.
	upstream string
	// ownName is the slotted source name, e.g. "rails-5.2".
	ownName string
	rubies  []string
	reg     rubygems.Registry

	meta *GemMetadata
	// extLoadPaths are -I paths of build-time gem dependencies.
	extLoadPaths []string
	// harvested is filled during the install walk and stored on the slot.
	harvested catalog.SlotMetadata
}

// NewGemBuilder prepares the build of one gem revision.
func NewGemBuilder(env builder.Env, build *catalog.BuildData) (*GemBuilder, error) {
	if build.PackagerName != "bundler" {
		return nil, errors.Errorf("revision %d belongs to packager %s",
			build.Revision.ID, build.PackagerName)
	}
	b := &GemBuilder{
		gemName:  build.Package.Name,
		slotKey:  build.Slot.Key,
		upstream: build.UpstreamVer.Version,
		rubies:   build.Packager.Rubies,
	}
	b.Env = env
	b.Build = build
	b.UploadKind = "gem"
	if len(b.rubies) == 0 {
		b.rubies = env.Config.RubyStrings()
	}
	b.ownName = b.gemName
	if b.slotKey != "" {
		b.ownName += "-" + b.slotKey
	}
	b.Name = gemNameToDeb(b.ownName)
	b.Version = build.Revision.Version
	b.PkgDir = filepath.Join(env.TmpDir, b.gemName+"-"+b.slotKey)
	b.OrigTar = filepath.Join(env.TmpDir,
		fmt.Sprintf("%s_%s.orig.tar.xz", b.Name, b.upstream))
	reg := rubygems.HTTPRegistry{Client: env.HTTP}
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

// srcFile is the cached upstream .gem archive.
func (b *GemBuilder) srcFile() string {
	return filepath.Join(b.Env.Config.GemDir, "versions", b.gemName, b.upstream+".gem")
}

// tarxzFile is the cached repacked upstream tarball.
func (b *GemBuilder) tarxzFile() string {
	return filepath.Join(b.Env.Config.GemDir, "versions", b.gemName, b.upstream+".tar.xz")
}

// Generate produces the gem's source package.
func (b *GemBuilder) Generate(ctx context.Context) error {
	if err := b.fetchSource(ctx); err != nil {
		return err
	}
	meta, err := ReadGemMetadata(b.srcFile())
	if err != nil {
		return err
	}
	b.meta = meta
	if err := b.buildOrigTar(); err != nil {
		return err
	}
	if err := b.ExtractOrigTar(ctx); err != nil {
		return err
	}
	if err := b.WriteChangelog(); err != nil {
		return err
	}
	tree := debpkg.NewTree(b.gemName)
	b.Tree = tree
	if err := b.generateControl(ctx, tree); err != nil {
		return err
	}
	if err := b.generateRules(ctx, tree); err != nil {
		return err
	}
	if err := tree.Materialize(b.PkgDir); err != nil {
		return err
	}
	return b.CreateSourcePackage(ctx)
}

// fetchSource ensures the .gem archive is cached, downloading it from the
// registry or building it from the configured git revision.
func (b *GemBuilder) fetchSource(ctx context.Context) error {
	if _, err := os.Stat(b.srcFile()); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.srcFile()), 0o755); err != nil {
		return errors.Wrap(err, "creating gem cache dir")
	}
	cfg := b.Build.UpstreamVer.Config
	if cfg.Revision == "" {
		url := b.reg.ArtifactURL(b.gemName, b.upstream)
		return b.Fetch(ctx, url, b.srcFile())
	}
	gitDir := filepath.Join(b.Env.TmpDir, "git")
	if err := builder.CloneAtRevision(ctx, cfg.Repository, cfg.Revision, gitDir); err != nil {
		return err
	}
	specs, err := filepath.Glob(filepath.Join(gitDir, "*.gemspec"))
	if err != nil || len(specs) == 0 {
		return errors.Errorf("no gemspec in %s", cfg.Repository)
	}
	if err := b.Command(ctx, gitDir, "gem", "build", specs[0]); err != nil {
		return err
	}
	gems, err := filepath.Glob(filepath.Join(gitDir, "*.gem"))
	if err != nil || len(gems) == 0 {
		return errors.Errorf("gem build produced no archive in %s", gitDir)
	}
	return errors.Wrap(os.Rename(gems[0], b.srcFile()), "caching built gem")
}

// buildOrigTar repacks the gem into the cached upstream tarball and links it
// into the build directory.
func (b *GemBuilder) buildOrigTar() error {
	if _, err := os.Stat(b.OrigTar); err == nil {
		return nil
	}
	if _, err := os.Stat(b.tarxzFile()); err != nil {
		if err := RepackGem(b.srcFile(), b.tarxzFile()); err != nil {
			return err
		}
	}
	return errors.Wrap(os.Symlink(b.tarxzFile(), b.OrigTar), "linking orig tar")
}

// gemInfo loads the catalog record of another gem of the same packager.
func (b *GemBuilder) gemInfo(ctx context.Context, name string) (*catalog.Package, error) {
	return b.Env.Catalog.PackageInfo(ctx, b.Build.Package.PackagerID, name, gemNameToDeb(name))
}

// extensionList returns the native extensions to build, minus configured
// skips.
func (b *GemBuilder) extensionList() []string {
	skip := make(map[string]bool)
	for _, e := range b.Build.Package.Config.SkipExts {
		skip[e] = true
	}
	var exts []string
	for _, e := range b.meta.Extensions {
		if !skip[e] {
			exts = append(exts, e)
		}
	}
	return exts
}

func (b *GemBuilder) generateControl(ctx context.Context, tree *debpkg.Tree) error {
	fields := []debpkg.Field{
		{Key: "source", Value: b.Name},
		{Key: "priority", Value: "optional"},
		{Key: "maintainer", Value: b.Env.Config.Maintainer},
		{Key: "standards_version", Value: "3.9.6"},
	}
	if b.meta.Homepage != "" {
		fields = append(fields, debpkg.Field{Key: "homepage", Value: b.meta.Homepage})
	}
	records := []debpkg.Record{
		debpkg.SourceControl{Fields: fields},
		debpkg.BuildDependency{Dependency: "debhelper"},
	}

	exts := b.extensionList()
	native := len(exts) > 0
	if native {
		for _, ruby := range b.rubies {
			records = append(records,
				debpkg.BuildDependency{Dependency: "ruby" + ruby},
				debpkg.BuildDependency{Dependency: "ruby" + ruby + "-dev"})
		}
	}
	cfg := b.Build.Package.Config
	if cfg.Native == nil {
		// Auto-detect on first build and remember the outcome.
		cfg.Native = &native
		b.Build.Package.Config = cfg
		if err := b.Env.Catalog.SetPackageConfig(ctx, b.Build.Package.ID, cfg); err != nil {
			return err
		}
	} else if *cfg.Native != native {
		return errors.Errorf("%s is recorded as native=%v but has %d extensions",
			b.gemName, *cfg.Native, len(exts))
	}
	for _, dep := range cfg.BuildDeps {
		records = append(records, debpkg.BuildDependency{Dependency: dep})
	}

	records = append(records, debpkg.Package{
		Name:         b.Name,
		Architecture: "all",
		Section:      "ruby",
		Description:  b.meta.Summary + "\n" + b.meta.Description,
	})

	if level := cfg.LevelOr(1); level > 0 {
		records = append(records, debpkg.Provide{Package: b.Name, Provide: gemNameToDeb(b.gemName)})
		parts := strings.Split(b.upstream, ".")
		for l := 1; l < level && l <= len(parts); l++ {
			records = append(records, debpkg.Provide{
				Package: b.Name,
				Provide: gemNameToDeb(b.gemName + "-" + strings.Join(parts[:l], ".")),
			})
		}
	}
	if rev := b.Build.UpstreamVer.Config.Revision; rev != "" {
		records = append(records, debpkg.Provide{
			Package: b.Name,
			Provide: gemNameToDeb(b.gemName) + "-" + rev,
		})
	}

	depRecords, err := b.dependencyRecords(ctx)
	if err != nil {
		return err
	}
	records = append(records, depRecords...)

	for _, dep := range cfg.RunDeps {
		records = append(records, debpkg.Dependency{Package: b.Name, Dependency: dep})
	}
	records = append(records,
		debpkg.Dependency{Package: b.Name, Dependency: "${shlibs:Depends}"},
		debpkg.Dependency{Package: b.Name, Dependency: "${misc:Depends}"})

	if native {
		alts := make([]string, len(b.rubies))
		for i, ruby := range b.rubies {
			alts[i] = fmt.Sprintf("%s-ruby%s (= ${binary:Version})", b.Name, ruby)
		}
		records = append(records, debpkg.Dependency{
			Package: b.Name, Dependency: strings.Join(alts, " | ")})
		for _, ruby := range b.rubies {
			name := b.Name + "-ruby" + ruby
			records = append(records,
				debpkg.Package{
					Name:         name,
					Architecture: "any",
					Section:      "ruby",
					Description:  b.meta.Summary + "\n Native extension for ruby" + ruby,
				},
				debpkg.Dependency{Package: name, Dependency: "${shlibs:Depends}"},
				debpkg.Dependency{Package: name, Dependency: "${misc:Depends}"})
		}
	}
	records = append(records, debpkg.FastBuild{Possible: !native})
	return tree.Add(records...)
}

// dependencyRecords maps the gem's runtime dependencies onto OS package
// relations via the slot catalog.
func (b *GemBuilder) dependencyRecords(ctx context.Context) ([]debpkg.Record, error) {
	var records []debpkg.Record
	for _, dep := range b.meta.Dependencies {
		if !dep.Runtime || dep.Name == "bundler" {
			continue
		}
		depInfo, err := b.gemInfo(ctx, dep.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "dependency %s of %s", dep.Name, b.gemName)
		}
		if depInfo.Config.Ignore {
			continue
		}
		if depInfo.Config.BuildGem {
			// Only needed while building the gem, not at runtime.
			if len(depInfo.Slots) == 0 {
				return nil, errors.Errorf("build gem %s has no slot", dep.Name)
			}
			slot := depInfo.Slots[len(depInfo.Slots)-1]
			records = append(records, debpkg.BuildDependency{
				Dependency: gemNameToDeb(dep.Name) + "-" + slot.Key})
			for _, p := range slot.Metadata.RequirePaths {
				b.extLoadPaths = append(b.extLoadPaths,
					fmt.Sprintf("%s/%s-%s/%s/", sharePrefix, dep.Name, slot.Key, p))
			}
			continue
		}
		c, err := constraint.ParseGemRequirements(dep.Requirements)
		if err != nil {
			return nil, errors.Wrapf(err, "requirements of %s", dep.Name)
		}
		slots := make([]constraint.Slot, len(depInfo.Slots))
		for i, s := range depInfo.Slots {
			slots[i] = constraint.Slot{Key: s.Key}
		}
		lines, err := constraint.Compile(depInfo.DebName, slots, c)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling requirements of %s", dep.Name)
		}
		for _, line := range lines {
			records = append(records, debpkg.Dependency{Package: b.Name, Dependency: line})
		}
	}
	return records, nil
}

func (b *GemBuilder) generateRules(ctx context.Context, tree *debpkg.Tree) error {
	b.harvested = catalog.SlotMetadata{RequirePaths: b.meta.RequirePaths}
	exts := b.extensionList()
	if err := tree.Add(b.extensionRules(exts)...); err != nil {
		return err
	}
	if err := tree.Add(debpkg.InstallContent{
		Package: b.Name,
		Name:    b.gemName + ".gemspec",
		Dest:    sharePrefix + "/" + b.ownName + "/",
		Mode:    0o755,
		Content: b.gemspec(),
	}); err != nil {
		return err
	}
	installs, err := b.installWalk()
	if err != nil {
		return err
	}
	if err := tree.Add(installs...); err != nil {
		return err
	}
	return b.Env.Catalog.SetSlotMetadata(ctx, b.Build.Slot.ID, b.harvested)
}

// extensionRules emits the per-interpreter compile steps for native gems.
func (b *GemBuilder) extensionRules(exts []string) []debpkg.Record {
	if len(exts) == 0 {
		return nil
	}
	cfg := b.Build.Package.Config
	rubyopts := ""
	for _, p := range b.extLoadPaths {
		rubyopts += " -I" + p
	}
	extArgs := strings.Join(cfg.ExtArgs, " ")
	soDir := func(ruby string) string {
		return path.Join("/usr/lib/${DEB_BUILD_MULTIARCH}/rubygems-debler",
			ruby+".0", b.ownName, cfg.SoSubdir)
	}
	var records []debpkg.Record
	action := func(cmd string) {
		records = append(records, debpkg.RuleAction{Target: "build", Cmd: cmd})
	}
	if len(exts) == 1 {
		dirs := make([]string, len(b.rubies))
		for i, ruby := range b.rubies {
			dirs[i] = "v" + ruby
		}
		action("mkdir " + strings.Join(dirs, " "))
		for _, ruby := range b.rubies {
			action(fmt.Sprintf("cd v%s && ruby%s%s ../src/%s %s",
				ruby, ruby, rubyopts, exts[0], extArgs))
		}
		for _, ruby := range b.rubies {
			action("make -C v" + ruby)
		}
		for _, ruby := range b.rubies {
			action(fmt.Sprintf("dh_install -p%s-ruby%s v%s/*.so %s",
				b.Name, ruby, ruby, soDir(ruby)))
		}
		return records
	}
	var dirs []string
	for _, ext := range exts {
		for _, ruby := range b.rubies {
			dirs = append(dirs, "v"+ruby+"/"+extDir(ext))
		}
	}
	action("mkdir -p " + strings.Join(dirs, " "))
	for _, ext := range exts {
		for _, ruby := range b.rubies {
			action(fmt.Sprintf("cd v%s/%s && ruby%s%s ../../src/%s %s",
				ruby, extDir(ext), ruby, rubyopts, ext, extArgs))
		}
	}
	for _, ext := range exts {
		for _, ruby := range b.rubies {
			action(fmt.Sprintf("make -C v%s/%s", ruby, extDir(ext)))
		}
	}
	for _, ext := range exts {
		for _, ruby := range b.rubies {
			action(fmt.Sprintf("dh_install -p%s-ruby%s v%s/%s/*.so %s",
				b.Name, ruby, ruby, extDir(ext), soDir(ruby)))
		}
	}
	return records
}

// extDir flattens an extension path into one build directory name.
func extDir(ext string) string {
	return strings.ReplaceAll(ext, "/", "_")
}

// installWalk maps the gem's payload onto install records and harvests the
// slot metadata: shipped binaries and the entry files an app would require.
func (b *GemBuilder) installWalk() ([]debpkg.Record, error) {
	prefixes := append([]string{}, b.meta.RequirePaths...)
	if b.meta.Bindir != "" {
		prefixes = append(prefixes, b.meta.Bindir)
	}
	prefixes = append(prefixes, "data", "vendor")
	prefixes = append(prefixes, b.Build.Package.Config.ExtraDirs...)

	var records []debpkg.Record
	var requireFiles []string
	currentLevel := -1
	err := WalkGemData(b.srcFile(), func(hdr *tar.Header, _ io.Reader) error {
		name := hdr.Name
		if b.meta.Bindir != "" && strings.HasPrefix(name, b.meta.Bindir+"/") {
			b.harvested.Binaries = append(b.harvested.Binaries, name)
		}
		for _, rp := range b.meta.RequirePaths {
			if !strings.HasPrefix(name, rp+"/") || !strings.HasSuffix(name, ".rb") {
				continue
			}
			depth := strings.Count(name, "/") + 1
			feature := strings.TrimSuffix(name[len(rp)+1:], ".rb")
			if currentLevel < 0 || depth < currentLevel {
				requireFiles = []string{feature}
				currentLevel = depth
			} else if depth == currentLevel {
				requireFiles = append(requireFiles, feature)
			}
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				records = append(records, debpkg.Install{
					Package: b.Name,
					Obj:     "src/" + name,
					Dest:    sharePrefix + "/" + b.ownName + "/" + path.Dir(name),
				})
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.harvested.Require = chooseRequire(b.gemName, requireFiles)
	return records, nil
}

// chooseRequire picks the feature an app should require to load the gem.
func chooseRequire(gemName string, files []string) []string {
	for _, f := range files {
		if f == gemName {
			return []string{gemName}
		}
	}
	slashed := strings.ReplaceAll(gemName, "-", "/")
	for _, f := range files {
		if f == slashed {
			return []string{slashed}
		}
	}
	if len(files) == 0 {
		return nil
	}
	// Ambiguous layout; record everything found at the top level.
	return files
}

// gemspec renders the reduced gemspec shipped next to the sources.
func (b *GemBuilder) gemspec() string {
	var sb strings.Builder
	quote := func(s string) string { return strings.ReplaceAll(s, `"`, `\"`) }
	fmt.Fprintf(&sb, `# File auto-generated by debler gem-builder

Gem::Specification.new do |s|
  s.name = "%s"
  s.version = "%s"

  if s.respond_to? :required_rubygems_version=
    s.required_rubygems_version = Gem::Requirement.new(">= 0")
  end
  s.require_paths = ["%s"]
  s.authors = ["%s"]
  s.date = "%s"
  s.description = "%s"
  s.email = ["%s"]
  s.homepage = "%s"
  s.licenses = ["%s"]
  s.summary = "%s"

`,
		b.gemName,
		b.meta.Version,
		strings.Join(b.meta.RequirePaths, `", "`),
		strings.Join(b.meta.Authors, `", "`),
		b.meta.Date,
		quote(b.meta.Description),
		strings.Join(b.meta.Email, `", "`),
		b.meta.Homepage,
		strings.Join(b.meta.Licenses, `", "`),
		quote(b.meta.Summary))
	for _, dep := range b.meta.Dependencies {
		kind := "add_development_dependency"
		if dep.Runtime {
			kind = "add_dependency"
		}
		fmt.Fprintf(&sb, "  s.%s(%q", kind, dep.Name)
		for _, req := range dep.Requirements {
			fmt.Fprintf(&sb, ", \"%s %s\"", req.Op, req.Version)
		}
		sb.WriteString(")\n")
	}
	sb.WriteString("end\n")
	return sb.String()
}
