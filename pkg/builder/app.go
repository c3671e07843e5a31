// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/debler/debler/pkg/debpkg"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"
)

// App is a parsed app description: the application metadata plus one opaque
// configuration section per packager.
type App struct {
	Name        string
	Version     string
	BaseDir     string
	Homepage    string
	Description string
	Dirs        []string
	Files       []string
	// Sections holds the per-packager configuration nodes, keyed by packager
	// name ("bundler", "yarn").
	Sections map[string]*yaml.Node
}

var appKnownKeys = map[string]bool{
	"name": true, "version": true, "basedir": true, "homepage": true,
	"description": true, "dirs": true, "files": true,
}

// LoadApp reads an app description. Environment references of the form
// ${VAR} are expanded; a missing basedir defaults to the description's
// directory.
func LoadApp(path string) (*App, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading app description %s", path)
	}
	return parseApp(os.ExpandEnv(string(raw)), filepath.Dir(path))
}

func parseApp(doc, defaultBaseDir string) (*App, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return nil, errors.Wrap(err, "parsing app description")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 ||
		root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("app description must be a mapping")
	}
	app := &App{BaseDir: defaultBaseDir, Sections: make(map[string]*yaml.Node)}
	m := root.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i].Value, m.Content[i+1]
		switch key {
		case "name":
			app.Name = value.Value
		case "version":
			v, err := appVersion(value)
			if err != nil {
				return nil, err
			}
			app.Version = v
		case "basedir":
			app.BaseDir = value.Value
		case "homepage":
			app.Homepage = value.Value
		case "description":
			app.Description = value.Value
		case "dirs":
			if err := value.Decode(&app.Dirs); err != nil {
				return nil, errors.Wrap(err, "parsing dirs")
			}
		case "files":
			if err := value.Decode(&app.Files); err != nil {
				return nil, errors.Wrap(err, "parsing files")
			}
		default:
			if appKnownKeys[key] {
				continue
			}
			app.Sections[key] = value
		}
	}
	if app.Name == "" {
		return nil, errors.New("app description: name is required")
	}
	if app.Version == "" {
		return nil, errors.New("app description: version is required")
	}
	return app, nil
}

// appVersion accepts both "1.2.3" and a component list [1, 2, 3].
func appVersion(node *yaml.Node) (string, error) {
	if node.Kind == yaml.SequenceNode {
		var parts []int
		if err := node.Decode(&parts); err != nil {
			return "", errors.Wrap(err, "parsing version")
		}
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = strconv.Itoa(p)
		}
		return strings.Join(strs, "."), nil
	}
	return node.Value, nil
}

// AppIntegrator contributes one packager's view of an app: catalog
// dependencies and emitter records.
type AppIntegrator interface {
	// ScheduleDepBuilds ensures every locked dependency has a scheduled
	// build.
	ScheduleDepBuilds(context.Context) error
	ControlRecords(context.Context) ([]debpkg.Record, error)
	RulesRecords(context.Context) ([]debpkg.Record, error)
}

// AppBuilder builds an application package by composing per-packager
// integrators over the shared pipeline.
type AppBuilder struct {
	Base
	App         *App
	Integrators []AppIntegrator
}

// NewAppBuilder prepares an app build in the environment's temp dir.
func NewAppBuilder(env Env, app *App, integrators []AppIntegrator) *AppBuilder {
	b := &AppBuilder{
		Base: Base{
			Env:        env,
			Name:       app.Name,
			UploadKind: "app",
		},
		App:         app,
		Integrators: integrators,
	}
	b.PkgDir = filepath.Join(env.TmpDir, app.Name)
	b.OrigTar = filepath.Join(env.TmpDir,
		fmt.Sprintf("%s_%s.orig.tar.xz", app.Name, app.Version))
	return b
}

// ScheduleDepBuilds fans out to every integrator.
func (b *AppBuilder) ScheduleDepBuilds(ctx context.Context) error {
	for _, in := range b.Integrators {
		if err := in.ScheduleDepBuilds(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Generate produces the app's source package.
func (b *AppBuilder) Generate(ctx context.Context) error {
	if err := b.buildOrigTar(ctx); err != nil {
		return err
	}
	if err := b.ExtractOrigTar(ctx); err != nil {
		return err
	}
	if err := b.writeAppChangelog(); err != nil {
		return err
	}
	if err := b.genDebianTree(ctx); err != nil {
		return err
	}
	return b.CreateSourcePackage(ctx)
}

func (b *AppBuilder) buildOrigTar(ctx context.Context) error {
	if _, err := os.Stat(b.OrigTar); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(b.App.BaseDir, ".git", "HEAD")); err == nil {
		return b.archiveGitHead(ctx)
	}
	return b.Command(ctx, b.App.BaseDir, "tar",
		"--create",
		"--directory", b.App.BaseDir,
		"--xz",
		"--file", b.OrigTar,
		".")
}

// archiveGitHead streams git-archive output through an xz writer, packaging
// exactly the committed tree.
func (b *AppBuilder) archiveGitHead(ctx context.Context) error {
	f, err := os.Create(b.OrigTar)
	if err != nil {
		return errors.Wrap(err, "creating orig tar")
	}
	defer f.Close()
	xzw, err := xz.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "starting xz stream")
	}
	cmd := exec.CommandContext(ctx, "git", "archive", "--format=tar", "HEAD")
	cmd.Dir = b.App.BaseDir
	cmd.Stdout = xzw
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "running git archive")
	}
	return errors.Wrap(xzw.Close(), "closing xz stream")
}

// writeAppChangelog continues an existing changelog shipped with the app, or
// starts a fresh one. The produced version determines the package version.
func (b *AppBuilder) writeAppChangelog() error {
	path := filepath.Join(b.PkgDir, "debian", "changelog")
	var previous []byte
	version := b.App.Version + "-1"
	change := "Build with debler"
	if raw, err := os.ReadFile(path); err == nil {
		previous = raw
		latest, err := latestChangelogVersion(raw)
		if err != nil {
			return err
		}
		version, err = bumpDebianRevision(latest)
		if err != nil {
			return err
		}
		change = "Rebuild with newer debler"
	}
	b.Version = version
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating debian dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "writing changelog")
	}
	defer f.Close()
	entry := []debpkg.ChangelogEntry{{
		Version:      version,
		Distribution: b.Env.Config.Distribution,
		Change:       change,
		Date:         time.Now(),
	}}
	if err := debpkg.WriteChangelog(f, b.Name, b.Env.Config.Maintainer, entry); err != nil {
		return err
	}
	if len(previous) > 0 {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
		if _, err := f.Write(previous); err != nil {
			return err
		}
	}
	return nil
}

func latestChangelogVersion(raw []byte) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := scanner.Text()
		open := strings.Index(line, "(")
		end := strings.Index(line, ")")
		if open >= 0 && end > open {
			return line[open+1 : end], nil
		}
	}
	return "", errors.New("changelog has no version stanza")
}

func bumpDebianRevision(version string) (string, error) {
	i := strings.LastIndex(version, "-")
	if i < 0 {
		return "", errors.Errorf("version %q has no debian revision", version)
	}
	n, err := strconv.Atoi(version[i+1:])
	if err != nil {
		return "", errors.Wrapf(err, "version %q has no numeric revision", version)
	}
	return fmt.Sprintf("%s-%d", version[:i], n+1), nil
}

func (b *AppBuilder) genDebianTree(ctx context.Context) error {
	tree := debpkg.NewTree(b.App.Name)
	b.Tree = tree
	err := tree.Add(
		debpkg.SourceControl{Fields: []debpkg.Field{
			{Key: "source", Value: b.Name},
			{Key: "priority", Value: "optional"},
			{Key: "maintainer", Value: b.Env.Config.Maintainer},
			{Key: "homepage", Value: b.App.Homepage},
			{Key: "standards_version", Value: "3.9.6"},
		}},
		debpkg.BuildDependency{Dependency: "debhelper"},
		debpkg.Package{
			Name:         b.Name,
			Architecture: "all",
			Section:      "misc",
			Description:  b.App.Description,
		},
		debpkg.Dependency{Package: b.Name, Dependency: "${shlibs:Depends}"},
		debpkg.Dependency{Package: b.Name, Dependency: "${misc:Depends}"},
	)
	if err != nil {
		return err
	}
	for _, dir := range b.App.Dirs {
		if err := tree.Add(debpkg.InstallInto{
			Package: b.Name, Obj: dir, Dir: "usr/share/" + b.App.Name,
		}); err != nil {
			return err
		}
	}
	for _, file := range b.App.Files {
		if err := tree.Add(debpkg.InstallInto{
			Package: b.Name, Obj: file, Dir: "usr/share/" + b.App.Name,
		}); err != nil {
			return err
		}
	}
	for _, in := range b.Integrators {
		records, err := in.ControlRecords(ctx)
		if err != nil {
			return err
		}
		if err := tree.Add(records...); err != nil {
			return err
		}
		records, err = in.RulesRecords(ctx)
		if err != nil {
			return err
		}
		if err := tree.Add(records...); err != nil {
			return err
		}
	}
	return tree.Materialize(b.PkgDir)
}
