// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package debpkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type binaryPackage struct {
	name     string
	fields   []Field
	depends  []string
	provides []string
	installs []string
	links    [][2]string
}

type auxFile struct {
	name    string
	content string
	mode    uint32
}

// Tree collects emitter records and materializes a debian/ directory.
type Tree struct {
	// UpstreamName goes into the copyright file.
	UpstreamName string

	source    []Field
	buildDeps []string
	packages  []*binaryPackage
	byName    map[string]*binaryPackage
	ruleOrder []string
	rules     map[string][]string
	aux       []auxFile
	fast      *bool
}

// NewTree returns an empty tree for the given upstream name.
func NewTree(upstreamName string) *Tree {
	return &Tree{
		UpstreamName: upstreamName,
		byName:       make(map[string]*binaryPackage),
		rules:        make(map[string][]string),
	}
}

// Add applies records in order. Records referencing an undeclared binary
// package fail loudly.
func (t *Tree) Add(records ...Record) error {
	for _, r := range records {
		if err := t.add(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) add(r Record) error {
	switch r := r.(type) {
	case SourceControl:
		for _, f := range r.Fields {
			t.setSourceField(f)
		}
	case BuildDependency:
		t.buildDeps = append(t.buildDeps, r.Dependency)
	case Package:
		if _, ok := t.byName[r.Name]; ok {
			return errors.Errorf("binary package %s declared twice", r.Name)
		}
		p := &binaryPackage{
			name: r.Name,
			fields: []Field{
				{"package", r.Name},
				{"architecture", r.Architecture},
				{"section", r.Section},
				{"description", r.Description},
			},
		}
		t.packages = append(t.packages, p)
		t.byName[r.Name] = p
	case Dependency:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		p.depends = append(p.depends, r.Dependency)
	case Provide:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		p.provides = append(p.provides, r.Provide)
	case Symlink:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		p.links = append(p.links, [2]string{r.Dest, r.Src})
	case Install:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		p.installs = append(p.installs, fmt.Sprintf("%s => %s", r.Obj, r.Dest))
	case InstallInto:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		if !strings.Contains(r.Obj, " ") {
			p.installs = append(p.installs, fmt.Sprintf("%s %s/", r.Obj, r.Dir))
		} else {
			t.addRule("install", fmt.Sprintf(
				`mkdir -p "debian/%s/%s" &&  cp "%s" "debian/%s/%s"`,
				r.Package, r.Dir, r.Obj, r.Package, r.Dir))
		}
	case InstallContent:
		p, err := t.lookup(r.Package, r)
		if err != nil {
			return err
		}
		t.aux = append(t.aux, auxFile{r.Name, r.Content, r.Mode})
		p.installs = append(p.installs, fmt.Sprintf("debian/%s %s", r.Name, r.Dest))
	case DebianContent:
		t.aux = append(t.aux, auxFile{r.Name, r.Content, r.Mode})
	case RuleOverride:
		t.ensureRule(r.Target)
	case RuleAction:
		t.addRule(r.Target, r.Cmd)
	case FastBuild:
		if t.fast == nil {
			possible := r.Possible
			t.fast = &possible
		} else {
			*t.fast = *t.fast && r.Possible
		}
	default:
		return errors.Errorf("unexpected record %#v", r)
	}
	return nil
}

func (t *Tree) setSourceField(f Field) {
	for i := range t.source {
		if t.source[i].Key == f.Key {
			t.source[i].Value = f.Value
			return
		}
	}
	t.source = append(t.source, f)
}

func (t *Tree) lookup(name string, r Record) (*binaryPackage, error) {
	p, ok := t.byName[name]
	if !ok {
		return nil, errors.Errorf("record %#v references undeclared package %s", r, name)
	}
	return p, nil
}

func (t *Tree) ensureRule(target string) {
	if _, ok := t.rules[target]; !ok {
		t.ruleOrder = append(t.ruleOrder, target)
		t.rules[target] = nil
	}
}

func (t *Tree) addRule(target, cmd string) {
	t.ensureRule(target)
	t.rules[target] = append(t.rules[target], cmd)
}

// FastBuildPossible reports the aggregated fast-build signal; without any
// signal the hermetic path is used.
func (t *Tree) FastBuildPossible() bool {
	return t.fast != nil && *t.fast
}

// Control renders the control file: source stanza first, then binary stanzas
// in declaration order.
func (t *Tree) Control() string {
	var b strings.Builder
	for _, f := range t.source {
		writeField(&b, f)
	}
	buildDeps := t.buildDeps
	if len(t.packages) > 0 {
		buildDeps = append(append([]string(nil), buildDeps...), "dh-exec")
	}
	writeField(&b, Field{"build_depends", strings.Join(buildDeps, ", ")})
	for _, p := range t.packages {
		b.WriteString("\n")
		for _, f := range p.fields {
			writeField(&b, f)
		}
		if len(p.depends) > 0 {
			writeField(&b, Field{"depends", strings.Join(p.depends, ", ")})
		}
		if len(p.provides) > 0 {
			writeField(&b, Field{"provides", strings.Join(p.provides, ", ")})
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, f Field) {
	value := f.Value
	if f.Key == "description" {
		value = NormalizeDescription(value)
	}
	fmt.Fprintf(b, "%s: %s\n", fieldName(f.Key), value)
}

// Rules renders the debhelper rules file with the collected overrides.
func (t *Tree) Rules() string {
	var b strings.Builder
	b.WriteString("#!/usr/bin/make -f\n%:\n\tdh $@\n")
	for _, target := range t.ruleOrder {
		fmt.Fprintf(&b, "\noverride_dh_auto_%s:\n\t", target)
		b.WriteString(strings.Join(t.rules[target], "\n\t"))
		b.WriteString("\n")
	}
	return b.String()
}

// Materialize writes the debian/ directory under pkgDir. The changelog is
// written separately by the builder.
func (t *Tree) Materialize(pkgDir string) error {
	debian := func(parts ...string) string {
		return filepath.Join(append([]string{pkgDir, "debian"}, parts...)...)
	}
	if err := os.MkdirAll(debian("source"), 0o755); err != nil {
		return errors.Wrap(err, "creating debian dir")
	}
	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{debian("source", "format"), "3.0 (quilt)\n", 0o644},
		{debian("compat"), "9\n", 0o644},
		{debian("copyright"), t.copyright(), 0o644},
		{debian("control"), t.Control(), 0o644},
		{debian("rules"), t.Rules(), 0o755},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, []byte(f.content), f.mode); err != nil {
			return errors.Wrapf(err, "writing %s", f.path)
		}
	}
	for _, a := range t.aux {
		path := debian(filepath.FromSlash(a.name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
		if err := os.WriteFile(path, []byte(a.content), os.FileMode(a.mode)); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	for _, p := range t.packages {
		install := "#!/usr/bin/dh-exec\n" + strings.Join(p.installs, "\n") + "\n"
		if err := os.WriteFile(debian(p.name+".install"), []byte(install), 0o755); err != nil {
			return errors.Wrapf(err, "writing installs of %s", p.name)
		}
		if len(p.links) == 0 {
			continue
		}
		var b strings.Builder
		for _, l := range p.links {
			fmt.Fprintf(&b, "%s %s\n", l[0], l[1])
		}
		if err := os.WriteFile(debian(p.name+".links"), []byte(b.String()), 0o644); err != nil {
			return errors.Wrapf(err, "writing links of %s", p.name)
		}
	}
	return nil
}

func (t *Tree) copyright() string {
	return fmt.Sprintf(`Format: http://dep.debian.net/deps/dep5
Upstream-Name: %s

Files: debian/*
Copyright: 2016-2025 Debler Project
Licence: See LICENCE file
  [LICENCE TEXT]
`, t.UpstreamName)
}
