// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package debpkg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestControl(t *testing.T) {
	tree := NewTree("foo")
	err := tree.Add(
		SourceControl{Fields: []Field{
			{"source", "debler-rubygem-foo"},
			{"priority", "optional"},
			{"maintainer", "Debler <debler@example.org>"},
			{"standards_version", "3.9.6"},
		}},
		BuildDependency{"debhelper (>= 9)"},
		Package{Name: "debler-rubygem-foo-1.2", Architecture: "all", Section: "ruby",
			Description: "foo gem\n\nRepackaged for debler"},
		Dependency{"debler-rubygem-foo-1.2", "ruby"},
		Dependency{"debler-rubygem-foo-1.2", "debler-rubygem-bar-2.0"},
		Provide{"debler-rubygem-foo-1.2", "debler-rubygem-foo"},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := `Source: debler-rubygem-foo
Priority: optional
Maintainer: Debler <debler@example.org>
Standards-Version: 3.9.6
Build-Depends: debhelper (>= 9), dh-exec

Package: debler-rubygem-foo-1.2
Architecture: all
Section: ruby
Description: foo gem
 .
 Repackaged for debler
Depends: ruby, debler-rubygem-bar-2.0
Provides: debler-rubygem-foo
`
	if diff := cmp.Diff(want, tree.Control()); diff != "" {
		t.Errorf("Control() diff (-want +got):\n%s", diff)
	}
}

func TestRules(t *testing.T) {
	tree := NewTree("foo")
	err := tree.Add(
		RuleOverride{"test"},
		RuleAction{"build", "echo one"},
		RuleAction{"build", "echo two"},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := "#!/usr/bin/make -f\n%:\n\tdh $@\n" +
		"\noverride_dh_auto_test:\n\t\n" +
		"\noverride_dh_auto_build:\n\techo one\n\techo two\n"
	if diff := cmp.Diff(want, tree.Rules()); diff != "" {
		t.Errorf("Rules() diff (-want +got):\n%s", diff)
	}
}

func TestFastBuildAggregation(t *testing.T) {
	tree := NewTree("foo")
	if tree.FastBuildPossible() {
		t.Error("FastBuildPossible() without signal = true, want false")
	}
	if err := tree.Add(FastBuild{true}, FastBuild{false}, FastBuild{true}); err != nil {
		t.Fatal(err)
	}
	if tree.FastBuildPossible() {
		t.Error("FastBuildPossible() after a false signal = true, want false")
	}
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	tree := NewTree("foo")
	err := tree.Add(
		SourceControl{Fields: []Field{{"source", "debler-rubygem-foo"}}},
		Package{Name: "debler-rubygem-foo-1.2", Architecture: "all", Section: "ruby", Description: "foo"},
		InstallInto{"debler-rubygem-foo-1.2", "lib/foo.rb", "usr/share/foo"},
		InstallInto{"debler-rubygem-foo-1.2", "lib/with space.rb", "usr/share/foo"},
		Install{"debler-rubygem-foo-1.2", "bin/foo", "usr/bin/foo-1.2"},
		Symlink{"debler-rubygem-foo-1.2", "usr/bin/foo-1.2", "usr/bin/foo"},
		InstallContent{"debler-rubygem-foo-1.2", "foo.sh", "usr/share/foo", "#!/bin/sh\n", 0o755},
		DebianContent{"hooks/postinst", "#!/bin/sh\n", 0o755},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Materialize(dir); err != nil {
		t.Fatal(err)
	}

	read := func(parts ...string) string {
		t.Helper()
		raw, err := os.ReadFile(filepath.Join(append([]string{dir, "debian"}, parts...)...))
		if err != nil {
			t.Fatal(err)
		}
		return string(raw)
	}
	if got := read("source", "format"); got != "3.0 (quilt)\n" {
		t.Errorf("source/format = %q", got)
	}
	if got := read("compat"); got != "9\n" {
		t.Errorf("compat = %q", got)
	}
	install := read("debler-rubygem-foo-1.2.install")
	wantInstall := "#!/usr/bin/dh-exec\n" +
		"lib/foo.rb usr/share/foo/\n" +
		"bin/foo => usr/bin/foo-1.2\n" +
		"debian/foo.sh usr/share/foo\n"
	if diff := cmp.Diff(wantInstall, install); diff != "" {
		t.Errorf("install manifest diff (-want +got):\n%s", diff)
	}
	if got := read("debler-rubygem-foo-1.2.links"); got != "usr/bin/foo-1.2 usr/bin/foo\n" {
		t.Errorf("links = %q", got)
	}
	// The spaced object must fall back to a cp rule instead of dh-exec.
	rules := read("rules")
	if !strings.Contains(rules, "override_dh_auto_install:") ||
		!strings.Contains(rules, `cp "lib/with space.rb"`) {
		t.Errorf("rules missing install override:\n%s", rules)
	}
	if got := read("hooks", "postinst"); got != "#!/bin/sh\n" {
		t.Errorf("aux file = %q", got)
	}
	if !strings.Contains(read("copyright"), "Upstream-Name: foo") {
		t.Errorf("copyright missing upstream name")
	}
}

func TestAddRejectsUnknownPackage(t *testing.T) {
	tree := NewTree("foo")
	if err := tree.Add(Dependency{"nope", "ruby"}); err == nil {
		t.Error("expected error for dependency on undeclared package")
	}
}

func TestNormalizeDescription(t *testing.T) {
	in := "  Lead line\n\nSecond paragraph\nwrapped  "
	want := "Lead line\n .\n Second paragraph\n wrapped"
	if got := NormalizeDescription(in); got != want {
		t.Errorf("NormalizeDescription = %q, want %q", got, want)
	}
}

func TestSanitize(t *testing.T) {
	testCases := map[string]string{
		"Foo_Bar": "foo--bar",
		"rails":   "rails",
	}
	for in, want := range testCases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
