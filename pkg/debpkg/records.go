// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package debpkg generates debian/ source trees from typed emitter records.
// Generators describe their contributions as records; the Tree collects them
// and materializes the on-disk layout in one deterministic pass.
package debpkg

import "strings"

// Record is one typed contribution to the generated package tree.
type Record interface {
	isRecord()
}

// Field is one control-stanza field. Keys use lowercase underscore form and
// are converted on output ("vcs_git" becomes "Vcs-Git").
type Field struct {
	Key   string
	Value string
}

// SourceControl merges fields into the source control stanza.
type SourceControl struct {
	Fields []Field
}

// BuildDependency appends to the source stanza's Build-Depends.
type BuildDependency struct {
	Dependency string
}

// Package opens a new binary-package stanza.
type Package struct {
	Name         string
	Architecture string
	Section      string
	Description  string
}

// Dependency appends to a binary package's Depends.
type Dependency struct {
	Package    string
	Dependency string
}

// Provide appends to a binary package's Provides.
type Provide struct {
	Package string
	Provide string
}

// Symlink records a link in the package's .links manifest.
type Symlink struct {
	Package string
	Dest    string
	Src     string
}

// Install records a renaming file install ("obj => dest").
type Install struct {
	Package string
	Obj     string
	Dest    string
}

// InstallInto records a file install into a directory. Objects containing
// spaces cannot pass through dh-exec (Debian bugs #198507, #867866) and are
// copied by an install override rule instead.
type InstallInto struct {
	Package string
	Obj     string
	Dir     string
}

// InstallContent writes debian/<name> with the given content and mode, then
// installs it to dest.
type InstallContent struct {
	Package string
	Name    string
	Dest    string
	Content string
	Mode    uint32
}

// DebianContent writes an auxiliary debian/<name> (maintainer script, library
// shim) that is not installed directly.
type DebianContent struct {
	Name    string
	Content string
	Mode    uint32
}

// RuleOverride emits an empty override_dh_auto_<target> block.
type RuleOverride struct {
	Target string
}

// RuleAction appends a command to an override_dh_auto_<target> block.
type RuleAction struct {
	Target string
	Cmd    string
}

// FastBuild signals whether a native in-host build suffices. The signal is
// conjunctive: one false from any generator forces the hermetic path.
type FastBuild struct {
	Possible bool
}

func (SourceControl) isRecord()   {}
func (BuildDependency) isRecord() {}
func (Package) isRecord()         {}
func (Dependency) isRecord()      {}
func (Provide) isRecord()         {}
func (Symlink) isRecord()         {}
func (Install) isRecord()         {}
func (InstallInto) isRecord()     {}
func (InstallContent) isRecord()  {}
func (DebianContent) isRecord()   {}
func (RuleOverride) isRecord()    {}
func (RuleAction) isRecord()      {}
func (FastBuild) isRecord()       {}

// fieldName converts a lowercase underscore key to its control-file form.
func fieldName(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}

// NormalizeDescription converts free-form description text to the control
// continuation format: blank lines become ".", every continuation line is
// indented by one space.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n\n", "\n.\n")
	return strings.ReplaceAll(s, "\n", "\n ")
}

// Sanitize maps an upstream name to its OS package name component:
// lowercased, with underscores doubled into dashes.
func Sanitize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "--")
}
