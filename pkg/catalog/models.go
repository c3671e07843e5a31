// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the package-state store: packagers, packages,
// slots, versions and build revisions, backed by postgres.
package catalog

import (
	"strings"
	"time"

	"github.com/debler/debler/pkg/version"
)

// Build results. A null result means the revision is pending.
const (
	ResultFinished = "finished"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
)

// PackagerConfig is the per-packager options record.
type PackagerConfig struct {
	// Rubies lists interpreter series for packagers that build per-interpreter
	// binary packages.
	Rubies []string `json:"rubies,omitempty"`
	// Registry overrides the upstream registry base URL.
	Registry string `json:"registry,omitempty"`
	// APIKey authenticates update webhooks; empty disables the check.
	APIKey string `json:"apikey,omitempty"`
	// Webhook enables the update-trigger endpoint for this packager.
	Webhook bool `json:"webhook,omitempty"`
	// Hook is an optional command run after a webhook scheduled a build, with
	// {gem}, {slot} and {version} substituted in its arguments.
	Hook []string `json:"hook,omitempty"`
}

// Packager is a registered plugin kind.
type Packager struct {
	ID      int64
	Name    string
	Config  PackagerConfig
	Enabled bool
}

// PackageConfig is the recognized package configuration mapping.
type PackageConfig struct {
	// Level is the width of the slot key; nil means the packager default.
	Level *int `json:"level,omitempty"`
	// Native is three-valued: nil means not yet determined.
	Native    *bool    `json:"native,omitempty"`
	ExtraDirs []string `json:"extra_dirs,omitempty"`
	SoSubdir  string   `json:"so_subdir,omitempty"`
	BuildDeps []string `json:"builddeps,omitempty"`
	RunDeps   []string `json:"rundeps,omitempty"`
	SkipExts  []string `json:"skip_exts,omitempty"`
	ExtArgs   []string `json:"ext_args,omitempty"`
	// BuildGem marks a dependency satisfied at build time only; Ignore drops
	// it entirely.
	BuildGem bool `json:"buildgem,omitempty"`
	Ignore   bool `json:"ignore,omitempty"`
}

// LevelOr returns the configured slot level or the given default.
func (c PackageConfig) LevelOr(def int) int {
	if c.Level != nil {
		return *c.Level
	}
	return def
}

// SlotMetadata is harvested from the last successful build of a slot.
type SlotMetadata struct {
	RequirePaths []string `json:"require_paths,omitempty"`
	Binaries     []string `json:"binaries,omitempty"`
	Require      []string `json:"require,omitempty"`
}

// SlotConfig is slot-level configuration, currently free-form.
type SlotConfig map[string]any

// Slot is a prefix-defined version lane of a package.
type Slot struct {
	ID        int64
	PackageID int64
	// Key is the leading components of in-slot versions, empty for level 0.
	Key      string
	Config   SlotConfig
	Metadata SlotMetadata
}

// Covers reports whether the version belongs to this slot, that is whether
// the slot key is a component-wise prefix of the version.
func (s Slot) Covers(v string) bool {
	if s.Key == "" {
		return true
	}
	keyParts := strings.Split(s.Key, ".")
	parts := strings.Split(v, ".")
	if len(parts) < len(keyParts) {
		return false
	}
	for i, kp := range keyParts {
		if parts[i] != kp {
			return false
		}
	}
	return true
}

// Package is one tracked upstream module with its slots loaded.
type Package struct {
	ID         int64
	PackagerID int64
	// Name is the upstream name; DebName the derived OS package name.
	Name    string
	DebName string
	Config  PackageConfig
	// Slots are ordered ascending by key.
	Slots []Slot
}

// SlotFor finds the slot covering the version.
func (p *Package) SlotFor(v string) (*Slot, bool) {
	for i := range p.Slots {
		if p.Slots[i].Covers(v) {
			return &p.Slots[i], true
		}
	}
	return nil, false
}

// SlotKeyFor derives the slot key a version would get at the given default
// level.
func (p *Package) SlotKeyFor(v string, defaultLevel int) string {
	level := p.Config.LevelOr(defaultLevel)
	if level <= 0 {
		return ""
	}
	parts := strings.Split(v, ".")
	if level > len(parts) {
		level = len(parts)
	}
	return strings.Join(parts[:level], ".")
}

// VersionConfig is the per-version configuration, populated for git-sourced
// versions.
type VersionConfig struct {
	Repository string `json:"repository,omitempty"`
	Revision   string `json:"revision,omitempty"`
}

// Version is a concrete upstream release inside a slot.
type Version struct {
	ID        int64
	SlotID    int64
	Version   string
	Config    VersionConfig
	Populated bool
	CreatedAt time.Time
}

// Revision is one scheduled build attempt of a version for a distribution.
type Revision struct {
	ID             int64
	VersionID      int64
	DistributionID int64
	// Version is the revision-version, e.g. "1.2.3-1".
	Version     string
	ScheduledAt time.Time
	Changelog   string
	Builder     string
	BuiltAt     time.Time
	// Result is empty while the revision is pending.
	Result string
}

// Suffix returns the numeric revision suffix of a revision-version.
func (r Revision) Suffix() int {
	_, n := splitRevisionVersion(r.Version)
	return n
}

// BuildData is the joined record a builder needs for one revision.
type BuildData struct {
	Revision      Revision
	Distribution  string
	UpstreamVer   Version
	Slot          Slot
	Package       Package
	PackagerName  string
	Packager      PackagerConfig
	Format        []int64
	ChangelogTail []ChangelogEntry
}

// ChangelogEntry is one stitched changelog stanza source.
type ChangelogEntry struct {
	Version      string
	ScheduledAt  time.Time
	Changelog    string
	Distribution string
}

// sortSlots orders slots ascending by key, the order PackageInfo guarantees.
func sortSlots(slots []Slot) {
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && version.CompareDotted(slots[j].Key, slots[j-1].Key) < 0; j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}
}

func splitRevisionVersion(rv string) (upstream string, suffix int) {
	i := strings.LastIndex(rv, "-")
	if i < 0 {
		return rv, 0
	}
	n := 0
	for _, r := range rv[i+1:] {
		if r < '0' || r > '9' {
			return rv, 0
		}
		n = n*10 + int(r-'0')
	}
	return rv[:i], n
}
