// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"testing"

	"github.com/debler/debler/pkg/constraint"
	"github.com/google/go-cmp/cmp"
)

// A trimmed-down metadata.yml as rubygems produces it, ruby type tags
// included.
const sampleMetadata = `--- !ruby/object:Gem::Specification
name: tzinfo
version: !ruby/object:Gem::Version
  version: 1.2.2
platform: ruby
authors:
- Philip Ross
bindir: bin
date: 2014-10-05 00:00:00.000000000 Z
dependencies:
- !ruby/object:Gem::Dependency
  name: thread_safe
  requirement: !ruby/object:Gem::Requirement
    requirements:
    - - "~>"
      - !ruby/object:Gem::Version
        version: 0.1.0
  type: :runtime
  prerelease: false
  version_requirements: !ruby/object:Gem::Requirement
    requirements:
    - - "~>"
      - !ruby/object:Gem::Version
        version: 0.1.0
- !ruby/object:Gem::Dependency
  name: minitest
  requirement: !ruby/object:Gem::Requirement
    requirements:
    - - ">="
      - !ruby/object:Gem::Version
        version: '4.8'
  type: :development
  prerelease: false
description: TZInfo provides daylight savings aware transformations.
email: phil.ross@gmail.com
extensions: []
homepage: http://tzinfo.github.io
licenses:
- MIT
require_paths:
- lib
summary: Daylight savings aware timezone library
`

func TestParseGemMetadata(t *testing.T) {
	m, err := parseGemMetadata([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("parseGemMetadata: %v", err)
	}
	want := &GemMetadata{
		Name:         "tzinfo",
		Version:      "1.2.2",
		Platform:     "ruby",
		Authors:      []string{"Philip Ross"},
		Email:        []string{"phil.ross@gmail.com"},
		Date:         "2014-10-05",
		Summary:      "Daylight savings aware timezone library",
		Description:  "TZInfo provides daylight savings aware transformations.",
		Homepage:     "http://tzinfo.github.io",
		Licenses:     []string{"MIT"},
		RequirePaths: []string{"lib"},
		Bindir:       "bin",
		Dependencies: []GemDependency{
			{
				Name:    "thread_safe",
				Runtime: true,
				Requirements: []constraint.Requirement{
					{Op: "~>", Version: "0.1.0"},
				},
			},
			{
				Name: "minitest",
				Requirements: []constraint.Requirement{
					{Op: ">=", Version: "4.8"},
				},
			},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGemMetadataExtensions(t *testing.T) {
	m, err := parseGemMetadata([]byte(`---
name: nokogiri
version:
  version: 1.7.1
extensions:
- ext/nokogiri/extconf.rb
require_paths:
- lib
`))
	if err != nil {
		t.Fatalf("parseGemMetadata: %v", err)
	}
	if diff := cmp.Diff([]string{"ext/nokogiri/extconf.rb"}, m.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGemMetadataIncomplete(t *testing.T) {
	if _, err := parseGemMetadata([]byte("--- {}\n")); err == nil {
		t.Error("expected error for metadata without name")
	}
}

func TestChooseRequire(t *testing.T) {
	for _, tc := range []struct {
		name  string
		gem   string
		files []string
		want  []string
	}{
		{
			name:  "exact match",
			gem:   "tzinfo",
			files: []string{"tzinfo", "tzinfo/data"},
			want:  []string{"tzinfo"},
		},
		{
			name:  "dashes to slashes",
			gem:   "net-http-persistent",
			files: []string{"net/http/persistent"},
			want:  []string{"net/http/persistent"},
		},
		{
			name:  "ambiguous keeps everything",
			gem:   "ffi",
			files: []string{"ffi_c", "ffi/platform"},
			want:  []string{"ffi_c", "ffi/platform"},
		},
		{
			name: "no files",
			gem:  "rake",
			want: nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, chooseRequire(tc.gem, tc.files)); diff != "" {
				t.Errorf("chooseRequire mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
