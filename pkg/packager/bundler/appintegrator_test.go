// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"testing"

	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/debpkg"
	"github.com/google/go-cmp/cmp"
)

func TestGemDependencyRecords(t *testing.T) {
	level2 := 2
	for _, tc := range []struct {
		name string
		gem  *Gem
		info *catalog.Package
		want []string
	}{
		{
			name: "unconstrained",
			gem:  &Gem{Name: "rack"},
			info: &catalog.Package{},
			want: []string{"debler-rubygem-rack-2.0"},
		},
		{
			name: "git pinned",
			gem:  &Gem{Name: "my_engine", Revision: "0f0f0f"},
			info: &catalog.Package{},
			want: []string{"debler-rubygem-my--engine-0f0f0f"},
		},
		{
			name: "exact becomes lower bound",
			gem:  &Gem{Name: "rack", Constraints: []string{"= 2.0.3"}},
			info: &catalog.Package{},
			want: []string{"debler-rubygem-rack-2.0 (>= 2.0.3)"},
		},
		{
			name: "bare version",
			gem:  &Gem{Name: "rack", Constraints: []string{"2.0.3"}},
			info: &catalog.Package{},
			want: []string{"debler-rubygem-rack-2.0 (>= 2.0.3)"},
		},
		{
			name: "pessimistic within slot",
			gem:  &Gem{Name: "rack", Constraints: []string{"~> 2.0"}},
			info: &catalog.Package{Config: catalog.PackageConfig{Level: &level2}},
			want: []string{"debler-rubygem-rack-2.0 (>= 2.0)"},
		},
		{
			name: "pessimistic at default level",
			gem:  &Gem{Name: "rack", Constraints: []string{"~> 2.0"}},
			info: &catalog.Package{},
			want: []string{
				"debler-rubygem-rack-2.0 (>= 2.0)",
				"debler-rubygem-rack-2.0 (<= 3.0)",
			},
		},
		{
			name: "pessimistic beyond slot",
			gem:  &Gem{Name: "rack", Constraints: []string{"~> 2.0.1"}},
			info: &catalog.Package{},
			want: []string{
				"debler-rubygem-rack-2.0 (>= 2.0.1)",
				"debler-rubygem-rack-2.0 (<= 2.1.0)",
			},
		},
		{
			name: "pessimistic within deeper slot",
			gem:  &Gem{Name: "rack", Constraints: []string{"~> 2.0.1"}},
			info: &catalog.Package{Config: catalog.PackageConfig{Level: &level2}},
			want: []string{
				"debler-rubygem-rack-2.0 (>= 2.0.1)",
				"debler-rubygem-rack-2.0 (<= 2.1.0)",
			},
		},
		{
			name: "upper bound only",
			gem:  &Gem{Name: "rack", Constraints: []string{"< 3.0"}},
			info: &catalog.Package{},
			want: []string{"debler-rubygem-rack-2.0 (< 3.0)"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			records, err := gemDependencyRecords("myapp", "debler-rubygem-rack-2.0", tc.gem, tc.info)
			if err != nil {
				t.Fatalf("gemDependencyRecords: %v", err)
			}
			var got []string
			for _, r := range records {
				dep, ok := r.(debpkg.Dependency)
				if !ok {
					t.Fatalf("unexpected record %#v", r)
				}
				if dep.Package != "myapp" {
					t.Errorf("record for package %q, want myapp", dep.Package)
				}
				got = append(got, dep.Dependency)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGemDependencyRecordsGitName(t *testing.T) {
	records, err := gemDependencyRecords("myapp", "ignored", &Gem{Name: "rack", Revision: "abc"}, &catalog.Package{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if got := records[0].(debpkg.Dependency).Dependency; got != "debler-rubygem-rack-abc" {
		t.Errorf("git dependency = %q", got)
	}
}

func TestPessimisticBound(t *testing.T) {
	for _, tc := range []struct {
		parts []string
		want  string
	}{
		{[]string{"2", "0", "1"}, "2.1.0"},
		{[]string{"1", "9"}, "2.0"},
		{[]string{"0", "14", "3"}, "0.15.0"},
	} {
		got, err := pessimisticBound(tc.parts)
		if err != nil {
			t.Errorf("pessimisticBound(%v): %v", tc.parts, err)
			continue
		}
		if got != tc.want {
			t.Errorf("pessimisticBound(%v) = %q, want %q", tc.parts, got, tc.want)
		}
	}
	if _, err := pessimisticBound([]string{"1", "0a", "0"}); err == nil {
		t.Error("expected error for non-numeric component")
	}
}

func TestSlottedName(t *testing.T) {
	if got := slottedName("rack", "2.0"); got != "rack-2.0" {
		t.Errorf("slottedName = %q", got)
	}
	if got := slottedName("rack", ""); got != "rack" {
		t.Errorf("slottedName of level-0 slot = %q", got)
	}
}

func TestFakeBundler(t *testing.T) {
	in := &AppIntegrator{
		gemfile: &Gemfile{Gems: map[string]*Gem{
			"rails": {Name: "rails", Envs: []string{"default"}, Require: true},
			"oj":    {Name: "oj", Envs: []string{"default"}, RequireAs: "oj_mimic_json"},
			"rspec-core": {
				Name:    "rspec-core",
				Envs:    []string{"development", "test"},
				Require: true,
			},
			"tzinfo": {Name: "tzinfo", Envs: []string{"default"}},
		}},
		metadatas: map[string]catalog.SlotMetadata{
			"rails": {Require: []string{"rails/all"}},
		},
	}
	want := `class Bundler
  def self.require(*groups)
    groups = groups.map(&:to_s)
    Kernel.require "oj_mimic_json"
    Kernel.require "rails/all"
    Kernel.require "rspec/core" unless (groups & ["development", "test"]).empty?
  end

  def self.setup(*args)
  end
  def self.with_clean_env
    yield
  end
end
`
	if diff := cmp.Diff(want, in.fakeBundler()); diff != "" {
		t.Errorf("fake bundler mismatch (-want +got):\n%s", diff)
	}
}
