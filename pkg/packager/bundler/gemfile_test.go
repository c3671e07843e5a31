// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeGemfile(t *testing.T, gemfile, lockfile string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "Gemfile")
	if err := os.WriteFile(path, []byte(gemfile), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".lock", []byte(lockfile), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const basicLock = `GEM
  remote: https://rubygems.org/
  specs:
    rack (2.0.3)
    rails (5.0.2)
      rack (~> 2.0)
    tzinfo (1.2.2)

PLATFORMS
  ruby

DEPENDENCIES
  rails (= 5.0.2)
  tzinfo

BUNDLED WITH
   1.14.6
`

func TestParseGemfile(t *testing.T) {
	path := writeGemfile(t, `source 'https://rubygems.org'
ruby '2.3.3'

# the framework
gem 'rails', '= 5.0.2'
gem 'tzinfo', require: false

group :development, :test do
  gem 'rack', '~> 2.0'
end
`, basicLock)
	g, err := ParseGemfile(path, nil)
	if err != nil {
		t.Fatalf("ParseGemfile: %v", err)
	}
	if g.Source != "https://rubygems.org" {
		t.Errorf("Source = %q", g.Source)
	}
	if g.Remote != "https://rubygems.org/" {
		t.Errorf("Remote = %q", g.Remote)
	}
	if diff := cmp.Diff([]string{"rack", "rails", "tzinfo"}, g.SortedNames()); diff != "" {
		t.Errorf("gems mismatch (-want +got):\n%s", diff)
	}
	rails := g.Gems["rails"]
	if rails.Version != "5.0.2" {
		t.Errorf("rails.Version = %q", rails.Version)
	}
	if diff := cmp.Diff([]string{"= 5.0.2"}, rails.Constraints); diff != "" {
		t.Errorf("rails constraints mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"rack": "~> 2.0"}, rails.Deps); diff != "" {
		t.Errorf("rails deps mismatch (-want +got):\n%s", diff)
	}
	if tz := g.Gems["tzinfo"]; tz.Require {
		t.Error("tzinfo should not be required")
	}
	rack := g.Gems["rack"]
	if diff := cmp.Diff([]string{"development", "test"}, rack.Envs); diff != "" {
		t.Errorf("rack envs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"= 5.0.2"}, g.Dependencies["rails"]); diff != "" {
		t.Errorf("declared dependency mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGemfileExpressions(t *testing.T) {
	t.Setenv("DEBLER_TEST_RAILS", "5.0.2")
	path := writeGemfile(t, `rails_version = ENV['DEBLER_TEST_RAILS']
gem 'rails', rails_version ? rails_version : '4.2.0'
gem 'oj', :require => 'oj_mimic_json'
`, `GEM
  remote: https://rubygems.org/
  specs:
    oj (2.18.1)
    rails (5.0.2)

PLATFORMS
  ruby

DEPENDENCIES
  oj
  rails
`)
	g, err := ParseGemfile(path, nil)
	if err != nil {
		t.Fatalf("ParseGemfile: %v", err)
	}
	if diff := cmp.Diff([]string{"5.0.2"}, g.Gems["rails"].Constraints); diff != "" {
		t.Errorf("ternary constraint mismatch (-want +got):\n%s", diff)
	}
	if got := g.Gems["oj"].RequireAs; got != "oj_mimic_json" {
		t.Errorf("oj RequireAs = %q", got)
	}
}

func TestParseGemfileGitSource(t *testing.T) {
	path := writeGemfile(t, `source 'https://rubygems.org'
gem 'my_engine', git: 'https://example.org/my_engine.git'
`, `GIT
  remote: https://example.org/my_engine.git
  revision: 0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f
  specs:
    my_engine (0.3.0)

GEM
  remote: https://rubygems.org/
  specs:

PLATFORMS
  ruby

DEPENDENCIES
  my_engine!
`)
	g, err := ParseGemfile(path, nil)
	if err != nil {
		t.Fatalf("ParseGemfile: %v", err)
	}
	engine := g.Gems["my_engine"]
	if engine.Remote != "https://example.org/my_engine.git" {
		t.Errorf("Remote = %q", engine.Remote)
	}
	if engine.Revision != "0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f" {
		t.Errorf("Revision = %q", engine.Revision)
	}
	if _, declared := g.Dependencies["my_engine"]; declared {
		t.Error("pinned dependency should not be recorded as a registry dependency")
	}
}

func TestParseGemfileIgnore(t *testing.T) {
	path := writeGemfile(t, `gem 'rails'
gem 'debugger'
`, `GEM
  remote: https://rubygems.org/
  specs:
    bundler (1.14.6)
    debugger (1.6.8)
    rails (5.0.2)

PLATFORMS
  ruby

DEPENDENCIES
  debugger
  rails
`)
	g, err := ParseGemfile(path, []string{"debugger"})
	if err != nil {
		t.Fatalf("ParseGemfile: %v", err)
	}
	if diff := cmp.Diff([]string{"rails"}, g.SortedNames()); diff != "" {
		t.Errorf("gems mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGemfileJavaPlatformSkipped(t *testing.T) {
	path := writeGemfile(t, "gem 'nokogiri'\n", `GEM
  remote: https://rubygems.org/
  specs:
    nokogiri (1.7.1)
    nokogiri (1.7.1-java)

PLATFORMS
  ruby
  java

DEPENDENCIES
  nokogiri
`)
	g, err := ParseGemfile(path, nil)
	if err != nil {
		t.Fatalf("ParseGemfile: %v", err)
	}
	if got := g.Gems["nokogiri"].Version; got != "1.7.1" {
		t.Errorf("nokogiri version = %q, want the ruby platform one", got)
	}
}

func TestParseGemfileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		gemfile  string
		lockfile string
	}{
		{
			name:     "unsupported construct",
			gemfile:  "eval_gemfile 'Gemfile.local'\n",
			lockfile: basicLock,
		},
		{
			name:     "unclosed group",
			gemfile:  "group :test do\ngem 'rack'\n",
			lockfile: basicLock,
		},
		{
			name:     "unknown lock section",
			gemfile:  "gem 'rack'\n",
			lockfile: "CHECKSUMS\n  something\n",
		},
		{
			name:     "unsupported platform",
			gemfile:  "gem 'rack'\n",
			lockfile: "PLATFORMS\n  mswin32\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeGemfile(t, tc.gemfile, tc.lockfile)
			if _, err := ParseGemfile(path, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
