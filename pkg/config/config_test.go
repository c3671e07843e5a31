// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	raw := []byte(`
database: postgres:///debler
appdir: /srv/debler/apps
gemdir: /srv/debler/gems
keyid: 0xdeadbeef
maintainer: Debler Automatic Rubygems Packager <debler@example.org>
rubies:
  - 2.3
  - "2.4"
gem_format: [1, 4]
package_uploads:
  gem: debler-gems
  app: debler-apps
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.KeyID.String() != "0xdeadbeef" {
		t.Errorf("KeyID = %q, want %q", cfg.KeyID, "0xdeadbeef")
	}
	if diff := cmp.Diff([]string{"2.3", "2.4"}, cfg.RubyStrings()); diff != "" {
		t.Errorf("RubyStrings diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 4}, cfg.GemFormat); diff != "" {
		t.Errorf("GemFormat diff (-want +got):\n%s", diff)
	}
	if got := cfg.Distribution; got != "unstable" {
		t.Errorf("Distribution = %q, want default %q", got, "unstable")
	}
	if got := cfg.UploadTarget("gem"); got != "debler-gems" {
		t.Errorf("UploadTarget(gem) = %q, want %q", got, "debler-gems")
	}
	if got := cfg.UploadTarget("npm"); got != "" {
		t.Errorf("UploadTarget(npm) = %q, want empty", got)
	}
}

func TestParseRequiresDatabase(t *testing.T) {
	if _, err := Parse([]byte("maintainer: nobody\n")); err == nil {
		t.Error("expected error for missing database")
	}
}
