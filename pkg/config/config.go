// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the debler configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Uploads names the dput targets per artifact kind.
type Uploads struct {
	Gem string `yaml:"gem"`
	App string `yaml:"app"`
	NPM string `yaml:"npm"`
}

// Config is the operator configuration, conventionally ~/.debler.yml.
type Config struct {
	// Database is the postgres connection string of the catalog.
	Database string `yaml:"database"`
	// AppDir, GemDir and NPMDir hold app descriptions and built artifacts.
	AppDir string `yaml:"appdir"`
	GemDir string `yaml:"gemdir"`
	NPMDir string `yaml:"npmdir"`
	// KeyID selects the GnuPG key used for signing.
	KeyID KeyID `yaml:"keyid"`
	// Maintainer goes into the generated changelog and control stanzas.
	Maintainer string `yaml:"maintainer"`
	// Rubies lists the interpreter series packages are built against.
	Rubies []Decimal `yaml:"rubies"`
	// GemFormat versions the gem packaging layout; bumping it schedules
	// rebuilds of everything built with an older layout.
	GemFormat []int `yaml:"gem_format"`
	// Distribution is the default target distribution for new builds.
	Distribution   string  `yaml:"distribution"`
	PackageUploads Uploads `yaml:"package_uploads"`
	// RubygemsBase overrides the gem registry endpoint.
	RubygemsBase string `yaml:"rubygems"`
}

// KeyID is a GnuPG key id. YAML authors tend to write it as a bare hex
// integer, which must round-trip back to its hex form.
type KeyID string

func (k *KeyID) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		*k = KeyID(v)
	case int:
		*k = KeyID(fmt.Sprintf("%#x", v))
	default:
		return errors.Errorf("keyid must be a string or integer, got %T", v)
	}
	return nil
}

func (k KeyID) String() string { return string(k) }

// Decimal is a dotted series like "2.3". Unquoted YAML parses it as a float,
// so it decodes through the scalar's source text.
type Decimal string

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("expected scalar, got %v", node.Kind)
	}
	*d = Decimal(node.Value)
	return nil
}

func (d Decimal) String() string { return string(d) }

// Path returns the default configuration file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "locating home directory")
	}
	return filepath.Join(home, ".debler.yml"), nil
}

// Load reads and validates the configuration at path; an empty path means the
// default location.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(raw)
}

// Parse decodes a configuration document.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{Distribution: "unstable"}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if cfg.Database == "" {
		return nil, errors.New("config: database is required")
	}
	return cfg, nil
}

// RubyStrings returns the configured interpreter series as plain strings.
func (c *Config) RubyStrings() []string {
	out := make([]string, len(c.Rubies))
	for i, r := range c.Rubies {
		out[i] = r.String()
	}
	return out
}

// UploadTarget returns the dput target for an artifact kind, or empty when
// uploads are not configured.
func (c *Config) UploadTarget(kind string) string {
	switch kind {
	case "gem":
		return c.PackageUploads.Gem
	case "app":
		return c.PackageUploads.App
	case "npm":
		return c.PackageUploads.NPM
	default:
		return ""
	}
}
