// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package yarn

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// PackageJSON is the subset of a package.json manifest the builder needs.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Private         bool              `json:"private"`
	Homepage        string            `json:"homepage"`
	License         string            `json:"license"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// LoadPackageJSON reads a manifest from disk.
func LoadPackageJSON(path string) (*PackageJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ParsePackageJSON(raw)
}

// ParsePackageJSON parses a manifest document.
func ParsePackageJSON(raw []byte) (*PackageJSON, error) {
	var m PackageJSON
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "parsing package.json")
	}
	return &m, nil
}
