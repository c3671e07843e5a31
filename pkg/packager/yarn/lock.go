// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package yarn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrScopedPackage is returned for lockfiles containing scoped packages
// (@scope/name); their on-disk layout is not supported yet.
type ErrScopedPackage struct {
	Name string
}

func (e *ErrScopedPackage) Error() string {
	return fmt.Sprintf("scoped package %s is not supported", e.Name)
}

// LockedPackage is one resolved entry of a yarn lockfile.
type LockedPackage struct {
	Name string
	// Constraints are the declared requirements this entry satisfies.
	Constraints []string
	Version     string
	Resolved    string
	// Dependencies maps the entry's own dependencies to their constraints.
	Dependencies map[string]string
}

// ParseLock parses a v1 yarn lockfile.
func ParseLock(content string) ([]LockedPackage, error) {
	marker := "# yarn lockfile v1"
	start := strings.Index(content, marker)
	if start < 0 {
		return nil, errors.New("not a v1 yarn lockfile")
	}
	var pkgs []LockedPackage
	for _, block := range strings.Split(strings.TrimSpace(content[start+len(marker):]), "\n\n") {
		pkg, err := parseLockEntry(block)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, *pkg)
	}
	if len(pkgs) == 0 {
		return nil, errors.New("empty yarn lockfile")
	}
	return pkgs, nil
}

func parseLockEntry(block string) (*LockedPackage, error) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	head := lines[0]
	if !strings.HasSuffix(head, ":") {
		return nil, errors.Errorf("malformed lock entry %q", head)
	}
	pkg := &LockedPackage{Dependencies: make(map[string]string)}
	for _, part := range strings.Split(strings.TrimSuffix(head, ":"), ", ") {
		part = unquote(part)
		at := strings.LastIndex(part, "@")
		if at <= 0 {
			return nil, errors.Errorf("malformed selector %q", part)
		}
		name, c := part[:at], part[at+1:]
		if pkg.Name == "" {
			pkg.Name = name
		} else if name != pkg.Name {
			return nil, errors.Errorf("lock entry mixes %s and %s", pkg.Name, name)
		}
		pkg.Constraints = append(pkg.Constraints, c)
	}
	if strings.HasPrefix(pkg.Name, "@") {
		return nil, &ErrScopedPackage{Name: pkg.Name}
	}
	inDeps := false
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "    ") {
			inDeps = false
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ":") {
			inDeps = strings.TrimSuffix(trimmed, ":") == "dependencies" ||
				strings.TrimSuffix(trimmed, ":") == "optionalDependencies"
			continue
		}
		key, value, found := strings.Cut(trimmed, " ")
		if !found {
			return nil, errors.Errorf("malformed lock line %q", line)
		}
		value = unquote(value)
		if inDeps {
			pkg.Dependencies[unquote(key)] = value
			continue
		}
		switch key {
		case "version":
			pkg.Version = value
		case "resolved":
			pkg.Resolved = value
		}
	}
	if pkg.Version == "" {
		return nil, errors.Errorf("lock entry %s has no version", pkg.Name)
	}
	return pkg, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
