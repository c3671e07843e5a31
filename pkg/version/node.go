// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NodeVersion is a semver-like version: dot-separated integer components with
// an optional pre-release tail ("1.2.3-beta.2"). A wildcard x/X/* in any
// position makes the version partial; trailing wildcards are dropped.
type NodeVersion struct {
	parts []string
}

// ParseNode parses a node version string. The empty string and "*" are not
// versions; callers handle them as the unconstrained case.
func ParseNode(s string) (NodeVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NodeVersion{}, errors.New("empty node version")
	}
	var parts []string
	if main, pre, ok := strings.Cut(s, "-"); ok {
		parts = append(strings.Split(main, "."), pre)
	} else {
		parts = strings.Split(s, ".")
	}
	for len(parts) > 0 && isWildcard(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	return NodeVersion{parts: parts}, nil
}

func isWildcard(s string) bool {
	return s == "x" || s == "X" || s == "*"
}

// NodeFromParts builds a version from explicit components.
func NodeFromParts(parts ...string) NodeVersion {
	return NodeVersion{parts: parts}
}

// Partial reports whether the version has fewer than three components.
func (v NodeVersion) Partial() bool {
	return len(v.parts) < 3
}

// Prerelease reports whether the version carries a pre-release tail.
func (v NodeVersion) Prerelease() bool {
	return len(v.parts) > 3
}

// Parts returns the raw components.
func (v NodeVersion) Parts() []string {
	return v.parts
}

// Bumped returns a copy with the last component incremented, as used for the
// upper bounds of tilde and partial-equal ranges.
func (v NodeVersion) Bumped() (NodeVersion, error) {
	if len(v.parts) == 0 {
		return NodeVersion{}, errors.New("cannot bump empty version")
	}
	parts := append([]string(nil), v.parts...)
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return NodeVersion{}, errors.Wrapf(err, "bumping %q", v)
	}
	parts[len(parts)-1] = strconv.Itoa(n + 1)
	return NodeVersion{parts: parts}, nil
}

// Truncated returns the first k components.
func (v NodeVersion) Truncated(k int) NodeVersion {
	if k > len(v.parts) {
		k = len(v.parts)
	}
	return NodeVersion{parts: v.parts[:k]}
}

// String renders the display form, re-attaching a pre-release tail with "-".
func (v NodeVersion) String() string {
	if v.Prerelease() {
		return strings.Join(v.parts[:3], ".") + "-" + v.parts[len(v.parts)-1]
	}
	return strings.Join(v.parts, ".")
}

// Compare orders two node versions component-wise; a pre-release tail sorts
// below the same tuple without one.
func (v NodeVersion) Compare(o NodeVersion) int {
	return CompareDotted(v.String(), o.String())
}

// CompareDotted orders two dotted version strings from either family using
// the storage encoding's ordering rules: numeric segments compare
// numerically, alphabetic segments (including pre-release tails and the "~"
// mangle) sort below any numeric segment, and trailing zeros are
// insignificant. Both "1.2.3-beta" and "1.2.3.beta" denote the same point.
func CompareDotted(a, b string) int {
	return compareEncoded(encodeDotted(a), encodeDotted(b))
}

func encodeDotted(s string) []int {
	s = strings.ReplaceAll(s, "-", ".")
	var parts []int
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			continue
		}
		if isDecimal(part) {
			n, _ := strconv.Atoi(part)
			parts = append(parts, n)
			continue
		}
		parts = append(parts, sentinelAlpha)
		for _, r := range part {
			parts = append(parts, int(r))
		}
		parts = append(parts, 0)
	}
	return parts
}
