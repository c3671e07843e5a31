// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package version implements the version orderings used by the catalog: gem
// versions with their reversible integer-array storage encoding, and the
// semver-like versions used by the node ecosystem.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Storage encoding sentinels. An alphabetic segment is introduced by
// sentinelAlpha, followed by its character code points and a closing zero. A
// git-revision segment is introduced by sentinelRev, followed by the five
// 32-bit halves of the SHA-1 (as signed integers) and a closing zero.
const (
	sentinelAlpha = -1
	sentinelRev   = -2
)

// GemVersion is a gem version held in its storage encoding. The encoding must
// stay bit-for-bit stable: existing catalogs depend on it.
type GemVersion struct {
	parts []int
}

// GemFromParts restores a version from its stored integer array.
func GemFromParts(parts []int) GemVersion {
	return GemVersion{parts: parts}
}

// ParseGem parses a dotted gem version like "1.4.0", "1.4.0.beta2" or
// "1.4.0.rev<sha1>".
func ParseGem(s string) (GemVersion, error) {
	if s == "" {
		return GemVersion{}, errors.New("empty gem version")
	}
	var parts []int
	for _, part := range strings.Split(s, ".") {
		switch {
		case isDecimal(part):
			n, err := strconv.Atoi(part)
			if err != nil {
				return GemVersion{}, errors.Wrapf(err, "parsing segment %q", part)
			}
			parts = append(parts, n)
		case strings.HasPrefix(part, "rev"):
			sha := part[3:]
			if len(sha) != 40 {
				return GemVersion{}, errors.Errorf("rev segment %q is not a SHA-1", part)
			}
			parts = append(parts, sentinelRev)
			for i := 0; i < 40; i += 8 {
				half, err := strconv.ParseUint(sha[i:i+8], 16, 32)
				if err != nil {
					return GemVersion{}, errors.Wrapf(err, "parsing rev segment %q", part)
				}
				parts = append(parts, int(int32(half)))
			}
			parts = append(parts, 0)
		default:
			parts = append(parts, sentinelAlpha)
			for _, r := range part {
				parts = append(parts, int(r))
			}
			parts = append(parts, 0)
		}
	}
	return GemVersion{parts: parts}, nil
}

// MustParseGem is ParseGem that panics on error, for static version literals.
func MustParseGem(s string) GemVersion {
	v, err := ParseGem(s)
	if err != nil {
		panic(err)
	}
	return v
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Parts returns the storage encoding.
func (v GemVersion) Parts() []int {
	return v.parts
}

// IsZero reports whether the version is empty (e.g. a level-0 slot key).
func (v GemVersion) IsZero() bool {
	return len(v.parts) == 0
}

// Limit returns the version truncated to its first k encoded segments, as
// used to form slot keys.
func (v GemVersion) Limit(k int) GemVersion {
	if k > len(v.parts) {
		k = len(v.parts)
	}
	return GemVersion{parts: v.parts[:k]}
}

// String renders the display form, inverting the storage encoding.
func (v GemVersion) String() string {
	var b strings.Builder
	needdot := false
	instr := false
	inrev := false
	for _, part := range v.parts {
		if needdot {
			b.WriteByte('.')
		} else {
			needdot = true
		}
		switch {
		case part == 0 && (instr || inrev):
			instr = false
			inrev = false
		case instr:
			b.WriteRune(rune(part))
			needdot = false
		case inrev:
			fmt.Fprintf(&b, "%08x", uint32(int32(part)))
			needdot = false
		case part >= 0:
			b.WriteString(strconv.Itoa(part))
		case part == sentinelAlpha:
			instr = true
			needdot = false
		case part == sentinelRev:
			inrev = true
			needdot = false
			b.WriteString("rev")
		}
	}
	return b.String()
}

// Compare orders two gem versions. Trailing zero segments are insignificant:
// versions that agree on a prefix and differ only by trailing zeros are equal.
func (v GemVersion) Compare(o GemVersion) int {
	return compareEncoded(v.parts, o.parts)
}

func compareEncoded(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
