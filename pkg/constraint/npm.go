// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"regexp"
	"strings"

	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
)

// Whitespace between an operator and its version is insignificant.
var opGap = regexp.MustCompile(`([!^<>=~]+) +`)

// Hyphen ranges keep their surrounding spaces; rewrite them to a token that
// survives whitespace splitting.
var hyphenRange = regexp.MustCompile(` - `)

// ParseNPM translates an npm range expression into a constraint. "||"
// separates alternatives; whitespace within an alternative is conjunction.
func ParseNPM(expr string) (Constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return All{}, nil
	}
	var terms []Constraint
	for _, alt := range strings.Split(expr, "||") {
		alt = opGap.ReplaceAllString(strings.TrimSpace(alt), "$1")
		alt = hyphenRange.ReplaceAllString(alt, "#")
		var leaves []Leaf
		for _, tok := range strings.Fields(alt) {
			part, err := parseNPMComparator(tok)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, part...)
		}
		term, err := BuildAnd(leaves)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return BuildOr(terms)
}

func parseNPMComparator(tok string) ([]Leaf, error) {
	switch {
	case tok == "*" || tok == "x" || tok == "X":
		return nil, nil
	case strings.Contains(tok, "#"):
		lo, hi, _ := strings.Cut(tok, "#")
		return hyphenLeaves(lo, hi)
	case strings.HasPrefix(tok, "^"):
		return caretLeaves(tok[1:])
	case strings.HasPrefix(tok, "~"):
		return tildeLeaves(tok[1:])
	case strings.HasPrefix(tok, ">="):
		return []Leaf{GreaterEqual(tok[2:])}, nil
	case strings.HasPrefix(tok, "<="):
		return []Leaf{LessEqual(tok[2:])}, nil
	case strings.HasPrefix(tok, ">"):
		return []Leaf{GreaterThan(tok[1:])}, nil
	case strings.HasPrefix(tok, "<"):
		return []Leaf{LessThan(tok[1:])}, nil
	case strings.HasPrefix(tok, "="):
		return equalLeaves(tok[1:])
	default:
		return equalLeaves(tok)
	}
}

// equalLeaves handles a bare or "="-prefixed version. A partial version is a
// range over everything it abbreviates; a full one is exact.
func equalLeaves(s string) ([]Leaf, error) {
	v, err := version.ParseNode(s)
	if err != nil {
		return nil, err
	}
	if len(v.Parts()) == 0 {
		return nil, nil
	}
	if !v.Partial() {
		return []Leaf{Exact(v.String())}, nil
	}
	upper, err := v.Bumped()
	if err != nil {
		return nil, errors.Wrapf(err, "range %q", s)
	}
	return []Leaf{GreaterEqual(v.String()), LessThan(upper.String())}, nil
}

// caretLeaves handles "^v": compatible with v, holding the leftmost nonzero
// component fixed.
func caretLeaves(s string) ([]Leaf, error) {
	v, err := version.ParseNode(s)
	if err != nil {
		return nil, err
	}
	parts := v.Parts()
	if len(parts) == 0 {
		return nil, nil
	}
	fixed := -1
	for i, p := range parts {
		if p != "0" {
			fixed = i
			break
		}
	}
	if fixed == -1 {
		// All-zero prefix like "^0.0" pins nothing beyond the given parts.
		upper, err := v.Bumped()
		if err != nil {
			return nil, errors.Wrapf(err, "caret range %q", s)
		}
		return []Leaf{GreaterEqual(v.String()), LessThan(upper.String())}, nil
	}
	upper, err := v.Truncated(fixed + 1).Bumped()
	if err != nil {
		return nil, errors.Wrapf(err, "caret range %q", s)
	}
	return []Leaf{GreaterEqual(v.String()), LessThan(upper.String())}, nil
}

// tildeLeaves handles "~v": patch-level changes when a minor is given,
// minor-level changes otherwise.
func tildeLeaves(s string) ([]Leaf, error) {
	v, err := version.ParseNode(s)
	if err != nil {
		return nil, err
	}
	parts := v.Parts()
	if len(parts) == 0 {
		return nil, nil
	}
	k := 2
	if len(parts) < 2 {
		k = 1
	}
	upper, err := v.Truncated(k).Bumped()
	if err != nil {
		return nil, errors.Wrapf(err, "tilde range %q", s)
	}
	return []Leaf{GreaterEqual(v.String()), LessThan(upper.String())}, nil
}

// hyphenLeaves handles "lo - hi": inclusive on both ends, except that a
// partial upper bound means "anything that starts with hi".
func hyphenLeaves(lo, hi string) ([]Leaf, error) {
	var leaves []Leaf
	lv, err := version.ParseNode(lo)
	if err != nil {
		return nil, err
	}
	if len(lv.Parts()) > 0 {
		leaves = append(leaves, GreaterEqual(lv.String()))
	}
	hv, err := version.ParseNode(hi)
	if err != nil {
		return nil, err
	}
	if len(hv.Parts()) == 0 {
		return leaves, nil
	}
	if hv.Partial() {
		upper, err := hv.Bumped()
		if err != nil {
			return nil, errors.Wrapf(err, "range upper bound %q", hi)
		}
		leaves = append(leaves, LessThan(upper.String()))
	} else {
		leaves = append(leaves, LessEqual(hv.String()))
	}
	return leaves, nil
}
