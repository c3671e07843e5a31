// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package constraint implements the symbolic algebra over version
// constraints shared by the gem and npm front-ends: comparator leaves,
// And/Or nodes, simplification, and compilation against a package's slot set.
package constraint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
)

// Rel is the comparator carried by a leaf.
type Rel int

const (
	RelGreaterThan Rel = iota
	RelGreaterEqual
	RelLessThan
	RelLessEqual
	RelExact
)

func (r Rel) String() string {
	switch r {
	case RelGreaterThan:
		return ">"
	case RelGreaterEqual:
		return ">="
	case RelLessThan:
		return "<"
	case RelLessEqual:
		return "<="
	case RelExact:
		return "="
	default:
		return fmt.Sprintf("Rel(%d)", int(r))
	}
}

// Constraint is a node of the constraint tree. Implementations are Leaf, And,
// Or and All.
type Constraint interface {
	// Matches reports whether the dotted version satisfies the constraint.
	Matches(version string) bool
	String() string
}

// Leaf is a single comparator-version pair. Equality is structural.
type Leaf struct {
	Rel     Rel
	Version string
}

func GreaterThan(v string) Leaf  { return Leaf{RelGreaterThan, v} }
func GreaterEqual(v string) Leaf { return Leaf{RelGreaterEqual, v} }
func LessThan(v string) Leaf     { return Leaf{RelLessThan, v} }
func LessEqual(v string) Leaf    { return Leaf{RelLessEqual, v} }
func Exact(v string) Leaf        { return Leaf{RelExact, v} }

func (l Leaf) Matches(v string) bool {
	c := version.CompareDotted(v, l.Version)
	switch l.Rel {
	case RelGreaterThan:
		return c > 0
	case RelGreaterEqual:
		return c >= 0
	case RelLessThan:
		return c < 0
	case RelLessEqual:
		return c <= 0
	case RelExact:
		return c == 0
	default:
		return false
	}
}

func (l Leaf) String() string {
	return l.Rel.String() + " " + l.Version
}

// And is a conjunction of leaves. Equality is by multiset of leaves; BuildAnd
// always stores them in canonical order so slice comparison suffices.
type And struct {
	Leaves []Leaf
}

func (a And) Matches(v string) bool {
	for _, l := range a.Leaves {
		if !l.Matches(v) {
			return false
		}
	}
	return true
}

func (a And) String() string {
	parts := make([]string, len(a.Leaves))
	for i, l := range a.Leaves {
		parts[i] = l.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Or is a disjunction. It survives simplification only when its ranges do not
// meet; the compiler rejects it.
type Or struct {
	Terms []Constraint
}

func (o Or) Matches(v string) bool {
	for _, t := range o.Terms {
		if t.Matches(v) {
			return true
		}
	}
	return false
}

func (o Or) String() string {
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " || ")
}

// All is the unconstrained constraint.
type All struct{}

func (All) Matches(string) bool { return true }
func (All) String() string      { return "*" }

// BuildAnd simplifies a conjunction of leaves: an Exact dominates, among the
// lower bounds the strictest (highest) survives, among the upper bounds the
// strictest (lowest) survives. A single surviving leaf is returned bare.
func BuildAnd(leaves []Leaf) (Constraint, error) {
	var exact *Leaf
	var lower *Leaf
	var upper *Leaf
	for i := range leaves {
		l := leaves[i]
		switch l.Rel {
		case RelExact:
			if exact != nil && version.CompareDotted(exact.Version, l.Version) != 0 {
				return nil, errors.Errorf("conflicting exact constraints %q and %q", exact.Version, l.Version)
			}
			exact = &l
		case RelGreaterThan, RelGreaterEqual:
			if lower == nil {
				lower = &l
				continue
			}
			switch c := version.CompareDotted(l.Version, lower.Version); {
			case c > 0:
				lower = &l
			case c == 0 && l.Rel == RelGreaterThan:
				lower = &l
			}
		case RelLessThan, RelLessEqual:
			if upper == nil {
				upper = &l
				continue
			}
			switch c := version.CompareDotted(l.Version, upper.Version); {
			case c < 0:
				upper = &l
			case c == 0 && l.Rel == RelLessThan:
				upper = &l
			}
		}
	}
	if exact != nil {
		return *exact, nil
	}
	var kept []Leaf
	if lower != nil {
		kept = append(kept, *lower)
	}
	if upper != nil {
		kept = append(kept, *upper)
	}
	switch len(kept) {
	case 0:
		return All{}, nil
	case 1:
		return kept[0], nil
	default:
		return And{Leaves: kept}, nil
	}
}

// BuildOr simplifies a disjunction: adjacent ranges whose bounds meet (after
// stripping trailing zeros) are merged into their hull. An unconstrained term
// swallows the rest.
func BuildOr(terms []Constraint) (Constraint, error) {
	var ranges []And
	for _, t := range terms {
		switch c := t.(type) {
		case All:
			return All{}, nil
		case Leaf:
			ranges = append(ranges, And{Leaves: []Leaf{c}})
		case And:
			ranges = append(ranges, c)
		default:
			return nil, errors.Errorf("cannot simplify disjunction over %T", t)
		}
	}
	if len(ranges) == 1 {
		return simplifyRange(ranges[0]), nil
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		li, lok := bound(ranges[i], false)
		lj, jok := bound(ranges[j], false)
		if lok != jok {
			return !lok // unbounded-below sorts first
		}
		return version.CompareDotted(li.Version, lj.Version) < 0
	})
	merged := []And{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if joined, ok := mergeRanges(*last, r); ok {
			*last = joined
		} else {
			merged = append(merged, r)
		}
	}
	if len(merged) == 1 {
		return simplifyRange(merged[0]), nil
	}
	out := make([]Constraint, len(merged))
	for i, r := range merged {
		out[i] = simplifyRange(r)
	}
	return Or{Terms: out}, nil
}

func simplifyRange(a And) Constraint {
	switch len(a.Leaves) {
	case 0:
		return All{}
	case 1:
		return a.Leaves[0]
	default:
		return a
	}
}

// bound extracts the upper (or lower) bound leaf of a range.
func bound(a And, upper bool) (Leaf, bool) {
	for _, l := range a.Leaves {
		isUpper := l.Rel == RelLessThan || l.Rel == RelLessEqual
		if isUpper == upper {
			return l, true
		}
	}
	return Leaf{}, false
}

func mergeRanges(a, b And) (And, bool) {
	au, aHasUpper := bound(a, true)
	if !aHasUpper {
		// a is unbounded above and, by sort order, starts no later than b.
		return a, true
	}
	// The ranges merge when they touch or overlap; "< 3" against ">= 3.0"
	// counts as touching since trailing zeros are insignificant.
	if bl, ok := bound(b, false); ok && version.CompareDotted(bl.Version, au.Version) > 0 {
		return And{}, false
	}
	var kept []Leaf
	if al, ok := bound(a, false); ok {
		kept = append(kept, al)
	}
	if bu, ok := bound(b, true); ok {
		if version.CompareDotted(bu.Version, au.Version) >= 0 {
			kept = append(kept, bu)
		} else {
			kept = append(kept, au)
		}
	}
	return And{Leaves: kept}, true
}
