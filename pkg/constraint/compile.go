// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"sort"
	"strings"

	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
)

// Slot is the compilation view of a package slot: its dotted key, empty for
// an unslotted package.
type Slot struct {
	Key string
}

// Name returns the Debian package name of the slot.
func (s Slot) Name(base string) string {
	if s.Key == "" {
		return base
	}
	return base + "-" + s.Key
}

// debRel maps a comparator to its Debian relation.
func debRel(r Rel) string {
	switch r {
	case RelGreaterThan:
		return ">>"
	case RelLessThan:
		return "<<"
	default:
		return r.String()
	}
}

type slotDep struct {
	slot       Slot
	qualifiers []Leaf
}

func (d slotDep) render(base string, q *Leaf) string {
	name := d.slot.Name(base)
	if q == nil {
		return name
	}
	return name + " (" + debRel(q.Rel) + " " + q.Version + ")"
}

// Compile translates a constraint on a package into Debian dependency lines
// against the package's slots. Each returned line is one dependency entry;
// alternatives within a line are joined with " | ", newest slot first.
func Compile(base string, slots []Slot, c Constraint) ([]string, error) {
	switch c := c.(type) {
	case All:
		return []string{base}, nil
	case Leaf:
		if c.Rel == RelExact {
			return compileExact(base, slots, c.Version), nil
		}
		return compileRange(base, slots, []Leaf{c})
	case And:
		return compileRange(base, slots, c.Leaves)
	default:
		return nil, errors.Errorf("cannot compile %s against slots", c)
	}
}

// compileExact pins a single version: the covering slot with an exact
// qualifier when one exists, otherwise the version's own package.
func compileExact(base string, slots []Slot, v string) []string {
	for _, s := range slots {
		if s.Key == "" {
			continue
		}
		if covered, err := slotCovers(s, v); err == nil && covered {
			return []string{s.Name(base) + " (= " + v + ")"}
		}
	}
	return []string{base + "-" + v}
}

func slotCovers(s Slot, v string) (bool, error) {
	if version.CompareDotted(v, s.Key) < 0 {
		return false, nil
	}
	max, err := slotUpper(s)
	if err != nil {
		return false, err
	}
	return version.CompareDotted(v, max) < 0, nil
}

func slotUpper(s Slot) (string, error) {
	bumped, err := version.NodeFromParts(strings.Split(s.Key, ".")...).Bumped()
	if err != nil {
		return "", errors.Wrapf(err, "slot %q", s.Key)
	}
	return strings.Join(bumped.Parts(), "."), nil
}

func compileRange(base string, slots []Slot, leaves []Leaf) ([]string, error) {
	var deps []slotDep
	for _, s := range slots {
		dep := slotDep{slot: s}
		alive := true
		for _, l := range leaves {
			switch verdict, err := evalLeaf(s, l); {
			case err != nil:
				return nil, err
			case verdict == slotEliminated:
				alive = false
			case verdict == slotQualified:
				dep.qualifiers = append(dep.qualifiers, l)
			}
			if !alive {
				break
			}
		}
		if alive {
			deps = append(deps, dep)
		}
	}
	if len(deps) == 0 {
		return nil, errors.Errorf("no slot of %s satisfies %s", base, And{Leaves: leaves})
	}
	sort.SliceStable(deps, func(i, j int) bool {
		return version.CompareDotted(deps[i].slot.Key, deps[j].slot.Key) > 0
	})
	if len(deps) == 1 {
		d := deps[0]
		if len(d.qualifiers) == 0 {
			return []string{d.render(base, nil)}, nil
		}
		lines := make([]string, len(d.qualifiers))
		for i := range d.qualifiers {
			lines[i] = d.render(base, &d.qualifiers[i])
		}
		return lines, nil
	}
	// Several slots are alternatives of one dependency line; Debian syntax
	// leaves room for at most one qualifier per alternative.
	alts := make([]string, len(deps))
	for i, d := range deps {
		switch len(d.qualifiers) {
		case 0:
			alts[i] = d.render(base, nil)
		case 1:
			alts[i] = d.render(base, &d.qualifiers[0])
		default:
			return nil, errors.Errorf("slot %s of %s needs %d qualifiers in an alternative",
				d.slot.Key, base, len(d.qualifiers))
		}
	}
	return []string{strings.Join(alts, " | ")}, nil
}

type leafVerdict int

const (
	slotRedundant leafVerdict = iota
	slotQualified
	slotEliminated
)

// evalLeaf classifies a leaf against a slot's version interval: already
// implied by the slot, needing a version qualifier, or unsatisfiable within
// the slot. An unslotted package implies nothing, so every leaf qualifies.
func evalLeaf(s Slot, l Leaf) (leafVerdict, error) {
	if s.Key == "" {
		return slotQualified, nil
	}
	max, err := slotUpper(s)
	if err != nil {
		return 0, err
	}
	var everywhere, somewhere bool
	switch l.Rel {
	case RelGreaterThan, RelGreaterEqual:
		everywhere = l.Matches(s.Key)
		somewhere = version.CompareDotted(max, l.Version) > 0
	case RelLessThan, RelLessEqual:
		everywhere = version.CompareDotted(max, l.Version) <= 0
		somewhere = l.Matches(s.Key)
	case RelExact:
		covered, err := slotCovers(s, l.Version)
		if err != nil {
			return 0, err
		}
		somewhere = covered
	default:
		return 0, errors.Errorf("cannot compile comparator %s", l.Rel)
	}
	switch {
	case everywhere:
		return slotRedundant, nil
	case somewhere:
		return slotQualified, nil
	default:
		return slotEliminated, nil
	}
}
