// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"log"
	"regexp"
	"strings"

	"github.com/debler/debler/pkg/version"
	"github.com/pkg/errors"
)

// Requirement is one gem requirement as recorded in gem metadata: an operator
// and a version string.
type Requirement struct {
	Op      string
	Version string
}

// Gem versions embed alphabetic segments ("1.4.0.beta2") that the dotted
// comparison must keep below numeric ones; the mangle marks them with "~".
var alphaSegment = regexp.MustCompile(`\.([^0-9])`)

func mangleGemVersion(v string) string {
	return alphaSegment.ReplaceAllString(strings.TrimSpace(v), ".~$1")
}

// ParseGemRequirements translates a gem requirement list into a constraint.
// An empty list is unconstrained.
func ParseGemRequirements(reqs []Requirement) (Constraint, error) {
	if len(reqs) == 0 {
		return All{}, nil
	}
	var leaves []Leaf
	for _, req := range reqs {
		v := mangleGemVersion(req.Version)
		switch req.Op {
		case "=", "":
			leaves = append(leaves, Exact(v))
		case ">":
			leaves = append(leaves, GreaterThan(v))
		case ">=":
			leaves = append(leaves, GreaterEqual(v))
		case "<":
			leaves = append(leaves, LessThan(v))
		case "<=":
			leaves = append(leaves, LessEqual(v))
		case "~>":
			upper, err := pessimisticUpper(v)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, GreaterEqual(v), LessThan(upper))
		case "!=":
			// Debian dependency lists cannot express exclusion; approximate
			// with a lower bound and leave a trace in the log.
			log.Printf("approximating requirement != %s with > %s", req.Version, req.Version)
			leaves = append(leaves, GreaterThan(v))
		default:
			return nil, errors.Errorf("unknown gem requirement operator %q", req.Op)
		}
	}
	return BuildAnd(leaves)
}

// pessimisticUpper derives the exclusive upper bound of "~> v": strip any
// pre-release tail, drop the last component when more than one remains, then
// increment what is now last.
func pessimisticUpper(v string) (string, error) {
	parts := strings.Split(v, ".")
	for len(parts) > 0 && strings.HasPrefix(parts[len(parts)-1], "~") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return "", errors.Errorf("cannot derive pessimistic bound of %q", v)
	}
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	bumped, err := version.NodeFromParts(parts...).Bumped()
	if err != nil {
		return "", errors.Wrapf(err, "deriving pessimistic bound of %q", v)
	}
	return strings.Join(bumped.Parts(), "."), nil
}
