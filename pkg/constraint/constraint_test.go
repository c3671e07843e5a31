// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGemRequirements(t *testing.T) {
	testCases := []struct {
		name string
		reqs []Requirement
		want Constraint
	}{
		{
			name: "empty is unconstrained",
			reqs: nil,
			want: All{},
		},
		{
			name: "exact",
			reqs: []Requirement{{"=", "1.2.3"}},
			want: Exact("1.2.3"),
		},
		{
			name: "pessimistic three components",
			reqs: []Requirement{{"~>", "1.2.3"}},
			want: And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("1.3")}},
		},
		{
			name: "pessimistic two components",
			reqs: []Requirement{{"~>", "1.2"}},
			want: And{Leaves: []Leaf{GreaterEqual("1.2"), LessThan("2")}},
		},
		{
			name: "pessimistic single component",
			reqs: []Requirement{{"~>", "1"}},
			want: And{Leaves: []Leaf{GreaterEqual("1"), LessThan("2")}},
		},
		{
			name: "pessimistic below one",
			reqs: []Requirement{{"~>", "0.2.3"}},
			want: And{Leaves: []Leaf{GreaterEqual("0.2.3"), LessThan("0.3")}},
		},
		{
			name: "pessimistic with prerelease",
			reqs: []Requirement{{"~>", "1.0.0.beta2"}},
			want: And{Leaves: []Leaf{GreaterEqual("1.0.0.~beta2"), LessThan("1.1")}},
		},
		{
			name: "conjunction keeps strictest bounds",
			reqs: []Requirement{{">=", "1.0"}, {">", "1.2"}, {"<", "3"}, {"<=", "2.5"}},
			want: And{Leaves: []Leaf{GreaterThan("1.2"), LessThan("2.5")}},
		},
		{
			name: "exclusion approximated",
			reqs: []Requirement{{"!=", "1.2"}},
			want: GreaterThan("1.2"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseGemRequirements(tc.reqs)
			if err != nil {
				t.Fatalf("ParseGemRequirements(%v): %v", tc.reqs, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseGemRequirements(%v) diff (-want +got):\n%s", tc.reqs, diff)
			}
		})
	}
}

func TestParseNPM(t *testing.T) {
	testCases := []struct {
		expr string
		want Constraint
	}{
		{"*", All{}},
		{"", All{}},
		{"1.2.3", Exact("1.2.3")},
		{"=1.2.3", Exact("1.2.3")},
		{"1.2", And{Leaves: []Leaf{GreaterEqual("1.2"), LessThan("1.3")}}},
		{"1.2.x", And{Leaves: []Leaf{GreaterEqual("1.2"), LessThan("1.3")}}},
		{"^1.2.3", And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("2")}}},
		{"^0.2.3", And{Leaves: []Leaf{GreaterEqual("0.2.3"), LessThan("0.3")}}},
		{"~1.2.3", And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("1.3")}}},
		{"~1.2", And{Leaves: []Leaf{GreaterEqual("1.2"), LessThan("1.3")}}},
		{"~1", And{Leaves: []Leaf{GreaterEqual("1"), LessThan("2")}}},
		{">= 1.2", GreaterEqual("1.2")},
		{">1.2 <2", And{Leaves: []Leaf{GreaterThan("1.2"), LessThan("2")}}},
		{"1.2.3 - 2.3.4", And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessEqual("2.3.4")}}},
		{"1.2.3 - 2.3", And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("2.4")}}},
		{"^2.3.0 || 3.x || 4 || 5", And{Leaves: []Leaf{GreaterEqual("2.3.0"), LessThan("6")}}},
		{"1.x || >=2.5.0 || 5.0.0 - 7.2.3", Or{Terms: []Constraint{
			And{Leaves: []Leaf{GreaterEqual("1"), LessThan("2")}},
			GreaterEqual("2.5.0"),
		}}},
	}
	for _, tc := range testCases {
		got, err := ParseNPM(tc.expr)
		if err != nil {
			t.Fatalf("ParseNPM(%q): %v", tc.expr, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("ParseNPM(%q) diff (-want +got):\n%s", tc.expr, diff)
		}
	}
}

func TestMatches(t *testing.T) {
	c, err := ParseNPM("^1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	for v, want := range map[string]bool{
		"1.2.3": true,
		"1.9.0": true,
		"1.2.2": false,
		"2.0.0": false,
	} {
		if got := c.Matches(v); got != want {
			t.Errorf("(%s).Matches(%q) = %v, want %v", c, v, got, want)
		}
	}
}
