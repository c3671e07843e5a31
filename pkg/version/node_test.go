// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseNode(t *testing.T) {
	testCases := []struct {
		in      string
		parts   []string
		partial bool
		display string
	}{
		{"1.2.3", []string{"1", "2", "3"}, false, "1.2.3"},
		{"1.2", []string{"1", "2"}, true, "1.2"},
		{"1.2.x", []string{"1", "2"}, true, "1.2"},
		{"1.X", []string{"1"}, true, "1"},
		{"1.2.3-beta.2", []string{"1", "2", "3", "beta.2"}, false, "1.2.3-beta.2"},
	}
	for _, tc := range testCases {
		v, err := ParseNode(tc.in)
		if err != nil {
			t.Fatalf("ParseNode(%q): %v", tc.in, err)
		}
		if diff := cmp.Diff(tc.parts, v.Parts()); diff != "" {
			t.Errorf("ParseNode(%q) parts diff (-want +got):\n%s", tc.in, diff)
		}
		if v.Partial() != tc.partial {
			t.Errorf("ParseNode(%q).Partial() = %v, want %v", tc.in, v.Partial(), tc.partial)
		}
		if got := v.String(); got != tc.display {
			t.Errorf("ParseNode(%q).String() = %q, want %q", tc.in, got, tc.display)
		}
	}
}

func TestNodeBumped(t *testing.T) {
	v, err := ParseNode("1.2")
	if err != nil {
		t.Fatal(err)
	}
	b, err := v.Bumped()
	if err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "1.3" {
		t.Errorf("Bumped() = %q, want %q", got, "1.3")
	}
	// Bumping must not alias the original version's backing array.
	if got := v.String(); got != "1.2" {
		t.Errorf("original mutated to %q", got)
	}
}

func TestCompareDotted(t *testing.T) {
	testCases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.3.0", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.2.3-beta.2", "1.2.3", -1},
		{"1.2.3-alpha", "1.2.3-beta", -1},
		{"0.10.0", "0.9.9", 1},
		{"2", "1.9", 1},
		{"1.2.~rc1", "1.2.0", -1},
	}
	for _, tc := range testCases {
		if got := CompareDotted(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareDotted(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := CompareDotted(tc.b, tc.a); got != -tc.want {
			t.Errorf("CompareDotted(%q, %q) = %d, want %d", tc.b, tc.a, got, -tc.want)
		}
	}
}
