// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func slotsOf(keys ...string) []Slot {
	slots := make([]Slot, len(keys))
	for i, k := range keys {
		slots[i] = Slot{Key: k}
	}
	return slots
}

func TestCompile(t *testing.T) {
	testCases := []struct {
		name  string
		slots []Slot
		c     Constraint
		want  []string
	}{
		{
			name:  "unconstrained",
			slots: slotsOf("1.1", "1.2"),
			c:     All{},
			want:  []string{"bar"},
		},
		{
			name:  "lower bound across slots",
			slots: slotsOf("1.1", "1.2", "1.3"),
			c:     GreaterEqual("1.2.3"),
			want:  []string{"bar-1.3 | bar-1.2 (>= 1.2.3)"},
		},
		{
			name:  "caret range across slots",
			slots: slotsOf("1.1", "1.2", "1.3", "1.4", "2.0", "2.1"),
			c:     And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("2")}},
			want:  []string{"bar-1.4 | bar-1.3 | bar-1.2 (>= 1.2.3)"},
		},
		{
			name:  "single slot keeps both qualifiers",
			slots: slotsOf("1.2"),
			c:     And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("1.2.9")}},
			want:  []string{"bar-1.2 (>= 1.2.3)", "bar-1.2 (<< 1.2.9)"},
		},
		{
			name:  "exact within covering slot",
			slots: slotsOf("1.1", "1.2"),
			c:     Exact("1.2.3"),
			want:  []string{"bar-1.2 (= 1.2.3)"},
		},
		{
			name:  "exact outside any slot pins its own package",
			slots: slotsOf("1.1"),
			c:     Exact("1.2.3"),
			want:  []string{"bar-1.2.3"},
		},
		{
			name:  "unslotted package carries every qualifier",
			slots: slotsOf(""),
			c:     And{Leaves: []Leaf{GreaterEqual("1.0"), LessThan("2")}},
			want:  []string{"bar (>= 1.0)", "bar (<< 2)"},
		},
		{
			name:  "strict upper uses dpkg relation",
			slots: slotsOf("1.1", "1.2"),
			c:     LessThan("1.2.5"),
			want:  []string{"bar-1.2 (<< 1.2.5) | bar-1.1"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compile("bar", tc.slots, tc.c)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Compile(%s) diff (-want +got):\n%s", tc.c, diff)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("bar", slotsOf("1.1"), GreaterEqual("2.0")); err == nil {
		t.Error("expected error when no slot can satisfy the constraint")
	}
	// A slot needing two qualifiers cannot appear among Debian alternatives.
	c := And{Leaves: []Leaf{GreaterEqual("1.2.3"), LessThan("1.2.9")}}
	if _, err := Compile("bar", slotsOf("", "1.2"), c); err == nil {
		t.Error("expected error for multi-slot multi-qualifier constraint")
	}
}
