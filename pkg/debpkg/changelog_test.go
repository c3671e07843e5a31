// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package debpkg

import (
	"strings"
	"testing"
	"time"
)

func TestWriteChangelogStitchesAscendingEntries(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []ChangelogEntry{
		{Version: "1.0.0-1", Distribution: "unstable", Change: "Import newly into debler", Date: base},
		{Version: "1.0.0-2", Distribution: "unstable", Change: "Enable native extension build", Date: base.Add(24 * time.Hour)},
		{Version: "1.0.0-3", Distribution: "unstable", Change: "New upstream release", Date: base.Add(48 * time.Hour)},
	}
	var b strings.Builder
	if err := WriteChangelog(&b, "debler-rubygem-foo-1.0", "Debler <debler@example.org>", entries); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if got := strings.Count(out, "urgency=low"); got != 3 {
		t.Fatalf("changelog has %d stanzas, want 3:\n%s", got, out)
	}
	// Newest stanza first.
	i3 := strings.Index(out, "(1.0.0-3)")
	i2 := strings.Index(out, "(1.0.0-2)")
	i1 := strings.Index(out, "(1.0.0-1)")
	if !(i3 >= 0 && i3 < i2 && i2 < i1) {
		t.Errorf("stanzas out of order (indexes %d, %d, %d):\n%s", i3, i2, i1, out)
	}
	if !strings.HasPrefix(out, "debler-rubygem-foo-1.0 (1.0.0-3) unstable; urgency=low\n\n  * New upstream release\n") {
		t.Errorf("unexpected first stanza:\n%s", out)
	}
	if !strings.Contains(out, " -- Debler <debler@example.org>  Sat, 01 Mar 2025 12:00:00 +0000\n") {
		t.Errorf("missing trailer line:\n%s", out)
	}
}
