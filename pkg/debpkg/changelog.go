// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package debpkg

import (
	"fmt"
	"io"
	"time"
)

// ChangelogEntry is one changelog stanza source.
type ChangelogEntry struct {
	// Version is the full revision-version, e.g. "1.2.3-1".
	Version      string
	Distribution string
	Change       string
	Date         time.Time
}

// WriteChangelog renders entries, given in ascending order, as a debian
// changelog: newest stanza first.
func WriteChangelog(w io.Writer, debName, maintainer string, entries []ChangelogEntry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		_, err := fmt.Fprintf(w, "%s (%s) %s; urgency=low\n\n  * %s\n\n -- %s  %s\n",
			debName, e.Version, e.Distribution, e.Change, maintainer,
			e.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700"))
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}
