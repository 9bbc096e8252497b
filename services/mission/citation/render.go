// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citation

import (
	"strings"
)

// SourcesHeading opens every rendered sources block.
const SourcesHeading = "### Sources"

// NoSourcesLine is rendered when nothing matches.
const NoSourcesLine = "(No sources)"

// EmptySources is the render of an empty ledger.
const EmptySources = SourcesHeading + "\n" + NoSourcesLine

// Render formats the ledger as a markdown sources block.
//
// Description:
//
//	One line per source, "[id] (channel) title: url", with
//	" | raw_citation=X" appended when present. With a section, only IDs
//	in that section's index are listed, still in ledger order. The output
//	has no trailing newline.
//
// Inputs:
//
//	l - The ledger. Nil renders as empty.
//	section - Section filter, or "" for all sources.
//
// Outputs:
//
//	string - The markdown block.
func Render(l *Ledger, section string) string {
	lines := []string{SourcesHeading}

	if l != nil {
		var allowed map[string]bool
		if section = strings.TrimSpace(section); section != "" {
			allowed = make(map[string]bool)
			for _, id := range l.SectionMap[section] {
				allowed[id] = true
			}
		}

		for _, s := range l.Sources {
			if allowed != nil && !allowed[s.CitationID] {
				continue
			}
			line := "[" + s.CitationID + "] (" + string(s.Channel) + ") " + s.Title + ": " + s.URL
			if s.RawCitation != "" {
				line += " | raw_citation=" + s.RawCitation
			}
			lines = append(lines, line)
		}
	}

	if len(lines) == 1 {
		lines = append(lines, NoSourcesLine)
	}
	return strings.Join(lines, "\n")
}

// RenderJSON parses a persisted ledger and renders it.
//
// Description:
//
//	Never fails. A ledger that does not parse renders as a degraded block
//	carrying a warning line and "(No sources)", so the caller's document
//	is never left without a sources section.
func RenderJSON(raw, section string) string {
	l, err := ParseLedger(raw)
	if err != nil {
		return Degraded(err)
	}
	return Render(l, section)
}

// Degraded returns the fallback sources block for err.
func Degraded(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	return SourcesHeading + "\n[WARN] sources render degraded: " + msg + "\n" + NoSourcesLine
}
