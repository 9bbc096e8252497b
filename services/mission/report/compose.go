// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report composes final mission reports and enforces the citation
// gate before a report may be declared complete.
package report

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Separator sits between a report body and its appendix.
const Separator = "\n\n---\n\n"

// Compose joins a report body and an optional sources appendix.
//
// With a non-blank appendix the result is
// rtrim(body) + Separator + trim(appendix) + "\n", otherwise rtrim(body) + "\n".
func Compose(body, appendix string) string {
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	appendix = strings.TrimSpace(appendix)
	if appendix == "" {
		return body + "\n"
	}
	return body + Separator + appendix + "\n"
}

// =============================================================================
// Citation Analysis
// =============================================================================

var citationPattern = regexp.MustCompile(`\[([A-Za-z]+-\d+|\d+)\]`)

// InlineCitations returns the distinct citation IDs referenced anywhere in
// doc, sorted.
func InlineCitations(doc string) []string {
	return citationSet(doc)
}

// SourcesCitations returns the distinct citation IDs that appear after the
// first sources heading, sorted. Nil when doc has no heading.
func SourcesCitations(doc string) []string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		if isSourcesHeading(line) {
			return citationSet(strings.Join(lines[i+1:], "\n"))
		}
	}
	return nil
}

// HasSourcesHeading reports whether any line of doc is a sources heading.
func HasSourcesHeading(doc string) bool {
	for _, line := range strings.Split(doc, "\n") {
		if isSourcesHeading(line) {
			return true
		}
	}
	return false
}

// Unmatched returns the inline citation IDs missing from the sources
// section, sorted.
func Unmatched(doc string) []string {
	listed := make(map[string]bool)
	for _, id := range SourcesCitations(doc) {
		listed[id] = true
	}
	missing := []string{}
	for _, id := range InlineCitations(doc) {
		if !listed[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func isSourcesHeading(line string) bool {
	h := strings.ToLower(strings.TrimSpace(line))
	return h == "### sources" || h == "## sources"
}

func citationSet(text string) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	sort.Strings(ids)
	return ids
}
