// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citation maintains the per-mission citation ledger.
//
// # Description
//
// Retrieval results arrive as Evidence records. Merge folds them into a
// Ledger: each distinct source (by Fingerprint) gets one citation ID,
// numbered per channel ("WEB-1", "MCP-1", ...), and keeps growing its
// snippet list and section usage as more evidence references it.
//
// The ledger has no ambient memory. Callers pass the previously persisted
// snapshot into Merge and persist the result.
//
// # Invariants
//
//   - A citation ID is assigned once and never reused or renumbered.
//   - Per-channel numbering is gapless from 1.
//   - Given the same evidence list and prior ledger, Merge and Render
//     produce byte-identical output.
//
// # Thread Safety
//
// Merge and Render are pure. A *Ledger must not be mutated concurrently.
package citation

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Channels
// =============================================================================

// Channel is the retrieval channel a source came from.
type Channel string

const (
	// ChannelWeb is public web search.
	ChannelWeb Channel = "web"

	// ChannelInternal is internal knowledge-base retrieval.
	ChannelInternal Channel = "internal_kb"
)

var channelAliases = map[string]Channel{
	"web":                ChannelWeb,
	"web_search":         ChannelWeb,
	"tavily":             ChannelWeb,
	"tavily_search":      ChannelWeb,
	"search":             ChannelWeb,
	"external_web":       ChannelWeb,
	"internal_kb":        ChannelInternal,
	"internal_retrieval": ChannelInternal,
	"internal":           ChannelInternal,
	"mcp":                ChannelInternal,
	"alb_mcp":            ChannelInternal,
	"lightrag":           ChannelInternal,
}

// NormalizeChannel maps a channel alias to its Channel. Unknown and empty
// values map to ChannelWeb.
func NormalizeChannel(raw string) Channel {
	if ch, ok := channelAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return ch
	}
	return ChannelWeb
}

// IDPrefix returns the citation ID prefix for the channel.
func (c Channel) IDPrefix() string {
	if c == ChannelInternal {
		return "MCP"
	}
	return "WEB"
}

// =============================================================================
// Types
// =============================================================================

// Default values for evidence fields left blank.
const (
	DefaultTitle   = "Untitled Source"
	DefaultSection = "General"
)

// Evidence is one retrieval result as submitted by a research sub-task.
type Evidence struct {
	Channel     string `json:"channel,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Section     string `json:"section,omitempty"`
	RawCitation string `json:"raw_citation,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
}

// SourceEntry is one deduplicated source in the ledger.
type SourceEntry struct {
	CitationID  string   `json:"citation_id"`
	Channel     Channel  `json:"channel"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	RawCitation string   `json:"raw_citation"`
	Snippets    []string `json:"snippets"`
}

// Ledger is the citation registry of one mission.
type Ledger struct {
	Sources       []SourceEntry       `json:"sources"`
	ByFingerprint map[string]string   `json:"by_fingerprint"`
	SectionMap    map[string][]string `json:"section_map"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Sources:       []SourceEntry{},
		ByFingerprint: map[string]string{},
		SectionMap:    map[string][]string{},
	}
}

// ParseLedger decodes a persisted ledger.
//
// Description:
//
//	Blank input and "null" decode to an empty ledger. Channels are
//	normalized, and fingerprints missing from by_fingerprint are rebuilt
//	from the sources so hand-edited snapshots still deduplicate. Existing
//	IDs are never changed.
//
// Outputs:
//
//	*Ledger - The decoded ledger.
//	error - Non-nil if raw is not a ledger JSON object.
func ParseLedger(raw string) (*Ledger, error) {
	l := NewLedger()
	if strings.TrimSpace(raw) == "" {
		return l, nil
	}

	var decoded Ledger
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid ledger JSON: %w", err)
	}

	for _, s := range decoded.Sources {
		if s.CitationID == "" {
			return nil, fmt.Errorf("invalid ledger JSON: source without citation_id")
		}
		s.Channel = NormalizeChannel(string(s.Channel))
		if s.Snippets == nil {
			s.Snippets = []string{}
		}
		l.Sources = append(l.Sources, s)
	}
	for fp, id := range decoded.ByFingerprint {
		l.ByFingerprint[fp] = id
	}
	for section, ids := range decoded.SectionMap {
		l.SectionMap[section] = append([]string{}, ids...)
	}

	// Stored keys may hash a legacy channel name ("alb_mcp"), so every
	// source is also indexed under its canonical fingerprint.
	for _, s := range l.Sources {
		fp := Fingerprint(s.Channel, s.Title, s.URL, s.RawCitation)
		if _, ok := l.ByFingerprint[fp]; !ok {
			l.ByFingerprint[fp] = s.CitationID
		}
	}
	return l, nil
}

// JSON encodes the ledger with two-space indentation and without HTML
// escaping. Map keys are sorted, so output is deterministic.
func (l *Ledger) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	for _, s := range l.Sources {
		s.Snippets = append([]string{}, s.Snippets...)
		out.Sources = append(out.Sources, s)
	}
	for fp, id := range l.ByFingerprint {
		out.ByFingerprint[fp] = id
	}
	for section, ids := range l.SectionMap {
		out.SectionMap[section] = append([]string{}, ids...)
	}
	return out
}

// IDs returns citation IDs in ledger order.
func (l *Ledger) IDs() []string {
	ids := make([]string, len(l.Sources))
	for i, s := range l.Sources {
		ids[i] = s.CitationID
	}
	return ids
}

// =============================================================================
// Fingerprinting
// =============================================================================

// CanonicalURL strips the fragment. Scheme, host, path and query are kept
// verbatim.
func CanonicalURL(raw string) string {
	u, _, _ := strings.Cut(strings.TrimSpace(raw), "#")
	return u
}

// Fingerprint is the dedup key of a source: the first 12 hex characters
// of sha1("channel|lower(title)|url|raw_citation") over trimmed fields.
func Fingerprint(channel Channel, title, canonicalURL, rawCitation string) string {
	key := strings.Join([]string{
		string(channel),
		strings.ToLower(strings.TrimSpace(title)),
		canonicalURL,
		strings.TrimSpace(rawCitation),
	}, "|")
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// =============================================================================
// Merge
// =============================================================================

// Merge folds evidence into a copy of prior and returns it.
//
// Description:
//
//	For each evidence record in order:
//	  - normalize channel, default title and section, canonicalize URL
//	  - known fingerprint: append the snippet if new (exact match)
//	  - new fingerprint: allocate the next ID for the channel, continuing
//	    from the highest index already in prior
//	  - record the ID under its section once
//
// Inputs:
//
//	evidence - Records to merge. Order decides numbering.
//	prior - The persisted ledger, or nil. Never mutated.
//
// Outputs:
//
//	*Ledger - The merged ledger.
func Merge(evidence []Evidence, prior *Ledger) *Ledger {
	out := NewLedger()
	if prior != nil {
		out = prior.Clone()
	}

	next := maxIndexes(out)
	position := make(map[string]int, len(out.Sources))
	for i, s := range out.Sources {
		position[s.CitationID] = i
	}

	for _, ev := range evidence {
		channel := NormalizeChannel(ev.Channel)
		title := strings.TrimSpace(ev.Title)
		if title == "" {
			title = DefaultTitle
		}
		url := CanonicalURL(ev.URL)
		raw := strings.TrimSpace(ev.RawCitation)
		section := strings.TrimSpace(ev.Section)
		if section == "" {
			section = DefaultSection
		}
		snippet := strings.TrimSpace(ev.Snippet)

		fp := Fingerprint(channel, title, url, raw)
		id, known := out.ByFingerprint[fp]
		pos, present := position[id]

		if known && present {
			if snippet != "" && !contains(out.Sources[pos].Snippets, snippet) {
				out.Sources[pos].Snippets = append(out.Sources[pos].Snippets, snippet)
			}
		} else {
			prefix := channel.IDPrefix()
			next[prefix]++
			id = prefix + "-" + strconv.Itoa(next[prefix])

			entry := SourceEntry{
				CitationID:  id,
				Channel:     channel,
				Title:       title,
				URL:         url,
				RawCitation: raw,
				Snippets:    []string{},
			}
			if snippet != "" {
				entry.Snippets = append(entry.Snippets, snippet)
			}
			position[id] = len(out.Sources)
			out.Sources = append(out.Sources, entry)
			out.ByFingerprint[fp] = id
		}

		if !contains(out.SectionMap[section], id) {
			out.SectionMap[section] = append(out.SectionMap[section], id)
		}
	}
	return out
}

// maxIndexes returns the highest numeric suffix per ID prefix.
func maxIndexes(l *Ledger) map[string]int {
	next := map[string]int{}
	for _, s := range l.Sources {
		prefix, num, ok := strings.Cut(s.CitationID, "-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		if n > next[prefix] {
			next[prefix] = n
		}
	}
	return next
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
