// Package wikilink provides canonical parsing/scanning of Dendrite wikilinks.
//
// Wikilink grammar:
//
//	[[Title]]
//
// Notes:
//   - The title is one or more characters that are not ']'; the token ends at the first "]]".
//   - Titles are returned verbatim so they can be written back into text unchanged.
//     Use Key when a title is used for lookup.
//   - An unterminated "[[" produces no token.
package wikilink

import (
	"iter"
	"regexp"
	"strings"
)

// Match represents a wikilink found in a string.
type Match struct {
	Title   string
	Start   int // byte offset of the first '['
	End     int // byte offset just past the closing "]]"
	Literal string
}

var re = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// All returns a lazy sequence over the wikilinks in text, in source order.
// Each range over the returned sequence scans text again from the start.
func All(text string) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		offset := 0
		for offset < len(text) {
			loc := re.FindStringSubmatchIndex(text[offset:])
			if loc == nil {
				return
			}
			m := Match{
				Title:   text[offset+loc[2] : offset+loc[3]],
				Start:   offset + loc[0],
				End:     offset + loc[1],
				Literal: text[offset+loc[0] : offset+loc[1]],
			}
			if !yield(m) {
				return
			}
			offset = m.End
		}
	}
}

// FindAll returns every wikilink in text.
func FindAll(text string) []Match {
	var out []Match
	for m := range All(text) {
		out = append(out, m)
	}
	return out
}

// Titles returns the distinct titles referenced in text, compared by Key,
// in order of first occurrence. The first spelling seen is kept.
func Titles(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for m := range All(text) {
		k := Key(m.Title)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m.Title)
	}
	return out
}

// Key normalizes a title for lookup: surrounding whitespace trimmed, lower-cased.
func Key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Format renders title as a wikilink literal.
func Format(title string) string {
	return "[[" + title + "]]"
}

// Query is an open, not yet closed wikilink immediately before a cursor.
type Query struct {
	Text  string // characters typed after "[["
	Start int    // byte offset of the opening "[["
}

// ActiveQuery reports whether the cursor sits inside an unterminated "[[" on the
// current line, which is when autocomplete suggestions should be shown.
func ActiveQuery(text string, cursor int) (Query, bool) {
	if cursor < 0 || cursor > len(text) {
		return Query{}, false
	}
	before := text[:cursor]
	open := strings.LastIndex(before, "[[")
	if open < 0 {
		return Query{}, false
	}
	typed := before[open+2:]
	if strings.ContainsAny(typed, "]\n") {
		return Query{}, false
	}
	return Query{Text: typed, Start: open}, true
}

// Complete replaces the open query in text with a full [[title]] link and
// returns the new text and the cursor position just after the link.
// A "]]" already typed right after the cursor is absorbed.
func Complete(text string, q Query, cursor int, title string) (string, int) {
	if q.Start < 0 || q.Start > len(text) || cursor < q.Start || cursor > len(text) {
		return text, cursor
	}
	rest := text[cursor:]
	rest = strings.TrimPrefix(rest, "]]")
	link := Format(title)
	return text[:q.Start] + link + rest, q.Start + len(link)
}
