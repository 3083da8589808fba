// Package projection derives ordered, filtered views of a note set for
// presentation. Nothing here is persisted and inputs are never mutated.
package projection

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/aidanlsb/dendrite/internal/model"
)

// SortKey selects the list ordering.
type SortKey string

const (
	SortDateCreated SortKey = "date-created"
	SortTitleAsc    SortKey = "title-asc"
	SortMostTags    SortKey = "most-tags"
)

// ErrUnknownSort is returned by ParseSortKey for names it does not know.
var ErrUnknownSort = errors.New("unknown sort")

// SortKeys lists the accepted keys in display order.
var SortKeys = []SortKey{SortDateCreated, SortTitleAsc, SortMostTags}

// ParseSortKey parses a sort key name. The empty string is date-created.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortDateCreated, nil
	}
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(SortKeys, k) {
		return k, nil
	}
	return "", fmt.Errorf("%w %q (expected date-created, title-asc or most-tags)", ErrUnknownSort, s)
}

func (k SortKey) String() string { return string(k) }

// Set implements pflag.Value.
func (k *SortKey) Set(s string) error {
	parsed, err := ParseSortKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Type implements pflag.Value.
func (k *SortKey) Type() string { return "sort" }

// Options are the projection inputs besides the notes themselves.
type Options struct {
	Sort   SortKey
	Search string
	// Tags is an OR filter; empty matches every note.
	Tags []string
}

// Apply filters and sorts notes. The returned slice is a new slice; notes is
// left untouched. Ties keep the input order.
func Apply(notes []model.Note, opts Options) []model.Note {
	search := strings.ToLower(opts.Search)
	tags := model.NormalizeTags(opts.Tags)

	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if search != "" && !matchesSearch(n, search) {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(n, tags) {
			continue
		}
		out = append(out, n)
	}

	switch opts.Sort {
	case SortTitleAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Title < out[j].Title
		})
	case SortMostTags:
		sort.SliceStable(out, func(i, j int) bool {
			return len(out[i].Tags) > len(out[j].Tags)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return lastModified(out[i]).After(lastModified(out[j]))
		})
	}
	return out
}

// Palette returns the notes whose title or content contains query, in input
// order. An empty query yields no results.
func Palette(notes []model.Note, query string) []model.Note {
	out := make([]model.Note, 0)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out
	}
	for _, n := range notes {
		if matchesSearch(n, q) {
			out = append(out, n)
		}
	}
	return out
}

func matchesSearch(n model.Note, lowered string) bool {
	return strings.Contains(strings.ToLower(n.Title), lowered) ||
		strings.Contains(strings.ToLower(n.Content), lowered)
}

func hasAnyTag(n model.Note, tags []string) bool {
	for _, t := range tags {
		if n.HasTag(t) {
			return true
		}
	}
	return false
}

func lastModified(n model.Note) time.Time {
	if !n.UpdatedAt.IsZero() {
		return n.UpdatedAt.Time
	}
	return n.CreatedAt.OrEpoch()
}
