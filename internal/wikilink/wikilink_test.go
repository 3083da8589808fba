package wikilink

import (
	"reflect"
	"testing"
)

func TestFindAll(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantTitles []string
	}{
		{name: "no links", in: "no links here", wantTitles: nil},
		{name: "adjacent", in: "[[A]][[B]]", wantTitles: []string{"A", "B"}},
		{name: "unterminated", in: "[[unterminated", wantTitles: nil},
		{name: "empty title", in: "[[]]", wantTitles: nil},
		{name: "verbatim spacing", in: "see [[ Foo Bar ]] now", wantTitles: []string{" Foo Bar "}},
		{name: "stops at first close", in: "[[a]]b]]", wantTitles: []string{"a"}},
		{name: "unterminated then valid", in: "[[open and [[Closed]]", wantTitles: []string{"open and [[Closed"}},
		{name: "repeated", in: "[[x]] and [[X]] and [[x]]", wantTitles: []string{"x", "X", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range FindAll(tt.in) {
				got = append(got, m.Title)
			}
			if !reflect.DeepEqual(got, tt.wantTitles) {
				t.Fatalf("titles=%q, want %q", got, tt.wantTitles)
			}
		})
	}
}

func TestOffsets(t *testing.T) {
	in := "See [[B]] then [[Cé]]"
	m := FindAll(in)
	if len(m) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(m))
	}
	for _, match := range m {
		if in[match.Start:match.End] != match.Literal {
			t.Fatalf("literal %q does not match source slice %q", match.Literal, in[match.Start:match.End])
		}
	}
	if m[0].Start != 4 || m[0].End != 9 {
		t.Fatalf("first match offsets = %d..%d, want 4..9", m[0].Start, m[0].End)
	}
}

func TestAllIsRestartable(t *testing.T) {
	seq := All("[[a]] [[b]] [[c]]")

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if first, second := count(), count(); first != 3 || second != 3 {
		t.Fatalf("counts = %d, %d; want 3, 3", first, second)
	}

	// Early exit must not panic or leak.
	for m := range seq {
		if m.Title != "a" {
			t.Fatalf("first title = %q", m.Title)
		}
		break
	}
}

func TestTitlesDedupesByKey(t *testing.T) {
	got := Titles("[[Foo]] [[bar]] [[ foo ]] [[BAR]] [[baz]]")
	want := []string{"Foo", "bar", "baz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Titles=%q, want %q", got, want)
	}
}

func TestKey(t *testing.T) {
	if got := Key("  Hello World "); got != "hello world" {
		t.Fatalf("Key=%q", got)
	}
}

func TestActiveQuery(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int
		want   Query
		wantOK bool
	}{
		{name: "open link", text: "See [[Fo", cursor: 8, want: Query{Text: "Fo", Start: 4}, wantOK: true},
		{name: "just opened", text: "[[", cursor: 2, want: Query{Text: "", Start: 0}, wantOK: true},
		{name: "closed link", text: "See [[Foo]] x", cursor: 13, wantOK: false},
		{name: "newline breaks query", text: "[[Foo\nbar", cursor: 9, wantOK: false},
		{name: "no brackets", text: "plain", cursor: 5, wantOK: false},
		{name: "cursor out of range", text: "[[a", cursor: 10, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ActiveQuery(tt.text, tt.cursor)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("query=%+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	text := "See [[fo and more"
	q, ok := ActiveQuery(text, 8)
	if !ok {
		t.Fatal("expected active query")
	}
	got, cursor := Complete(text, q, 8, "Foo")
	if got != "See [[Foo]] and more" {
		t.Fatalf("text=%q", got)
	}
	if cursor != len("See [[Foo]]") {
		t.Fatalf("cursor=%d", cursor)
	}

	// An auto-closed "]]" after the cursor is absorbed rather than duplicated.
	text = "x [[fo]]"
	q, _ = ActiveQuery(text, 6)
	got, _ = Complete(text, q, 6, "Foo")
	if got != "x [[Foo]]" {
		t.Fatalf("text=%q", got)
	}
}
