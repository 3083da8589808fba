package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/resolver"
)

func TestFormatTimeSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "Last saved 0 seconds ago"},
		{time.Second, "Last saved 1 second ago"},
		{59 * time.Second, "Last saved 59 seconds ago"},
		{60 * time.Second, "Last saved 1 minute ago"},
		{125 * time.Second, "Last saved 2 minutes ago"},
		{time.Hour, "Last saved 1 hour ago"},
		{23 * time.Hour, "Last saved 23 hours ago"},
		{24 * time.Hour, "Last saved 1 day ago"},
		{6 * 24 * time.Hour, "Last saved 6 days ago"},
		{7 * 24 * time.Hour, "Last saved 1 week ago"},
		{30 * 24 * time.Hour, "Last saved 4 weeks ago"},
		{-time.Minute, "Last saved 0 seconds ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatTimeSince(now.Add(-tt.ago), now); got != tt.want {
				t.Fatalf("FormatTimeSince(-%v) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
	if got := FormatTimeSince(time.Time{}, now); got != "" {
		t.Fatalf("zero time: got %q", got)
	}
}

func TestPermissionLabel(t *testing.T) {
	tests := map[model.Permission]string{
		model.PermissionView:  "View Only",
		model.PermissionEdit:  "Can Edit",
		model.PermissionAdmin: "Admin",
		model.PermissionNone:  "Unknown",
	}
	for p, want := range tests {
		if got := PermissionLabel(p); got != want {
			t.Errorf("PermissionLabel(%v) = %q, want %q", p, got, want)
		}
	}
}

func TestMarkLinks(t *testing.T) {
	notes := []model.Note{{ID: "b", Title: "B"}}
	content := "see [[B]] and [[Gone]]."
	tokens := linkgraph.Classify(content, func(title string) (model.Note, bool) {
		return resolver.ResolveIn(notes, title)
	})
	got := MarkLinks(content, tokens)
	want := "see **[[B]]** and ~~[[Gone]]~~."
	if got != want {
		t.Fatalf("MarkLinks() = %q, want %q", got, want)
	}
	if MarkLinks("plain", nil) != "plain" {
		t.Fatal("content without links changed")
	}
}

func TestNormalizeAccentColor(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", false},
		{"none", "", false},
		{"39", "39", true},
		{" 244 ", "244", true},
		{"256", "", false},
		{"#7AA2F7", "#7aa2f7", true},
		{"#abc", "#aabbcc", true},
		{"#zzzzzz", "", false},
		{"blue", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeAccentColor(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("normalizeAccentColor(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestConfigureTheme(t *testing.T) {
	orig, origAccent, origBold := accentColor, Accent, AccentBold
	t.Cleanup(func() { accentColor, Accent, AccentBold = orig, origAccent, origBold })

	ConfigureTheme("39")
	if c, ok := AccentColor(); !ok || c != "39" {
		t.Fatalf("AccentColor() = %q, %v", c, ok)
	}
	ConfigureTheme("off")
	if _, ok := AccentColor(); ok {
		t.Fatal("accent should be disabled")
	}
	ConfigureTheme("")
	if c, _ := AccentColor(); c != defaultAccent {
		t.Fatalf("empty accent should restore default, got %q", c)
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable("TITLE", "ID")
	if tbl.String() != "" {
		t.Fatal("empty table should render nothing")
	}
	tbl.AddRow("Short", "1")
	tbl.AddRow("A longer title", "2", "ignored")
	lines := strings.Split(strings.TrimSuffix(tbl.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "Short           1") {
		t.Fatalf("unaligned row: %q", lines[1])
	}
	if strings.Contains(lines[2], "ignored") {
		t.Fatalf("extra cell rendered: %q", lines[2])
	}
}

func TestRenderNote(t *testing.T) {
	now := time.Now()
	n := model.Note{ID: "a", Title: "Alpha", Content: "hello [[Missing]]", Tags: []string{"go"}, UpdatedAt: model.At(now.Add(-2 * time.Minute))}
	out, err := RenderNote(NoteView{
		Note:       n,
		Tokens:     linkgraph.Classify(n.Content, func(string) (model.Note, bool) { return model.Note{}, false }),
		Backlinks:  []model.Note{{ID: "b", Title: "Beta"}},
		Permission: model.PermissionView,
		Now:        now,
	}, 80)
	if err != nil {
		t.Fatalf("RenderNote() error = %v", err)
	}
	for _, want := range []string{"Alpha", "View Only", "#go", "Missing", "Backlinks", "Beta", "Last saved 2 minutes ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered note missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMarkdownTrailingNewline(t *testing.T) {
	out, err := RenderMarkdown("# Heading", 0)
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected a single trailing newline, got %q", out)
	}
}
