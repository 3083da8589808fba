package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
)

// FormatTimeSince renders "Last saved N <unit>(s) ago" for t as seen at now.
// It returns "" for the zero time.
func FormatTimeSince(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	secs := max(int(now.Sub(t)/time.Second), 0)
	unit, n := "second", secs
	switch mins := secs / 60; {
	case secs < 60:
	case mins < 60:
		unit, n = "minute", mins
	case mins/60 < 24:
		unit, n = "hour", mins/60
	case mins/60/24 < 7:
		unit, n = "day", mins/60/24
	default:
		unit, n = "week", mins/60/24/7
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("Last saved %d %s ago", n, unit)
}

// PermissionLabel is the badge text for a permission level.
func PermissionLabel(p model.Permission) string {
	switch p {
	case model.PermissionView:
		return "View Only"
	case model.PermissionEdit:
		return "Can Edit"
	case model.PermissionAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// MarkLinks rewrites the links of content for display: resolved links in
// bold, broken links struck through. tokens must come from content.
func MarkLinks(content string, tokens []linkgraph.Token) string {
	var sb strings.Builder
	last := 0
	for _, tok := range tokens {
		if tok.Start < last || tok.End > len(content) {
			continue
		}
		sb.WriteString(content[last:tok.Start])
		if tok.Status == linkgraph.Broken {
			sb.WriteString("~~" + tok.Literal + "~~")
		} else {
			sb.WriteString("**" + tok.Literal + "**")
		}
		last = tok.End
	}
	sb.WriteString(content[last:])
	return sb.String()
}

// NoteView is everything `show` prints about a note.
type NoteView struct {
	Note       model.Note
	Tokens     []linkgraph.Token
	Backlinks  []model.Note
	Permission model.Permission
	Owned      bool
	Now        time.Time
}

// RenderNote renders a note for the terminal: title, tags, content with
// link states marked, backlinks and the last saved time.
func RenderNote(v NoteView, width int) (string, error) {
	var sb strings.Builder
	sb.WriteString(Title(v.Note.Title))
	if !v.Owned {
		sb.WriteString("  " + Muted.Render("["+PermissionLabel(v.Permission)+"]"))
	}
	sb.WriteString("\n")
	if len(v.Note.Tags) > 0 {
		tags := make([]string, len(v.Note.Tags))
		for i, t := range v.Note.Tags {
			tags[i] = "#" + t
		}
		sb.WriteString(Muted.Render(strings.Join(tags, " ")) + "\n")
	}

	body, err := RenderMarkdown(MarkLinks(v.Note.Content, v.Tokens), width)
	if err != nil {
		return "", err
	}
	sb.WriteString(body)

	if len(v.Backlinks) > 0 {
		sb.WriteString("\n" + Header("Backlinks") + " " + Count(len(v.Backlinks), "note", "notes") + "\n")
		for _, n := range v.Backlinks {
			sb.WriteString("  ← " + Accent.Render(displayTitle(n.Title)) + "  " + Muted.Render(n.ID) + "\n")
		}
	}

	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}
	if saved := FormatTimeSince(v.Note.UpdatedAt.Time, now); saved != "" {
		sb.WriteString("\n" + Hint(saved) + "\n")
	}
	return sb.String(), nil
}

func displayTitle(t string) string {
	if t == "" {
		return "Untitled"
	}
	return t
}
