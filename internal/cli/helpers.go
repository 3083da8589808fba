package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/ui"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

// resolveNoteArg finds a visible note by id, then by title.
func resolveNoteArg(ws *workspace.Workspace, arg string) (model.Note, error) {
	if n, ok := ws.Get(arg); ok {
		return n, nil
	}
	if n, ok := ws.GetNoteByTitle(arg); ok {
		return n, nil
	}
	return model.Note{}, handleError(fmt.Errorf("%w: %s", workspace.ErrNoteNotFound, arg),
		"Run 'dendrite list' to see your notes")
}

// NoteSummary is the JSON shape of a note in listings.
type NoteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Owned     bool      `json:"owned"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summaries(ws *workspace.Workspace, notes []model.Note) []NoteSummary {
	out := make([]NoteSummary, len(notes))
	for i, n := range notes {
		out[i] = NoteSummary{
			ID:        n.ID,
			Title:     n.Title,
			Tags:      n.Tags,
			Owned:     ws.IsOwner(n.ID),
			UpdatedAt: n.UpdatedAt.Time,
		}
	}
	return out
}

func printNoteTable(ws *workspace.Workspace, notes []model.Note) {
	if len(notes) == 0 {
		fmt.Println(ui.Hint("No notes."))
		return
	}
	t := ui.NewTable("ID", "TITLE", "TAGS", "UPDATED")
	for _, n := range notes {
		title := n.Title
		if !ws.IsOwner(n.ID) {
			title += " " + ui.Hint("(shared)")
		}
		updated := ""
		if !n.UpdatedAt.IsZero() {
			updated = n.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		t.AddRow(ui.Hint(n.ID), title, strings.Join(n.Tags, ", "), updated)
	}
	fmt.Print(t.String())
}

func terminalWidth() int {
	return ui.DetectDisplay(os.Stdout).Width
}
