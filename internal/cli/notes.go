package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/editor"
	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/resolver"
	"github.com/aidanlsb/dendrite/internal/ui"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

var (
	newContentFlag string
	newTagsFlag    []string
	newEditFlag    bool

	listSortFlag   projection.SortKey
	listSearchFlag string
	listTagFlags   []string

	editTitleFlag   string
	editContentFlag string
	editTagsFlag    []string

	deleteForceFlag bool
	linkAtFlag      int
	linkLimitFlag   int
)

// readContentArg treats "-" as a request to read content from stdin.
func readContentArg(v string) (string, error) {
	if v != "-" {
		return v, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// warnBrokenLinks reports links in n that resolve to nothing visible.
func warnBrokenLinks(ws *workspace.Workspace, n model.Note) {
	var broken []string
	for _, tok := range ws.Tokens(n.Content) {
		if tok.Status == linkgraph.Broken {
			broken = append(broken, "[["+tok.Title+"]]")
		}
	}
	if len(broken) > 0 {
		warn(Warning{
			Code:    WarnBrokenLinks,
			Message: "unresolved links: " + strings.Join(broken, ", "),
			NoteID:  n.ID,
		})
	}
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a note",
	Long: `Creates a note owned by the logged-in user.

Links written as [[Title]] resolve against the titles of notes you can see.

Examples:
  dendrite new "Project plan" --content "See [[Ideas]]" --tag work
  echo "body" | dendrite new "From stdin" --content -
  dendrite new "Long note" --edit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		content, err := readContentArg(newContentFlag)
		if err != nil {
			return handleErrorCode(errcode.InvalidInput, err, "")
		}
		draft := workspace.Draft{Title: args[0], Content: content, Tags: newTagsFlag}
		if newEditFlag {
			if draft, err = editor.EditExternal(ctx, cfg.GetEditor(), draft); err != nil {
				return handleErrorCode(errcode.InvalidInput, err, "Set 'editor' in config.toml or $EDITOR")
			}
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.ws.Create(ctx, draft)
		if err != nil {
			return handleError(err, "")
		}
		warnBrokenLinks(s.ws, n)
		if isJSONOutput() {
			outputSuccess(n, nil)
			return nil
		}
		fmt.Println(ui.Successf("Created %s %s", ui.Title(n.Title), ui.Hint(n.ID)))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List visible notes",
	Long: `Lists your notes and the notes shared with you.

Examples:
  dendrite list --sort title-asc
  dendrite list --tag work --tag ideas
  dendrite list --search plan`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		key := listSortFlag
		if !cmd.Flags().Changed("sort") && cfg.DefaultSort != "" {
			if key, err = projection.ParseSortKey(cfg.DefaultSort); err != nil {
				return handleErrorCode(errcode.ConfigInvalid, err, "Fix default_sort in config.toml")
			}
		}
		notes := s.ws.Project(projection.Options{Sort: key, Search: listSearchFlag, Tags: listTagFlags})
		if isJSONOutput() {
			outputSuccess(summaries(s.ws, notes), &Meta{Count: len(notes), QueryTimeMs: time.Since(start).Milliseconds()})
			return nil
		}
		printNoteTable(s.ws, notes)
		return nil
	},
}

// NoteDetailJSON is the JSON output of show.
type NoteDetailJSON struct {
	Note       model.Note        `json:"note"`
	Permission model.Permission  `json:"permission"`
	Owned      bool              `json:"owned"`
	Backlinks  []NoteSummary     `json:"backlinks"`
	Tokens     []linkgraph.Token `json:"tokens"`
}

var showCmd = &cobra.Command{
	Use:   "show <note>",
	Short: "Show a note with its links and backlinks",
	Long: `Shows a note by id or title. Resolved links are highlighted and
unresolved ones struck through.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		tokens := s.ws.Tokens(n.Content)
		backlinks := s.ws.Backlinks(n.ID)
		if isJSONOutput() {
			if tokens == nil {
				tokens = []linkgraph.Token{}
			}
			outputSuccess(NoteDetailJSON{
				Note:       n,
				Permission: s.ws.Permission(n.ID),
				Owned:      s.ws.IsOwner(n.ID),
				Backlinks:  summaries(s.ws, backlinks),
				Tokens:     tokens,
			}, nil)
			return nil
		}
		out, err := ui.RenderNote(ui.NoteView{
			Note:       n,
			Tokens:     tokens,
			Backlinks:  backlinks,
			Permission: s.ws.Permission(n.ID),
			Owned:      s.ws.IsOwner(n.ID),
		}, terminalWidth())
		if err != nil {
			return handleErrorCode(errcode.Internal, err, "")
		}
		fmt.Print(out)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <note>",
	Short: "Edit a note",
	Long: `Edits a note by id or title. With --title, --content or --tag the
fields are replaced directly; without them the note opens in your editor.

Examples:
  dendrite edit "Project plan" --content "Updated body"
  dendrite edit "Project plan" --tag work --tag q3
  dendrite edit abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		sess, err := editor.Open(s.ws, n.ID, editor.WithLogger(logger))
		if err != nil {
			return handleError(err, "")
		}
		defer sess.Close()

		flags := cmd.Flags()
		if flags.Changed("title") || flags.Changed("content") || flags.Changed("tag") {
			if flags.Changed("title") {
				sess.SetTitle(editTitleFlag)
			}
			if flags.Changed("content") {
				content, err := readContentArg(editContentFlag)
				if err != nil {
					return handleErrorCode(errcode.InvalidInput, err, "")
				}
				sess.SetContent(content)
			}
			if flags.Changed("tag") {
				sess.SetTags(editTagsFlag)
			}
		} else {
			edited, err := editor.EditExternal(ctx, cfg.GetEditor(), sess.Draft())
			if err != nil {
				return handleErrorCode(errcode.InvalidInput, err, "Set 'editor' in config.toml or $EDITOR")
			}
			sess.SetTitle(edited.Title)
			sess.SetContent(edited.Content)
			sess.SetTags(edited.Tags)
		}

		if !sess.Dirty() {
			if isJSONOutput() {
				outputSuccess(n, nil)
				return nil
			}
			fmt.Println(ui.Hint("No changes."))
			return nil
		}
		saved, err := sess.Save(ctx)
		if err != nil {
			return handleError(err, "")
		}
		warnBrokenLinks(s.ws, saved)
		if isJSONOutput() {
			outputSuccess(saved, nil)
			return nil
		}
		fmt.Println(ui.Successf("Saved %s", ui.Title(saved.Title)))
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <note> [title]",
	Short: "Insert a [[link]] into a note",
	Long: `Inserts [[title]] into a note and saves it. The target is resolved by
title and created when no visible note has it.

By default the link is appended; --at places it at a byte offset. If the
text before the offset is an unfinished [[query, the query is completed.
Without a title the completions for that query are listed instead.

Examples:
  dendrite link "Project plan" "Ideas"
  dendrite link "Project plan" --at 42
  dendrite link "Project plan" "Ideas" --at 42`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		sess, err := editor.Open(s.ws, n.ID, editor.WithLogger(logger))
		if err != nil {
			return handleError(err, "")
		}
		defer sess.Close()

		cursor := len(sess.Draft().Content)
		if cmd.Flags().Changed("at") {
			cursor = linkAtFlag
		}
		if len(args) == 1 {
			return printSuggestions(s, sess.Suggestions(cursor, linkLimitFlag))
		}
		ins, linkErr := sess.AcceptSuggestion(ctx, cursor, args[1])
		if linkErr != nil {
			warn(Warning{Code: WarnLinkTarget, Message: linkErr.Error(), NoteID: n.ID})
		}
		saved, err := sess.Save(ctx)
		if err != nil {
			return handleError(err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]any{
				"note":      saved,
				"target_id": ins.TargetID,
				"cursor":    ins.Cursor,
			}, nil)
			return nil
		}
		fmt.Println(ui.Successf("Linked %s to %s", ui.Title(saved.Title), ui.Title(args[1])))
		return nil
	},
}

func printSuggestions(s *session, sugg []resolver.Suggestion) error {
	if sugg == nil {
		return handleErrorMsg(errcode.InvalidInput, "no unfinished [[link at the cursor", "Pass a title, or --at just after an open [[")
	}
	if isJSONOutput() {
		outputSuccess(sugg, &Meta{Count: len(sugg)})
		return nil
	}
	if len(sugg) == 0 {
		fmt.Println(ui.Hint("No matching titles."))
		return nil
	}
	for _, sg := range sugg {
		fmt.Printf("[[%s]]  %s\n", sg.Title, ui.Hint(noteOrigin(s.ws.IsOwner(sg.NoteID))))
	}
	return nil
}

var deleteCmd = &cobra.Command{
	Use:     "delete <note>",
	Aliases: []string{"rm"},
	Short:   "Delete a note you own",
	Long: `Deletes a note by id or title. Links to it from other notes are left
in place and show as unresolved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		if backlinks := s.ws.Backlinks(n.ID); len(backlinks) > 0 {
			warn(Warning{
				Code:    WarnBacklinks,
				Message: fmt.Sprintf("%s links here; those links will show as unresolved", ui.Count(len(backlinks), "note", "notes")),
				NoteID:  n.ID,
			})
		}
		if !deleteForceFlag {
			if !interactive() {
				return handleErrorMsg(errcode.ConfirmationRequired,
					fmt.Sprintf("refusing to delete %q without confirmation", n.Title), "Pass --force")
			}
			if !promptForConfirm(fmt.Sprintf("Delete %q?", n.Title)) {
				fmt.Println(ui.Hint("Cancelled."))
				return nil
			}
		}
		if err := s.ws.Delete(ctx, n.ID); err != nil {
			return handleError(err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]string{"deleted": n.ID}, nil)
			return nil
		}
		fmt.Println(ui.Successf("Deleted %s", ui.Title(n.Title)))
		return nil
	},
}

var duplicateCmd = &cobra.Command{
	Use:   "duplicate <note>",
	Short: "Copy a note into a new note you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		dup, err := s.ws.Duplicate(ctx, n.ID)
		if err != nil {
			return handleError(err, "")
		}
		if isJSONOutput() {
			outputSuccess(dup, nil)
			return nil
		}
		fmt.Println(ui.Successf("Created %s %s", ui.Title(dup.Title), ui.Hint(dup.ID)))
		return nil
	},
}

func init() {
	newCmd.Flags().StringVarP(&newContentFlag, "content", "c", "", "Note content (- reads stdin)")
	newCmd.Flags().StringSliceVarP(&newTagsFlag, "tag", "t", nil, "Tag (repeatable)")
	newCmd.Flags().BoolVarP(&newEditFlag, "edit", "e", false, "Open the note in your editor before creating it")

	listSortFlag = projection.SortDateCreated
	listCmd.Flags().Var(&listSortFlag, "sort", "Sort order: date-created, title-asc or most-tags")
	listCmd.Flags().StringVarP(&listSearchFlag, "search", "s", "", "Only notes whose title or content contains this text")
	listCmd.Flags().StringSliceVarP(&listTagFlags, "tag", "t", nil, "Only notes with any of these tags (repeatable)")

	editCmd.Flags().StringVar(&editTitleFlag, "title", "", "New title")
	editCmd.Flags().StringVarP(&editContentFlag, "content", "c", "", "New content (- reads stdin)")
	editCmd.Flags().StringSliceVarP(&editTagsFlag, "tag", "t", nil, "Replace tags (repeatable)")

	deleteCmd.Flags().BoolVarP(&deleteForceFlag, "force", "f", false, "Delete without confirmation")
	linkCmd.Flags().IntVar(&linkAtFlag, "at", 0, "Byte offset to insert the link at (default: end of content)")
	linkCmd.Flags().IntVarP(&linkLimitFlag, "limit", "n", 10, "Maximum number of completions listed without a title")

	rootCmd.AddCommand(newCmd, listCmd, showCmd, editCmd, linkCmd, deleteCmd, duplicateCmd)
}
