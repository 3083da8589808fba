package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/editor"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/syncer"
	"github.com/aidanlsb/dendrite/internal/ui"
	"github.com/aidanlsb/dendrite/internal/watcher"
)

// watchDatabase pushes writes made by other processes to this process's
// subscribers, then runs each of also. It runs until ctx is done.
func watchDatabase(ctx context.Context, db *store.SQLite, also ...func(context.Context) error) {
	w, err := watcher.New(watcher.Config{
		DatabasePath: db.Path(),
		Logger:       logger,
		OnChange: func(ctx context.Context) error {
			if err := db.Refresh(ctx); err != nil {
				return err
			}
			for _, fn := range also {
				if err := fn(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		logger.Warn("database watcher disabled", "error", err)
		return
	}
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("database watcher stopped", "error", err)
		}
	}()
}

// WatchEvent is one line of `watch --json` output.
type WatchEvent struct {
	Event   string      `json:"event"`
	Status  string      `json:"status,omitempty"`
	Note    *model.Note `json:"note,omitempty"`
	Message string      `json:"message,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch <note>",
	Short: "Follow live changes to a note",
	Long: `Subscribes to a note and prints it again whenever it changes, including
changes made by other accounts the note is shared with. Stops on Ctrl-C or
when the note is deleted.

With --json each change is printed as one JSON object per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}

		events := make(chan WatchEvent, 16)
		done := make(chan struct{})
		emit := func(ev WatchEvent) {
			select {
			case events <- ev:
			case <-done:
			}
		}
		sess, err := editor.Open(s.ws, n.ID,
			editor.WithLogger(logger),
			editor.WithSync(s.db,
				syncer.OnStatus(func(st syncer.Status) {
					emit(WatchEvent{Event: "status", Status: st.String()})
				}),
				syncer.OnError(func(err error) {
					emit(WatchEvent{Event: "error", Message: err.Error()})
				}),
			),
			editor.OnRemote(func(n model.Note, deleted bool) {
				if deleted {
					emit(WatchEvent{Event: "deleted"})
					return
				}
				emit(WatchEvent{Event: "note", Note: &n})
			}),
		)
		if err != nil {
			close(done)
			return handleError(err, "")
		}
		defer sess.Close()
		defer close(done)
		watchDatabase(ctx, s.db)

		if !isJSONOutput() {
			fmt.Println(ui.Hint("Watching " + n.Title + " (Ctrl-C to stop)"))
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				printWatchEvent(s, ev)
				switch ev.Event {
				case "deleted":
					return nil
				case "error":
					if isJSONOutput() {
						return errReported
					}
					return errors.New(ev.Message)
				}
			}
		}
	},
}

func printWatchEvent(s *session, ev WatchEvent) {
	if isJSONOutput() {
		writeJSONLine(ev)
		return
	}
	switch ev.Event {
	case "status":
		fmt.Println(ui.Hint("[" + ev.Status + "]"))
	case "note":
		out, err := ui.RenderNote(ui.NoteView{
			Note:       *ev.Note,
			Tokens:     s.ws.Tokens(ev.Note.Content),
			Backlinks:  s.ws.Backlinks(ev.Note.ID),
			Permission: s.ws.Permission(ev.Note.ID),
			Owned:      s.ws.IsOwner(ev.Note.ID),
			Now:        time.Now(),
		}, terminalWidth())
		if err != nil {
			logger.Warn("render failed", "note", ev.Note.ID, "error", err)
			return
		}
		fmt.Print(out)
		fmt.Println(ui.Muted.Render("────"))
	case "deleted":
		fmt.Println(ui.Warning("The note was deleted."))
	case "error":
		fmt.Println(ui.Error("Sync failed: " + ev.Message))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
