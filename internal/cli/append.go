package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/editor"
	"github.com/aidanlsb/dendrite/internal/permission"
	"github.com/aidanlsb/dendrite/internal/ui"
)

// appendLine adds line to content on a line of its own.
func appendLine(content, line string) string {
	if content == "" || strings.HasSuffix(content, "\n") {
		return content + line
	}
	return content + "\n" + line
}

// readLines sends each line of r on the returned channel, which is closed
// at EOF. Read errors end the stream and are logged.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			lines <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			logger.Warn("reading stdin failed", "error", err)
		}
	}()
	return lines
}

var appendCmd = &cobra.Command{
	Use:   "append <note>",
	Short: "Stream stdin onto the end of a note",
	Long: `Appends each line read from stdin to a note. While input is streaming the
note is auto-saved every autosave_interval (config.toml); whatever is left
is saved when input ends or on Ctrl-C.

Examples:
  tail -f build.log | dendrite append "Build log"
  echo "- call [[Alice]]" | dendrite append "Today"`,
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
		if err := permission.CheckEdit(s.ws.Permission(n.ID)); err != nil {
			return handleError(err, "Ask the owner for edit access")
		}
		sess, err := editor.Open(s.ws, n.ID,
			editor.WithLogger(logger),
			editor.WithAutosaveInterval(cfg.GetAutosaveInterval()),
		)
		if err != nil {
			return handleError(err, "")
		}
		defer sess.Close()
		sess.StartAutosave(ctx)

		count := 0
		lines := readLines(os.Stdin)
	read:
		for {
			select {
			case <-ctx.Done():
				break read
			case line, ok := <-lines:
				if !ok {
					break read
				}
				sess.SetContent(appendLine(sess.Draft().Content, line))
				count++
			}
		}

		saved, _ := s.ws.Get(n.ID)
		if sess.Dirty() {
			if saved, err = sess.Save(context.WithoutCancel(ctx)); err != nil {
				return handleError(err, "")
			}
		}
		warnBrokenLinks(s.ws, saved)
		if isJSONOutput() {
			outputSuccess(map[string]any{"note": saved, "lines": count}, nil)
			return nil
		}
		if count == 0 {
			fmt.Println(ui.Hint("No input."))
			return nil
		}
		fmt.Println(ui.Successf("Appended %s to %s", ui.Count(count, "line", "lines"), ui.Title(saved.Title)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(appendCmd)
}
