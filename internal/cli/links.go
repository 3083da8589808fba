package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var backlinksCmd = &cobra.Command{
	Use:   "backlinks <note>",
	Short: "Show the notes that link to a note",
	Long: `Shows every visible note whose links point at the given note.

Examples:
  dendrite backlinks "Project plan"
  dendrite backlinks abc123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		target, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		notes := s.ws.Backlinks(target.ID)
		if isJSONOutput() {
			outputSuccess(map[string]any{
				"target": target.ID,
				"items":  summaries(s.ws, notes),
			}, &Meta{Count: len(notes), QueryTimeMs: time.Since(start).Milliseconds()})
			return nil
		}
		fmt.Printf("%s %s\n", ui.Header("Backlinks to "+target.Title), ui.Count(len(notes), "note", "notes"))
		for _, n := range notes {
			fmt.Printf("  ← %s  %s\n", ui.Accent.Render(n.Title), ui.Hint(n.ID))
		}
		return nil
	},
}

// OutlinkJSON is one link occurrence in outlinks output.
type OutlinkJSON struct {
	Title    string `json:"title"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Status   string `json:"status"`
	TargetID string `json:"target_id,omitempty"`
}

var outlinksCmd = &cobra.Command{
	Use:   "outlinks <note>",
	Short: "Show the links a note makes",
	Long: `Lists each [[link]] in a note with what it resolves to. Unresolved links
are shown as broken.`,
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
		if isJSONOutput() {
			items := make([]OutlinkJSON, len(tokens))
			for i, tok := range tokens {
				items[i] = OutlinkJSON{
					Title:    tok.Title,
					Start:    tok.Start,
					End:      tok.End,
					Status:   tok.Status.String(),
					TargetID: tok.TargetID,
				}
			}
			outputSuccess(map[string]any{"source": n.ID, "items": items}, &Meta{Count: len(items)})
			return nil
		}
		fmt.Printf("%s %s\n", ui.Header("Links from "+n.Title), ui.Count(len(tokens), "link", "links"))
		for _, tok := range tokens {
			if tok.Status == linkgraph.Resolved {
				fmt.Printf("  → %s  %s\n", ui.Accent.Render(tok.Title), ui.Hint(tok.TargetID))
			} else {
				fmt.Printf("  → %s  %s\n", ui.Broken.Render(tok.Title), ui.Hint("(unresolved)"))
			}
		}
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List every tag on visible notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		tags := s.ws.AllTags()
		if isJSONOutput() {
			outputSuccess(tags, &Meta{Count: len(tags)})
			return nil
		}
		counts := make(map[string]int, len(tags))
		for _, n := range s.ws.Notes() {
			for _, t := range n.Tags {
				counts[t]++
			}
		}
		t := ui.NewTable("TAG", "NOTES")
		for _, tag := range tags {
			t.AddRow("#"+tag, strconv.Itoa(counts[tag]))
		}
		fmt.Print(t.String())
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the link graph of visible notes",
	Long: `Prints every visible note with its backlink count and the notes it links
to. With --json the output is the node and edge lists used by graph views.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		g := s.ws.Graph()
		if isJSONOutput() {
			outputSuccess(g, &Meta{Count: len(g.Nodes)})
			return nil
		}
		titles := make(map[string]string, len(g.Nodes))
		for _, node := range g.Nodes {
			titles[node.ID] = node.Title
		}
		out := make(map[string][]string)
		for _, e := range g.Edges {
			out[e.Source] = append(out[e.Source], titles[e.Target])
		}
		for _, node := range g.Nodes {
			fmt.Printf("%s %s\n", ui.AccentBold.Render(node.Title), ui.Hint(fmt.Sprintf("(%d backlinks)", node.Backlinks)))
			for _, title := range out[node.ID] {
				fmt.Printf("  → %s\n", title)
			}
		}
		return nil
	},
}

var searchStdinFlag bool

// SearchResult is one line of `search --stdin --json` output.
type SearchResult struct {
	Query string        `json:"query"`
	Items []NoteSummary `json:"items"`
}

// debouncedQueries runs run for each query from lines that stays unchanged
// for window, and for the last query once lines is closed. A query equal to
// the one run before it is skipped. It returns when lines is closed or ctx
// is done.
func debouncedQueries(ctx context.Context, lines <-chan string, window time.Duration, run func(string)) {
	var (
		mu   sync.Mutex
		last string
		ran  bool
		done bool
	)
	fire := func(q string, final bool) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		done = final
		if ran && q == last {
			return
		}
		last, ran = q, true
		run(q)
	}

	d := projection.NewDebouncer(window, func(q string) { fire(q, false) })
	defer d.Stop()
	var (
		pending string
		got     bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-lines:
			if !ok {
				d.Stop()
				if got {
					fire(pending, true)
				}
				return
			}
			pending, got = q, true
			d.Input(q)
		}
	}
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find notes by title or content",
	Long: `Finds visible notes whose title or content contains the query, ignoring
case. An empty query matches nothing.

With --stdin every line read is a new query. Results are printed once the
input has been quiet for search_debounce (config.toml), and for the last
line when input ends; with --json each result set is one JSON line.

Examples:
  dendrite search plan
  my-picker | dendrite search --stdin --json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if searchStdinFlag {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if searchStdinFlag {
			debouncedQueries(ctx, readLines(os.Stdin), cfg.GetSearchDebounce(), func(q string) {
				notes := projection.Palette(s.ws.Notes(), q)
				if isJSONOutput() {
					writeJSONLine(SearchResult{Query: q, Items: summaries(s.ws, notes)})
					return
				}
				fmt.Printf("%s %s\n", ui.Header("Search: "+q), ui.Count(len(notes), "note", "notes"))
				printNoteTable(s.ws, notes)
			})
			return nil
		}

		notes := projection.Palette(s.ws.Notes(), args[0])
		if isJSONOutput() {
			outputSuccess(summaries(s.ws, notes), &Meta{Count: len(notes), QueryTimeMs: time.Since(start).Milliseconds()})
			return nil
		}
		if len(notes) == 0 {
			fmt.Println(ui.Hint("No matches."))
			return nil
		}
		printNoteTable(s.ws, notes)
		return nil
	},
}

var suggestLimitFlag int

var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Show link title completions for a partial title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sugg := s.ws.Resolver().Suggest(args[0], suggestLimitFlag)
		if isJSONOutput() {
			outputSuccess(sugg, &Meta{Count: len(sugg)})
			return nil
		}
		for _, sg := range sugg {
			fmt.Printf("[[%s]]  %s\n", sg.Title, ui.Hint(noteOrigin(s.ws.IsOwner(sg.NoteID))))
		}
		return nil
	},
}

func noteOrigin(owned bool) string {
	if owned {
		return "mine"
	}
	return "shared"
}

// collisionsCmd lists titles that more than one visible note carries. Links
// to such a title resolve to the first note in load order.
var collisionsCmd = &cobra.Command{
	Use:   "collisions",
	Short: "List titles shared by more than one visible note",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		cols := s.ws.Resolver().Collisions()
		if isJSONOutput() {
			outputSuccess(cols, &Meta{Count: len(cols)})
			return nil
		}
		if len(cols) == 0 {
			fmt.Println(ui.Hint("No duplicate titles."))
			return nil
		}
		for _, c := range cols {
			fmt.Println(ui.Title(c.Title))
			for i, id := range c.NoteIDs {
				n, _ := s.ws.Get(id)
				marker := " "
				if i == 0 {
					marker = "*"
				}
				fmt.Printf("  %s %s  %s\n", marker, ui.Hint(id), n.Title)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchStdinFlag, "stdin", false, "Read one query per line from stdin")
	suggestCmd.Flags().IntVarP(&suggestLimitFlag, "limit", "n", 10, "Maximum number of suggestions")
	rootCmd.AddCommand(backlinksCmd, outlinksCmd, tagsCmd, graphCmd, searchCmd, suggestCmd, collisionsCmd)
}
