package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/export"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var (
	exportFormatFlag string
	exportOwnedFlag  bool
)

var exportCmd = &cobra.Command{
	Use:   "export <dir> [note...]",
	Short: "Write notes to files",
	Long: `Writes notes into a directory. The default markdown format writes one
file per note and carries id, title, tags and links in YAML frontmatter. The html
format writes a single index.html with one section per note and links
turned into anchors.

Without note arguments every visible note is exported.

Examples:
  dendrite export ./backup
  dendrite export ./site --format html --owned
  dendrite export ./out "Project plan"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormatFlag != "md" && exportFormatFlag != "html" {
			return handleErrorMsg(errcode.InvalidInput, fmt.Sprintf("unknown format %q", exportFormatFlag), "Use --format md or --format html")
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		var notes []model.Note
		if len(args) > 1 {
			for _, arg := range args[1:] {
				n, err := resolveNoteArg(s.ws, arg)
				if err != nil {
					return err
				}
				notes = append(notes, n)
			}
		} else {
			for _, n := range s.ws.Notes() {
				if !exportOwnedFlag || s.ws.IsOwner(n.ID) {
					notes = append(notes, n)
				}
			}
		}

		dir := args[0]
		resolve := s.ws.ResolveFunc()
		var files []export.File
		if exportFormatFlag == "md" {
			files, err = export.WriteMarkdown(dir, notes, resolve)
		} else {
			var f export.File
			f, err = export.WriteHTML(dir, notes, resolve)
			files = []export.File{f}
		}
		if err != nil {
			return handleErrorCode(errcode.FileWriteError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]any{"dir": dir, "format": exportFormatFlag, "files": files}, &Meta{Count: len(files)})
			return nil
		}
		fmt.Println(ui.Successf("Exported %s to %s", ui.Count(len(notes), "note", "notes"), dir))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "md", "Output format: md or html")
	exportCmd.Flags().BoolVar(&exportOwnedFlag, "owned", false, "Only export notes you own")
	rootCmd.AddCommand(exportCmd)
}
