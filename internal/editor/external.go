package editor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/dendrite/internal/workspace"
)

type header struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Compose renders d as a markdown file with a YAML header holding the title
// and tags.
func Compose(d workspace.Draft) ([]byte, error) {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	fm, err := yaml.Marshal(header{Title: d.Title, Tags: tags})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(d.Content)
	return buf.Bytes(), nil
}

// Parse reads a file written by Compose back into a draft. Text without a
// header is taken as content only.
func Parse(data []byte) (workspace.Draft, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return workspace.Draft{Content: text}, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	var fm, body string
	switch {
	case end >= 0:
		fm, body = rest[:end], rest[end+len("\n---\n"):]
	case strings.HasSuffix(rest, "\n---"):
		fm = strings.TrimSuffix(rest, "\n---")
	default:
		return workspace.Draft{}, fmt.Errorf("unterminated header")
	}

	var h header
	if err := yaml.Unmarshal([]byte(fm), &h); err != nil {
		return workspace.Draft{}, fmt.Errorf("invalid header: %w", err)
	}
	return workspace.Draft{Title: h.Title, Tags: h.Tags, Content: body}, nil
}

// EditExternal opens d in editorCmd and returns the edited draft once the
// editor exits. Commands containing spaces (e.g. "code --wait") run through
// the shell.
func EditExternal(ctx context.Context, editorCmd string, d workspace.Draft) (workspace.Draft, error) {
	if strings.TrimSpace(editorCmd) == "" {
		return workspace.Draft{}, fmt.Errorf("no editor configured (set 'editor' in config.toml or $EDITOR)")
	}

	data, err := Compose(d)
	if err != nil {
		return workspace.Draft{}, err
	}
	f, err := os.CreateTemp("", "dendrite-*.md")
	if err != nil {
		return workspace.Draft{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return workspace.Draft{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return workspace.Draft{}, err
	}

	var cmd *exec.Cmd
	if strings.Contains(editorCmd, " ") {
		cmd = exec.CommandContext(ctx, "sh", "-c", editorCmd+" "+shellQuote(path))
	} else {
		cmd = exec.CommandContext(ctx, editorCmd, path)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return workspace.Draft{}, fmt.Errorf("editor '%s' failed: %w", editorCmd, err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return workspace.Draft{}, fmt.Errorf("failed to read edited note: %w", err)
	}
	return Parse(edited)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
