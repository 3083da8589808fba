package export

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/aidanlsb/dendrite/internal/atomicfile"
	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/wikilink"
)

// KindWikilink is the goldmark node kind of a [[Title]] link.
var KindWikilink = ast.NewNodeKind("Wikilink")

// WikilinkNode is an inline [[Title]] link. TargetID is empty when the
// title did not resolve.
type WikilinkNode struct {
	ast.BaseInline
	Title    string
	TargetID string
}

// Kind implements ast.Node.
func (n *WikilinkNode) Kind() ast.NodeKind { return KindWikilink }

// Dump implements ast.Node.
func (n *WikilinkNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Title": n.Title, "TargetID": n.TargetID}, nil)
}

type wikilinkParser struct {
	resolve linkgraph.ResolveFunc
}

// Trigger implements parser.InlineParser.
func (p *wikilinkParser) Trigger() []byte { return []byte{'['} }

// Parse implements parser.InlineParser.
func (p *wikilinkParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, []byte("[[")) {
		return nil
	}
	matches := wikilink.FindAll(string(line))
	if len(matches) == 0 || matches[0].Start != 0 {
		return nil
	}
	m := matches[0]
	block.Advance(m.End)

	node := &WikilinkNode{Title: m.Title}
	if p.resolve != nil {
		if target, ok := p.resolve(m.Title); ok {
			node.TargetID = target.ID
		}
	}
	return node
}

type wikilinkRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *wikilinkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindWikilink, r.render)
}

func (r *wikilinkRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*WikilinkNode)
	title := util.EscapeHTML([]byte(n.Title))
	if n.TargetID == "" {
		_, _ = w.WriteString(`<span class="wikilink broken">`)
		_, _ = w.Write(title)
		_, _ = w.WriteString(`</span>`)
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(`<a class="wikilink" href="#`)
	_, _ = w.Write(util.EscapeHTML(util.URLEscape([]byte(n.TargetID), true)))
	_, _ = w.WriteString(`">`)
	_, _ = w.Write(title)
	_, _ = w.WriteString(`</a>`)
	return ast.WalkSkipChildren, nil
}

// Wikilinks is a goldmark extension rendering [[Title]] links, resolved
// through Resolve, as anchors and unresolved ones as inert spans.
type Wikilinks struct {
	Resolve linkgraph.ResolveFunc
}

// Extend implements goldmark.Extender.
func (e *Wikilinks) Extend(m goldmark.Markdown) {
	// Ahead of the standard link parser (200), which also triggers on '['.
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&wikilinkParser{resolve: e.Resolve}, 199),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&wikilinkRenderer{}, 199),
	))
}

// RenderHTML renders the content of n as HTML. Raw HTML in the content is
// omitted.
func RenderHTML(n model.Note, resolve linkgraph.ResolveFunc) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(&Wikilinks{Resolve: resolve}))
	var buf bytes.Buffer
	if err := md.Convert([]byte(n.Content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML renders notes into dir/index.html, one section per note with the
// note id as its anchor, so resolved links jump to their target.
func WriteHTML(dir string, notes []model.Note, resolve linkgraph.ResolveFunc) (File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("failed to create export directory: %w", err)
	}
	md := goldmark.New(goldmark.WithExtensions(&Wikilinks{Resolve: resolve}))

	var buf bytes.Buffer
	buf.WriteString("<!doctype html>\n<html>\n<head><meta charset=\"utf-8\"><title>Notes</title></head>\n<body>\n")
	for _, n := range notes {
		fmt.Fprintf(&buf, "<section id=\"%s\">\n<h1>%s</h1>\n", html.EscapeString(n.ID), html.EscapeString(n.Title))
		if err := md.Convert([]byte(n.Content), &buf); err != nil {
			return File{}, fmt.Errorf("note %s: %w", n.ID, err)
		}
		buf.WriteString("</section>\n")
	}
	buf.WriteString("</body>\n</html>\n")

	path := filepath.Join(dir, "index.html")
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return File{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return File{Path: path}, nil
}
