// Package markdown converts Markdown documents to HTML, turning fenced code
// blocks tagged "<marker>-thing" into widget blocks.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// fenceSuffix marks a fenced block as a widget: ```js-thing.
const fenceSuffix = "-thing"

// FrontMatter is the YAML header of a document. Width and Height size the
// surfaces of upgraded blocks; zero keeps the canvas default.
type FrontMatter struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Block is one upgraded fence.
type Block struct {
	Marker string
	Source string
	Width  int
	Height int
}

// BlockFunc writes the widget markup for b.
type BlockFunc func(w io.Writer, b Block) error

// Document is a converted Markdown file.
type Document struct {
	FrontMatter FrontMatter
	HTML        []byte
	Blocks      int
}

// Converter renders Markdown with GFM and raw HTML passthrough, so widget
// sections written by hand survive conversion.
type Converter struct {
	markers map[string]bool
	block   BlockFunc
}

// NewConverter creates a converter that upgrades fences for the given
// language markers through block.
func NewConverter(markers []string, block BlockFunc) *Converter {
	m := make(map[string]bool, len(markers))
	for _, marker := range markers {
		m[marker] = true
	}
	return &Converter{markers: m, block: block}
}

// Convert parses front matter and renders the body.
func (c *Converter) Convert(src []byte) (*Document, error) {
	var meta FrontMatter
	body, err := frontmatter.Parse(bytes.NewReader(src), &meta)
	if err != nil {
		return nil, fmt.Errorf("markdown: parse frontmatter: %w", err)
	}

	fences := &fenceRenderer{conv: c, meta: meta}
	engine := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(fences, 100)),
		),
	)

	var buf bytes.Buffer
	if err := engine.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("markdown: convert: %w", err)
	}
	return &Document{FrontMatter: meta, HTML: buf.Bytes(), Blocks: fences.count}, nil
}

type fenceRenderer struct {
	conv  *Converter
	meta  FrontMatter
	count int
}

func (r *fenceRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFence)
}

func (r *fenceRenderer) renderFence(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	var info string
	if n.Info != nil {
		info = string(n.Info.Segment.Value(source))
	}
	fields := strings.Fields(info)
	lang := ""
	if len(fields) > 0 {
		lang = fields[0]
	}

	marker, ok := strings.CutSuffix(lang, fenceSuffix)
	if !ok || !r.conv.markers[marker] || r.conv.block == nil {
		if lang != "" {
			fmt.Fprintf(w, "<pre><code class=\"language-%s\">", html.EscapeString(lang))
		} else {
			w.WriteString("<pre><code>")
		}
		w.WriteString(html.EscapeString(code.String()))
		w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}

	b := Block{
		Marker: marker,
		Source: strings.TrimSuffix(code.String(), "\n"),
		Width:  r.meta.Width,
		Height: r.meta.Height,
	}
	for _, attr := range fields[1:] {
		key, value, _ := strings.Cut(attr, "=")
		size, err := strconv.Atoi(value)
		if err != nil || size <= 0 {
			continue
		}
		switch key {
		case "width":
			b.Width = size
		case "height":
			b.Height = size
		}
	}
	if err := r.conv.block(w, b); err != nil {
		return ast.WalkStop, fmt.Errorf("render %s block: %w", marker, err)
	}
	r.count++
	return ast.WalkSkipChildren, nil
}
