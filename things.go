package thingpad

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/jward/thingpad/internal/markdown"
	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/store"
)

// The textarea opens with a newline because the HTML parser drops one
// leading newline there; sources that start with a newline survive.
var templates = template.Must(template.New("block").Parse(
	`<section class="thing {{.Marker}}"{{with .ThingID}} data-thing="{{.}}"{{end}}><pre>{{.Signature}}
<textarea name="summary" class="{{.Marker}}-code">
{{.Source}}</textarea>
}</pre><code><pre class="{{.Marker}}-output"></pre></code><canvas class="{{.Marker}}-canvas"{{with .Width}} width="{{.}}"{{end}}{{with .Height}} height="{{.}}"{{end}}></canvas></section>`,
))

func init() {
	template.Must(templates.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Scripts}}<script src="{{.}}" defer></script>
{{end}}</head>
<body data-namespace="{{.Namespace}}">
<main>
{{.Body}}
</main>
</body>
</html>
`))
}

type blockData struct {
	ThingID   string
	Marker    string
	Signature string
	Source    string
	Width     int
	Height    int
}

type documentData struct {
	Title     string
	Namespace string
	Scripts   []string
	Body      template.HTML
}

// PageOptions decorate a rendered document.
type PageOptions struct {
	Title string
	// Scripts are added to the head as deferred script tags.
	Scripts []string
}

func writeBlock(w io.Writer, lang script.Language, b blockData) error {
	b.Marker = lang.Marker()
	b.Signature = lang.Signature()
	if err := templates.ExecuteTemplate(w, "block", b); err != nil {
		return fmt.Errorf("render block: %w", err)
	}
	return nil
}

// RenderThing writes the widget block for a stored thing.
func (e *Engine) RenderThing(w io.Writer, t *Thing) error {
	lang, err := e.languageByKind(t.Kind)
	if err != nil {
		return err
	}
	return writeBlock(w, lang, blockData{ThingID: t.ID, Source: t.Summary})
}

// RenderThings writes a complete document holding one block per thing in
// the namespace, oldest first.
func (e *Engine) RenderThings(w io.Writer, namespace string, opts PageOptions) error {
	things, err := e.Things(namespace)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	for _, t := range things {
		if err := e.RenderThing(&body, t); err != nil {
			return fmt.Errorf("thingpad: thing %s: %w", t.ID, err)
		}
		body.WriteByte('\n')
	}
	title := opts.Title
	if title == "" {
		title = namespace
	}
	return writeDocument(w, documentData{
		Title:     title,
		Namespace: namespace,
		Scripts:   opts.Scripts,
		Body:      template.HTML(body.String()),
	})
}

func writeDocument(w io.Writer, d documentData) error {
	if err := templates.ExecuteTemplate(w, "document", d); err != nil {
		return fmt.Errorf("thingpad: render document: %w", err)
	}
	return nil
}

// ThingsPage renders the namespace and parses the result into a live page.
func (e *Engine) ThingsPage(ctx context.Context, namespace string, opts PageOptions) (*Page, error) {
	var buf bytes.Buffer
	if err := e.RenderThings(&buf, namespace, opts); err != nil {
		return nil, err
	}
	return e.ParsePage(ctx, &buf)
}

// AddThing stores a new snippet. An empty body is replaced by the
// language's placeholder.
func (e *Engine) AddThing(namespace, kind, body string) (*Thing, error) {
	s, err := e.requireStore()
	if err != nil {
		return nil, err
	}
	lang, err := e.languageByKind(kind)
	if err != nil {
		return nil, err
	}
	if body == "" {
		body = lang.Placeholder()
	}
	t := &Thing{Namespace: namespace, Kind: lang.Name(), Summary: body}
	if err := s.InsertThing(t); err != nil {
		return nil, fmt.Errorf("thingpad: add thing: %w", err)
	}
	e.log.Debug("thing added", "id", t.ID, "namespace", namespace, "kind", t.Kind)
	return t, nil
}

// Things lists the stored snippets of a namespace.
func (e *Engine) Things(namespace string) ([]*Thing, error) {
	s, err := e.requireStore()
	if err != nil {
		return nil, err
	}
	things, err := s.ThingsByNamespace(namespace, "")
	if err != nil {
		return nil, fmt.Errorf("thingpad: list things: %w", err)
	}
	return things, nil
}

// UpdateThing replaces a stored snippet's source.
func (e *Engine) UpdateThing(id, summary string) error {
	s, err := e.requireStore()
	if err != nil {
		return err
	}
	if err := s.UpdateThingSummary(id, summary); err != nil {
		return fmt.Errorf("thingpad: update thing: %w", err)
	}
	return nil
}

// DeleteThing removes a stored snippet.
func (e *Engine) DeleteThing(id string) error {
	s, err := e.requireStore()
	if err != nil {
		return err
	}
	if err := s.DeleteThing(id); err != nil {
		return fmt.Errorf("thingpad: delete thing: %w", err)
	}
	return nil
}

// fillThings copies stored sources into blocks that reference a thing by
// data-thing and have no source of their own.
func fillThings(p *Page, ds store.DataStore) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	walk(p.doc, func(n *html.Node) bool {
		id := attr(n, "data-thing")
		if id == "" || !hasClass(n, ThingClass) || p.byNode[n] != nil {
			return true
		}
		lang := p.languageOf(n)
		if lang == nil {
			return true
		}
		src := querySelector(n, MarkersFor(lang.Marker()).Source)
		if src == nil || strings.TrimSpace(inputValue(src)) != "" {
			return true
		}
		t, err := ds.ThingByID(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("thing %s: %w", id, err))
			return true
		}
		setInputValue(src, t.Summary)
		return true
	})
	if len(errs) > 0 {
		return fmt.Errorf("thingpad: %d referenced thing(s) unavailable: %w", len(errs), errs[0])
	}
	return nil
}

// ParseMarkdown converts a markdown document and parses it into a page.
// Fences tagged with a language marker plus "-thing" become widgets.
func (e *Engine) ParseMarkdown(ctx context.Context, src []byte) (*Page, error) {
	body, title, err := e.markdownBody(src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeDocument(&buf, documentData{Title: title, Body: body}); err != nil {
		return nil, err
	}
	return e.ParsePage(ctx, &buf)
}

func (e *Engine) markdownBody(src []byte) (template.HTML, string, error) {
	langs := e.registry.Languages()
	markers := make([]string, 0, len(langs))
	for _, l := range langs {
		markers = append(markers, l.Marker())
	}
	conv := markdown.NewConverter(markers, func(w io.Writer, b markdown.Block) error {
		lang, ok := e.registry.ByMarker(b.Marker)
		if !ok {
			return fmt.Errorf("%w: %s", script.ErrUnknownLanguage, b.Marker)
		}
		return writeBlock(w, lang, blockData{Source: b.Source, Width: b.Width, Height: b.Height})
	})
	doc, err := conv.Convert(src)
	if err != nil {
		return "", "", fmt.Errorf("thingpad: markdown: %w", err)
	}
	return template.HTML(doc.HTML), doc.FrontMatter.Title, nil
}
