package thingpad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/surface"
)

// pageEnv is what a page needs from its engine to create widgets.
type pageEnv struct {
	langs      []script.Language
	opts       script.Options
	maxW, maxH int
	rnd        func() float64
}

// Page is an HTML document with attached widgets. Discovery is explicit:
// Attach runs when the page is parsed and again for content added by
// Insert. Page methods are safe for concurrent use.
type Page struct {
	env pageEnv

	mu       sync.Mutex
	doc      *html.Node
	widgets  map[string]*Widget
	order    []string
	byNode   map[*html.Node]*Widget
	broken   map[*html.Node]bool
	problems []error
	seq      int
}

func newPage(env pageEnv, doc *html.Node) *Page {
	return &Page{
		env:     env,
		doc:     doc,
		widgets: make(map[string]*Widget),
		byNode:  make(map[*html.Node]*Widget),
		broken:  make(map[*html.Node]bool),
	}
}

// Attach is the discovery pass. It creates a widget for every block that
// carries "thing" and a language marker and was not seen before, draws each
// new widget's liveness pixel and evaluates those with non-empty source.
// Blocks missing a required child are skipped and reported once, joined in
// the returned error; the widgets that could be attached are returned
// either way.
func (p *Page) Attach(ctx context.Context) ([]*Widget, error) {
	p.mu.Lock()
	var (
		added []*Widget
		errs  []error
	)
	walk(p.doc, func(n *html.Node) bool {
		if !hasClass(n, ThingClass) || p.byNode[n] != nil || p.broken[n] {
			return true
		}
		lang := p.languageOf(n)
		if lang == nil {
			return true
		}
		w, err := p.newWidget(n, lang)
		if err != nil {
			p.broken[n] = true
			errs = append(errs, err)
			return true
		}
		added = append(added, w)
		return true
	})
	p.problems = append(p.problems, errs...)
	p.mu.Unlock()

	for _, w := range added {
		w.attach(ctx, p.env.rnd)
	}
	return added, errors.Join(errs...)
}

func (p *Page) languageOf(n *html.Node) script.Language {
	for _, l := range p.env.langs {
		if hasClass(n, l.Marker()) {
			return l
		}
	}
	return nil
}

// newWidget binds a block. The caller holds p.mu.
func (p *Page) newWidget(block *html.Node, lang script.Language) (*Widget, error) {
	m := MarkersFor(lang.Marker())
	src := querySelector(block, m.Source)
	out := querySelector(block, m.Output)
	cvs := querySelector(block, m.Surface)
	var missing []string
	for _, c := range []struct {
		node  *html.Node
		class string
	}{{src, m.Source}, {out, m.Output}, {cvs, m.Surface}} {
		if c.node == nil {
			missing = append(missing, "."+c.class)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s block lacks %s", ErrMissingElement, m.Block, strings.Join(missing, ", "))
	}

	c := surface.New(
		surface.ParseDimension(attr(cvs, "width"), surface.DefaultWidth),
		surface.ParseDimension(attr(cvs, "height"), surface.DefaultHeight),
	)
	c.SetLimit(p.env.maxW, p.env.maxH)

	p.seq++
	w := &Widget{
		id:      fmt.Sprintf("w%d", p.seq),
		lang:    lang,
		markers: m,
		block:   block,
		source:  src,
		output:  out,
		canvas:  cvs,
		surface: c,
		session: lang.NewSession(c, p.env.opts),
	}
	setAttr(block, "data-widget", w.id)
	p.widgets[w.id] = w
	p.byNode[block] = w
	p.order = append(p.order, w.id)
	return w, nil
}

// Insert parses an HTML fragment, appends it to the body and runs
// discovery over the page.
func (p *Page) Insert(ctx context.Context, fragment string) ([]*Widget, error) {
	p.mu.Lock()
	body := findElement(p.doc, atom.Body)
	if body == nil {
		p.mu.Unlock()
		return nil, errors.New("thingpad: insert: page has no body")
	}
	ctxNode := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("thingpad: insert: parse fragment: %w", err)
	}
	target := body
	if main := findElement(body, atom.Main); main != nil {
		target = main
	}
	for _, n := range nodes {
		target.AppendChild(n)
	}
	p.mu.Unlock()

	return p.Attach(ctx)
}

// Remove detaches the widget's block from the document and destroys the
// widget.
func (p *Page) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.widgets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	if w.block.Parent != nil {
		w.block.Parent.RemoveChild(w.block)
	}
	delete(p.widgets, id)
	delete(p.byNode, w.block)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	w.detach()
	return nil
}

// Widget returns the attached widget with the given id.
func (p *Page) Widget(id string) (*Widget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.widgets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	return w, nil
}

// Widgets returns the attached widgets in discovery order.
func (p *Page) Widgets() []*Widget {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Widget, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.widgets[id])
	}
	return out
}

// Problems lists every setup error discovery has reported.
func (p *Page) Problems() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.problems...)
}

// Title returns the document title.
func (p *Page) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := findElement(p.doc, atom.Title); t != nil {
		return strings.TrimSpace(textContent(t))
	}
	return ""
}

// Render writes the document. Output sinks carry the latest results and
// surfaces carry their bitmap as a data-snapshot PNG data URL.
func (p *Page) Render(out io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		w := p.widgets[id]
		w.mu.Lock()
		defer w.mu.Unlock()
		if err := w.syncSurfaceLocked(); err != nil {
			return fmt.Errorf("thingpad: render: snapshot %s: %w", id, err)
		}
	}
	if err := html.Render(out, p.doc); err != nil {
		return fmt.Errorf("thingpad: render: %w", err)
	}
	return nil
}

// BlockHTML renders a single widget's block.
func (p *Page) BlockHTML(id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.widgets[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.syncSurfaceLocked(); err != nil {
		return "", fmt.Errorf("thingpad: render block: %w", err)
	}
	var b strings.Builder
	if err := html.Render(&b, w.block); err != nil {
		return "", fmt.Errorf("thingpad: render block: %w", err)
	}
	return b.String(), nil
}

// Stats counts widgets and widgets whose output shows a failure.
func (p *Page) Stats() (widgets, failures int) {
	for _, w := range p.Widgets() {
		widgets++
		if w.Output().Failed {
			failures++
		}
	}
	return widgets, failures
}
