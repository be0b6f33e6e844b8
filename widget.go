package thingpad

import (
	"context"
	"math"
	"strconv"
	"sync"

	"golang.org/x/net/html"

	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/surface"
)

// Markers are the class names that tie a block and its children to a
// language: "thing js" on the block, then js-code, js-output, js-canvas and
// the js-error state class.
type Markers struct {
	Block   string
	Source  string
	Output  string
	Surface string
	Error   string
}

// MarkersFor derives the class names for a language marker.
func MarkersFor(marker string) Markers {
	return Markers{
		Block:   marker,
		Source:  marker + "-code",
		Output:  marker + "-output",
		Surface: marker + "-canvas",
		Error:   marker + "-error",
	}
}

// ThingClass is the category marker every widget block carries.
const ThingClass = "thing"

// KeyEvent is a key press in a widget's source input.
type KeyEvent struct {
	Key  string
	Ctrl bool
}

// confirms reports whether ev is the confirm chord, ctrl+Enter.
func (ev KeyEvent) confirms() bool {
	return ev.Ctrl && ev.Key == "Enter"
}

// Result is what a widget's output sink shows.
type Result struct {
	Output string `json:"output"`
	Failed bool   `json:"failed"`
	// Kind is the failure kind when Failed is set.
	Kind string `json:"kind,omitempty"`
}

// Widget is one attached code evaluator. It owns its block's source input,
// output sink and surface exclusively. Triggers are serialised per widget.
type Widget struct {
	id      string
	lang    script.Language
	markers Markers

	block  *html.Node
	source *html.Node
	output *html.Node
	canvas *html.Node

	mu          sync.Mutex
	surface     *surface.Canvas
	session     script.Session
	result      Result
	evaluations int
	detached    bool
}

// ID is the widget's data-widget value within its page.
func (w *Widget) ID() string { return w.id }

// Language returns the interpreter the widget runs.
func (w *Widget) Language() script.Language { return w.lang }

// Markers returns the class names the widget was discovered by.
func (w *Widget) Markers() Markers { return w.markers }

// ThingID is the stored thing the block was rendered from, if any.
func (w *Widget) ThingID() string { return attr(w.block, "data-thing") }

// Source returns the live text of the source input.
func (w *Widget) Source() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return inputValue(w.source)
}

// SetSource replaces the source text without triggering an evaluation, as
// typing does.
func (w *Widget) SetSource(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	setInputValue(w.source, text)
}

// Output returns the currently displayed result.
func (w *Widget) Output() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// Evaluations counts how many evaluations have run.
func (w *Widget) Evaluations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.evaluations
}

// Surface returns the widget's canvas.
func (w *Widget) Surface() *surface.Canvas { return w.surface }

// Snapshot encodes the surface as a PNG data URL.
func (w *Widget) Snapshot() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surface.DataURL()
}

// KeyDown handles a key press in the source input. Only the confirm chord
// evaluates; the return value reports whether it did.
func (w *Widget) KeyDown(ctx context.Context, ev KeyEvent) bool {
	if !ev.confirms() {
		return false
	}
	return w.trigger(ctx)
}

// Change handles a committed edit of the source input.
func (w *Widget) Change(ctx context.Context) bool {
	return w.trigger(ctx)
}

// Evaluate runs the current source and returns the displayed result.
func (w *Widget) Evaluate(ctx context.Context) Result {
	w.trigger(ctx)
	return w.Output()
}

func (w *Widget) trigger(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detached {
		return false
	}
	w.evaluateLocked(ctx)
	return true
}

// attach draws the liveness pixel, then evaluates when the source is
// non-empty.
func (w *Widget) attach(ctx context.Context, rnd func() float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cw, ch := w.surface.Width(), w.surface.Height(); cw > 0 && ch > 0 {
		x := math.Floor(rnd() * float64(cw))
		y := math.Floor(rnd() * float64(ch))
		w.surface.Context().FillRect(x, y, 1, 1)
	}
	if inputValue(w.source) != "" {
		w.evaluateLocked(ctx)
	}
}

func (w *Widget) evaluateLocked(ctx context.Context) {
	removeClass(w.output, w.markers.Error)

	out, err := w.session.Evaluate(ctx, inputValue(w.source))
	w.evaluations++
	if err != nil {
		res := Result{Output: err.Error(), Failed: true, Kind: script.KindRuntime}
		if f, ok := script.AsFailure(err); ok {
			res.Kind = f.Kind
		}
		w.result = res
		addClass(w.output, w.markers.Error)
		setTextContent(w.output, res.Output)
		return
	}
	w.result = Result{Output: out}
	setTextContent(w.output, out)
}

// syncSurfaceLocked mirrors the surface into the canvas element for
// rendering. The caller holds w.mu.
func (w *Widget) syncSurfaceLocked() error {
	url, err := w.surface.DataURL()
	if err != nil {
		return err
	}
	setAttr(w.canvas, "width", strconv.Itoa(w.surface.Width()))
	setAttr(w.canvas, "height", strconv.Itoa(w.surface.Height()))
	setAttr(w.canvas, "data-snapshot", url)
	return nil
}

func (w *Widget) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detached = true
}
