package thingpad

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thingpad/internal/script"
)

func newTestPage(t *testing.T, body string, opts ...Option) *Page {
	t.Helper()
	opts = append([]Option{WithRand(func() float64 { return 0.5 })}, opts...)
	e, err := New("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	p, err := e.ParsePage(context.Background(), strings.NewReader("<!DOCTYPE html><html><head><title>t</title></head><body>"+body+"</body></html>"))
	require.NoError(t, err)
	return p
}

func jsBlock(src string) string {
	return `<section class="thing js"><textarea class="js-code">` + src +
		`</textarea><pre class="js-output"></pre><canvas class="js-canvas"></canvas></section>`
}

func onlyWidget(t *testing.T, p *Page) *Widget {
	t.Helper()
	ws := p.Widgets()
	require.Len(t, ws, 1)
	return ws[0]
}

var confirm = KeyEvent{Key: "Enter", Ctrl: true}

func TestAttach_EmptySourceDoesNotEvaluate(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("")))

	assert.Equal(t, 0, w.Evaluations())
	assert.Equal(t, Result{}, w.Output())
}

func TestAttach_NonEmptySourceEvaluatesOnce(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("return 1+1;")))

	assert.Equal(t, 1, w.Evaluations())
	assert.Equal(t, Result{Output: "2"}, w.Output())
}

func TestAttach_WhitespaceSourceStillEvaluates(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("  ")))

	assert.Equal(t, 1, w.Evaluations())
	assert.Equal(t, "", w.Output().Output)
	assert.False(t, w.Output().Failed)
}

func TestAttach_DrawsOnePixel(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("")))

	c := w.Surface()
	assert.Equal(t, 1, c.PaintedPixels())
	assert.Equal(t, uint8(255), c.At(150, 75).A)
}

func TestAttach_PixelBelongsToUserSurface(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("")))

	w.SetSource("ctx.clearRect(0, 0, canvas.width, canvas.height);")
	require.True(t, w.Change(context.Background()))
	assert.Equal(t, 0, w.Surface().PaintedPixels())
}

func TestKeyDown_OnlyConfirmChordEvaluates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := onlyWidget(t, newTestPage(t, jsBlock("")))
	w.SetSource("return 'hi';")

	assert.False(t, w.KeyDown(ctx, KeyEvent{Key: "Enter"}))
	assert.False(t, w.KeyDown(ctx, KeyEvent{Key: "a", Ctrl: true}))
	assert.Equal(t, 0, w.Evaluations())

	assert.True(t, w.KeyDown(ctx, confirm))
	assert.Equal(t, 1, w.Evaluations())
	assert.Equal(t, `"hi"`, w.Output().Output)
}

func TestEvaluate_ThrownErrorSetsErrorMarker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPage(t, jsBlock(`throw new Error("x")`))
	w := onlyWidget(t, p)

	res := w.Output()
	assert.True(t, res.Failed)
	assert.Contains(t, res.Output, "x")
	assert.Equal(t, script.KindRuntime, res.Kind)
	assert.True(t, hasClass(w.output, "js-error"))

	w.SetSource("return 3;")
	w.Change(ctx)
	assert.Equal(t, Result{Output: "3"}, w.Output())
	assert.False(t, hasClass(w.output, "js-error"))
	assert.True(t, hasClass(w.output, "js-output"))
}

func TestEvaluate_CanvasWidth(t *testing.T) {
	t.Parallel()
	block := `<section class="thing js"><textarea class="js-code">return canvas.width;</textarea>` +
		`<pre class="js-output"></pre><canvas class="js-canvas" width="120" height="40"></canvas></section>`
	w := onlyWidget(t, newTestPage(t, block))

	assert.Equal(t, "120", w.Output().Output)
	assert.Equal(t, 40, w.Surface().Height())
}

func TestEvaluate_DefaultCanvasSize(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("return [canvas.width, canvas.height];")))
	assert.Equal(t, "[300,150]", w.Output().Output)
}

func TestEvaluate_LaterTriggerOverwritesOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := onlyWidget(t, newTestPage(t, jsBlock("return 'a';")))
	assert.Equal(t, `"a"`, w.Output().Output)

	w.SetSource("return 'b';")
	w.Change(ctx)
	assert.Equal(t, `"b"`, w.Output().Output)

	w.SetSource("return 'c';")
	w.KeyDown(ctx, confirm)
	assert.Equal(t, `"c"`, w.Output().Output)
	assert.Equal(t, `"c"`, textContent(w.output))
	assert.Equal(t, 3, w.Evaluations())
}

func TestEvaluate_UnserializableValue(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("return function() {};")))

	res := w.Output()
	assert.True(t, res.Failed)
	assert.Equal(t, script.KindSerialize, res.Kind)
	assert.True(t, hasClass(w.output, "js-error"))
}

func TestEvaluate_UndefinedShowsEmptyText(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("ctx.fillRect(0, 0, 1, 1);")))
	assert.Equal(t, Result{}, w.Output())
	assert.Equal(t, 1, w.Evaluations())
}

func TestEvaluate_Timeout(t *testing.T) {
	t.Parallel()
	w := onlyWidget(t, newTestPage(t, jsBlock("while (true) {}"), WithTimeout(50*time.Millisecond)))

	res := w.Output()
	assert.True(t, res.Failed)
	assert.Equal(t, script.KindInterrupt, res.Kind)

	w.SetSource("return 1;")
	w.Change(context.Background())
	assert.Equal(t, "1", w.Output().Output)
}

func TestEvaluate_TimeoutCoversDrawing(t *testing.T) {
	t.Parallel()
	src := `ctx.beginPath();
for (let i = 0; i &lt; 200000; i++) ctx.lineTo(i % 2 ? 4095 : 0, i % 3 ? 4095 : 0);
ctx.stroke();
return 1;`
	block := `<section class="thing js"><textarea class="js-code">` + src + `</textarea>` +
		`<pre class="js-output"></pre><canvas class="js-canvas" width="4096" height="4096"></canvas></section>`

	start := time.Now()
	w := onlyWidget(t, newTestPage(t, block, WithTimeout(100*time.Millisecond)))
	assert.Less(t, time.Since(start), 5*time.Second)
	res := w.Output()
	assert.True(t, res.Failed)
	assert.Equal(t, script.KindInterrupt, res.Kind)

	w.SetSource("ctx.beginPath(); ctx.arc(100, 100, 50, 0, 6.3); ctx.stroke(); return 1;")
	start = time.Now()
	w.Change(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "1", w.Output().Output)
}

func TestEvaluate_InputElementSource(t *testing.T) {
	t.Parallel()
	block := `<div class="thing js"><input class="js-code" value="return 5;">` +
		`<span class="js-output"></span><canvas class="js-canvas"></canvas></div>`
	w := onlyWidget(t, newTestPage(t, block))
	assert.Equal(t, "5", w.Output().Output)

	w.SetSource("return 6;")
	assert.Equal(t, "return 6;", attr(w.source, "value"))
}

func TestWidgets_DoNotShareState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPage(t, jsBlock("globalThis.x = 1; return x;")+jsBlock(""))
	ws := p.Widgets()
	require.Len(t, ws, 2)
	assert.Equal(t, "1", ws[0].Output().Output)

	ws[1].SetSource("return typeof x;")
	ws[1].Change(ctx)
	assert.Equal(t, `"undefined"`, ws[1].Output().Output)

	// State persists within one widget.
	ws[0].SetSource("return x + 1;")
	ws[0].Change(ctx)
	assert.Equal(t, "2", ws[0].Output().Output)
}

func TestWidget_TriggersAreSerialised(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := onlyWidget(t, newTestPage(t, jsBlock("globalThis.n = (globalThis.n || 0) + 1; return n;")))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Change(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, w.Evaluations())
	assert.Equal(t, "21", w.Output().Output)
}

func TestRisorWidget(t *testing.T) {
	t.Parallel()
	block := `<section class="thing risor"><textarea class="risor-code">return 1 + 1</textarea>` +
		`<pre class="risor-output"></pre><canvas class="risor-canvas"></canvas></section>`
	w := onlyWidget(t, newTestPage(t, block))

	assert.Equal(t, "risor", w.Language().Name())
	assert.Equal(t, "risor-error", w.Markers().Error)
	assert.Equal(t, "2", w.Output().Output)
}
