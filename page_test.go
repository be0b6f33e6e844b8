package thingpad

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderPage(t *testing.T, p *Page) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, p.Render(&b))
	return b.String()
}

func TestAttach_RequiresBothMarkers(t *testing.T) {
	t.Parallel()
	body := `<section class="js"><textarea class="js-code">return 1;</textarea><pre class="js-output"></pre><canvas class="js-canvas"></canvas></section>` +
		`<section class="thing"><textarea class="js-code">return 1;</textarea><pre class="js-output"></pre><canvas class="js-canvas"></canvas></section>`
	p := newTestPage(t, body)
	assert.Empty(t, p.Widgets())
	assert.Empty(t, p.Problems())
}

func TestAttach_AssignsStableIDs(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, jsBlock("return 1;")+jsBlock("return 2;"))
	ws := p.Widgets()
	require.Len(t, ws, 2)
	assert.Equal(t, "w1", ws[0].ID())
	assert.Equal(t, "w2", ws[1].ID())

	w, err := p.Widget("w2")
	require.NoError(t, err)
	assert.Equal(t, "2", w.Output().Output)

	out := renderPage(t, p)
	assert.Contains(t, out, `data-widget="w1"`)
	assert.Contains(t, out, `data-widget="w2"`)
}

func TestAttach_SecondPassSkipsAttachedBlocks(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, jsBlock("return 1;"))
	w := onlyWidget(t, p)

	added, err := p.Attach(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, 1, w.Evaluations())
	assert.Equal(t, 1, w.Surface().PaintedPixels())
}

func TestAttach_MissingElementIsReportedOnce(t *testing.T) {
	t.Parallel()
	broken := `<section class="thing js"><textarea class="js-code">return 1;</textarea><pre class="js-output"></pre></section>`
	p := newTestPage(t, broken+jsBlock("return 2;"))

	w := onlyWidget(t, p)
	assert.Equal(t, "2", w.Output().Output)

	problems := p.Problems()
	require.Len(t, problems, 1)
	assert.ErrorIs(t, problems[0], ErrMissingElement)
	assert.Contains(t, problems[0].Error(), ".js-canvas")

	added, err := p.Attach(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Len(t, p.Problems(), 1)
}

func TestInsert_AttachesNewContentOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPage(t, jsBlock("return 1;"))
	first := onlyWidget(t, p)

	added, err := p.Insert(ctx, jsBlock("return 'new';"))
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "w2", added[0].ID())
	assert.Equal(t, `"new"`, added[0].Output().Output)
	assert.Equal(t, 1, first.Evaluations())
	assert.Len(t, p.Widgets(), 2)
}

func TestInsert_ReportsBrokenBlock(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, "")
	added, err := p.Insert(context.Background(), `<div class="thing js"><pre class="js-output"></pre></div>`)
	assert.Empty(t, added)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingElement))
}

func TestRemove_DestroysWidget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPage(t, jsBlock("return 1;")+jsBlock("return 2;"))
	w := p.Widgets()[0]

	require.NoError(t, p.Remove("w1"))
	assert.False(t, w.Change(ctx))
	assert.False(t, w.KeyDown(ctx, confirm))
	assert.Equal(t, 1, w.Evaluations())

	_, err := p.Widget("w1")
	assert.ErrorIs(t, err, ErrUnknownWidget)
	assert.ErrorIs(t, p.Remove("w1"), ErrUnknownWidget)

	out := renderPage(t, p)
	assert.NotContains(t, out, `data-widget="w1"`)
	assert.Contains(t, out, `data-widget="w2"`)
}

func TestRender_CarriesResultsAndSnapshots(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, jsBlock("return 1+1;")+jsBlock(`throw new Error("boom")`))

	out := renderPage(t, p)
	assert.Contains(t, out, `<pre class="js-output">2</pre>`)
	assert.Contains(t, out, `class="js-output js-error"`)
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, `data-snapshot="data:image/png;base64,`)
	assert.Contains(t, out, `width="300" height="150"`)
}

func TestBlockHTML(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, jsBlock("return 7;"))
	out, err := p.BlockHTML("w1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<section class="thing js" data-widget="w1">`))
	assert.Contains(t, out, ">7</pre>")

	_, err = p.BlockHTML("nope")
	assert.ErrorIs(t, err, ErrUnknownWidget)
}

func TestPage_TitleAndStats(t *testing.T) {
	t.Parallel()
	p := newTestPage(t, jsBlock("return 1;")+jsBlock("throw 1;")+jsBlock(""))
	assert.Equal(t, "t", p.Title())

	widgets, failures := p.Stats()
	assert.Equal(t, 3, widgets)
	assert.Equal(t, 1, failures)
}

func TestSurfaceLimit(t *testing.T) {
	t.Parallel()
	block := `<section class="thing js"><textarea class="js-code">canvas.width = 10000; return canvas.width;</textarea>` +
		`<pre class="js-output"></pre><canvas class="js-canvas" width="5000"></canvas></section>`
	w := onlyWidget(t, newTestPage(t, block, WithSurfaceLimit(640, 480)))
	assert.Equal(t, "640", w.Output().Output)
}
