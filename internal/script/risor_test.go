package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thingpad/internal/surface"
)

func TestRisor_ReturnsJSON(t *testing.T) {
	t.Parallel()
	c := surface.New(surface.DefaultWidth, surface.DefaultHeight)
	s := Risor{}.NewSession(c, Options{})

	out, err := s.Evaluate(context.Background(), "return 1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	out, err = s.Evaluate(context.Background(), "return canvas.width")
	require.NoError(t, err)
	assert.Equal(t, "300", out)
}

func TestRisor_Draws(t *testing.T) {
	t.Parallel()
	c := surface.New(10, 10)
	s := Risor{}.NewSession(c, Options{})

	_, err := s.Evaluate(context.Background(), `
ctx.set_fill_style("blue")
ctx.fill_rect(0, 0, 2, 3)
`)
	require.NoError(t, err)
	assert.Equal(t, 6, c.PaintedPixels())
	assert.Equal(t, uint8(255), c.At(1, 1).B)
}

func TestRisor_Errors(t *testing.T) {
	t.Parallel()
	c := surface.New(10, 10)
	s := Risor{}.NewSession(c, Options{})

	_, err := s.Evaluate(context.Background(), `ctx.fill_rect("a", 1, 2, 3)`)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindRuntime, f.Kind)
	assert.Contains(t, f.Message, "must be a number")

	_, err = s.Evaluate(context.Background(), `ctx.fill_rect(1)`)
	_, ok = AsFailure(err)
	assert.True(t, ok)
	assert.Equal(t, 0, c.PaintedPixels())
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()

	langs := r.Languages()
	require.Len(t, langs, 2)
	assert.Equal(t, "js", langs[0].Marker())
	assert.Equal(t, "risor", langs[1].Marker())

	js, err := r.ByKind("JavaScript")
	require.NoError(t, err)
	assert.Equal(t, "js", js.Marker())

	alias, err := r.ByKind("js")
	require.NoError(t, err)
	assert.Equal(t, js, alias)

	_, err = r.ByKind("python")
	assert.ErrorIs(t, err, ErrUnknownLanguage)

	l, err := r.ForFile("demo/snippet.RISOR")
	require.NoError(t, err)
	assert.Equal(t, "risor", l.Name())

	_, ok := r.ByMarker("nope")
	assert.False(t, ok)
}

func TestRisor_FreshVMEachEvaluation(t *testing.T) {
	t.Parallel()
	c := surface.New(surface.DefaultWidth, surface.DefaultHeight)
	s := Risor{}.NewSession(c, Options{})

	_, err := s.Evaluate(context.Background(), "ctx.fill_rect(0, 0, 1, 1)\nreturn 1")
	require.NoError(t, err)
	_, err = s.Evaluate(context.Background(), "return undefined_name")
	assert.Error(t, err)
	assert.Equal(t, 1, c.PaintedPixels())
}
