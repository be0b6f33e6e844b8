package script

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thingpad/internal/surface"
)

func newJSSession(t *testing.T, opts Options) (Session, *surface.Canvas) {
	t.Helper()
	c := surface.New(surface.DefaultWidth, surface.DefaultHeight)
	return JavaScript{}.NewSession(c, opts), c
}

func TestJavaScript_ReturnsJSON(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	tests := []struct {
		src  string
		want string
	}{
		{"return 1+1;", "2"},
		{`return "hi";`, `"hi"`},
		{"return {a: [1, true, null]};", `{"a":[1,true,null]}`},
		{"return null;", "null"},
		{"", ""},
		{"let x = 3;", ""},
	}
	for _, tt := range tests {
		out, err := s.Evaluate(context.Background(), tt.src)
		require.NoError(t, err, "source %q", tt.src)
		assert.Equal(t, tt.want, out, "source %q", tt.src)
	}
}

func TestJavaScript_ThrownError(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	_, err := s.Evaluate(context.Background(), `throw new Error("x");`)
	require.Error(t, err)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindRuntime, f.Kind)
	assert.Equal(t, "Error: x", f.Message)

	_, err = s.Evaluate(context.Background(), `throw "plain";`)
	f, _ = AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, "plain", f.Message)
}

func TestJavaScript_SyntaxError(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	_, err := s.Evaluate(context.Background(), "return (;")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindSyntax, f.Kind)
	assert.True(t, strings.HasPrefix(f.Message, "SyntaxError: "), f.Message)
	assert.NotContains(t, f.Message, "SyntaxError: SyntaxError")
}

func TestJavaScript_UnserializableResults(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	for _, src := range []string{
		"const a = {}; a.self = a; return a;",
		"return function() {};",
		"return Symbol('s');",
	} {
		_, err := s.Evaluate(context.Background(), src)
		f, ok := AsFailure(err)
		require.True(t, ok, "source %q", src)
		assert.Equal(t, KindSerialize, f.Kind, "source %q", src)
	}
}

func TestJavaScript_CanvasBinding(t *testing.T) {
	t.Parallel()
	s, c := newJSSession(t, Options{})

	out, err := s.Evaluate(context.Background(), "return canvas.width;")
	require.NoError(t, err)
	assert.Equal(t, "300", out)

	out, err = s.Evaluate(context.Background(), `return ctx.canvas === canvas && canvas.getContext("2d") === ctx;`)
	require.NoError(t, err)
	assert.Equal(t, "true", out)

	out, err = s.Evaluate(context.Background(), `
ctx.fillStyle = "red";
ctx.fillRect(0, 0, 10, 10);
return ctx.fillStyle;`)
	require.NoError(t, err)
	assert.Equal(t, `"#ff0000"`, out)
	assert.Equal(t, 100, c.PaintedPixels())
	assert.Equal(t, uint8(255), c.At(5, 5).R)
}

func TestJavaScript_ResizeFromCode(t *testing.T) {
	t.Parallel()
	s, c := newJSSession(t, Options{})
	c.SetLimit(500, 500)

	out, err := s.Evaluate(context.Background(), "canvas.width = 1000; canvas.height = 20; return [canvas.width, canvas.height];")
	require.NoError(t, err)
	assert.Equal(t, "[500,20]", out)
	assert.Equal(t, 500, c.Width())
}

func TestJavaScript_MeasureTextAndDataURL(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	out, err := s.Evaluate(context.Background(), `return ctx.measureText("abc").width;`)
	require.NoError(t, err)
	assert.Equal(t, "21", out)

	out, err = s.Evaluate(context.Background(), `ctx.fillRect(0, 0, 1, 1); return canvas.toDataURL().slice(0, 22);`)
	require.NoError(t, err)
	assert.Equal(t, `"data:image/png;base64,"`, out)
}

func TestJavaScript_StatePersistsAcrossEvaluations(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	_, err := s.Evaluate(context.Background(), "globalThis.counter = 41;")
	require.NoError(t, err)
	out, err := s.Evaluate(context.Background(), "return ++counter;")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestJavaScript_Timeout(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{Timeout: 50 * time.Millisecond})

	_, err := s.Evaluate(context.Background(), "while (true) {}")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindInterrupt, f.Kind)
	assert.Contains(t, f.Message, "timed out")

	// The runtime is usable again after an interrupt.
	out, err := s.Evaluate(context.Background(), "return 7;")
	require.NoError(t, err)
	assert.Equal(t, "7", out)
}

func TestJavaScript_ContextCancel(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Evaluate(ctx, "for (;;) {}")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindInterrupt, f.Kind)
}

func TestJavaScript_NoAmbientCanvas(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	out, err := s.Evaluate(context.Background(), "return typeof globalThis.canvas;")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, out)
}

func TestJavaScript_TimeoutCoversDrawing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		width, height int
		src           string
		want          string // empty when the evaluation must be interrupted
	}{
		{"arc stroke on a large canvas", 4096, 4096, "ctx.beginPath(); ctx.arc(100, 100, 50, 0, 6.3); ctx.stroke(); return 1;", "1"},
		{"huge radius", 300, 150, "ctx.beginPath(); ctx.arc(0, 0, 4e8, 0, 6.3); ctx.stroke(); ctx.fill(); return 1;", "1"},
		{"long path", 4096, 4096, `ctx.beginPath();
for (let i = 0; i < 200000; i++) ctx.lineTo(i % 2 ? 4095 : 0, i % 3 ? 4095 : 0);
ctx.stroke();
ctx.fill();
return 1;`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := surface.New(tt.width, tt.height)
			s := JavaScript{}.NewSession(c, Options{Timeout: 100 * time.Millisecond})

			start := time.Now()
			out, err := s.Evaluate(context.Background(), tt.src)
			assert.Less(t, time.Since(start), 3*time.Second)
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
				return
			}
			f, ok := AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, KindInterrupt, f.Kind)

			// Drawing works again on the next evaluation.
			out, err = s.Evaluate(context.Background(), "ctx.clearRect(0, 0, 4096, 4096); ctx.beginPath(); ctx.rect(0, 0, 2, 2); ctx.fill(); return 2;")
			require.NoError(t, err)
			assert.Equal(t, "2", out)
			assert.Equal(t, 4, c.PaintedPixels())
		})
	}
}

func TestJavaScript_CanvasSerializesLikeAnElement(t *testing.T) {
	t.Parallel()
	s, _ := newJSSession(t, Options{})
	out, err := s.Evaluate(context.Background(), "return [canvas, Object.keys(canvas).includes('width'), canvas.width];")
	require.NoError(t, err)
	assert.Equal(t, "[{},false,300]", out)
}
