package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/thingpad/internal/surface"
)

// Risor runs widget code in a Risor VM. The canvas is a map with width and
// height; the context is a map of snake_case drawing builtins.
type Risor struct{}

func (Risor) Name() string         { return "risor" }
func (Risor) Marker() string       { return "risor" }
func (Risor) Extensions() []string { return []string{".risor"} }
func (Risor) Placeholder() string  { return "# your code here" }
func (Risor) Signature() string    { return "func(canvas, ctx) {" }

func (Risor) NewSession(c *surface.Canvas, opts Options) Session {
	return &risorSession{canvas: c, opts: opts}
}

type risorSession struct {
	canvas *surface.Canvas
	opts   Options
}

func (s *risorSession) Evaluate(ctx context.Context, source string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	cx := s.canvas.Context()
	defer cx.Resume()
	stop := context.AfterFunc(ctx, cx.Interrupt)
	defer stop()

	canvasObj, ctxObj := risorCanvas(s.canvas)
	wrapped := "func thing(canvas, ctx) {\n" + source + "\n}\nthing(canvas, ctx)"
	result, err := risor.Eval(ctx, wrapped,
		risor.WithGlobal("canvas", canvasObj),
		risor.WithGlobal("ctx", ctxObj),
	)
	if err != nil {
		return "", risorFailure(ctx, err)
	}

	switch result.(type) {
	case *object.Function, *object.Builtin:
		return "", &Failure{Kind: KindSerialize, Message: "TypeError: functions cannot be serialized"}
	}
	if result == nil || result == object.Nil {
		return "", nil
	}
	out, err := json.Marshal(result.Interface())
	if err != nil {
		return "", &Failure{Kind: KindSerialize, Message: "TypeError: " + err.Error()}
	}
	return string(out), nil
}

func risorFailure(ctx context.Context, err error) *Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Failure{Kind: KindInterrupt, Message: fmt.Sprintf("InterruptedError: %v", ctxErr)}
	}
	msg := err.Error()
	kind := KindRuntime
	if strings.Contains(msg, "parse error") || strings.Contains(msg, "syntax error") {
		kind = KindSyntax
	}
	return &Failure{Kind: kind, Message: msg}
}

// risorCanvas builds the canvas and ctx values passed to Risor code.
func risorCanvas(c *surface.Canvas) (canvasObj, ctxObj *object.Map) {
	cx := c.Context()

	canvasObj = object.NewMap(map[string]object.Object{
		"width":  object.NewInt(int64(c.Width())),
		"height": object.NewInt(int64(c.Height())),
		"to_data_url": object.NewBuiltin("to_data_url", func(ctx context.Context, args ...object.Object) object.Object {
			url, err := c.DataURL()
			if err != nil {
				return object.Errorf("to_data_url: %v", err)
			}
			return object.NewString(url)
		}),
	})

	floats := func(name string, want int, args []object.Object) ([]float64, object.Object) {
		if len(args) != want {
			return nil, object.NewArgsError(name, want, len(args))
		}
		out := make([]float64, want)
		for i, a := range args {
			v, ok := toFloat(a)
			if !ok {
				return nil, object.Errorf("%s: argument %d must be a number, got %s", name, i+1, a.Type())
			}
			out[i] = v
		}
		return out, nil
	}
	rectOp := func(name string, op func(x, y, w, h float64)) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			v, errObj := floats(name, 4, args)
			if errObj != nil {
				return errObj
			}
			op(v[0], v[1], v[2], v[3])
			return object.Nil
		})
	}
	pointOp := func(name string, op func(x, y float64)) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			v, errObj := floats(name, 2, args)
			if errObj != nil {
				return errObj
			}
			op(v[0], v[1])
			return object.Nil
		})
	}
	noArg := func(name string, op func()) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError(name, 0, len(args))
			}
			op()
			return object.Nil
		})
	}
	style := func(name string, set func(string)) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError(name, 1, len(args))
			}
			s, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("%s: expected a string, got %s", name, args[0].Type())
			}
			set(s.Value())
			return object.Nil
		})
	}
	number := func(name string, set func(float64)) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			v, errObj := floats(name, 1, args)
			if errObj != nil {
				return errObj
			}
			set(v[0])
			return object.Nil
		})
	}

	ctxObj = object.NewMap(map[string]object.Object{
		"canvas":           canvasObj,
		"fill_rect":        rectOp("fill_rect", cx.FillRect),
		"stroke_rect":      rectOp("stroke_rect", cx.StrokeRect),
		"clear_rect":       rectOp("clear_rect", cx.ClearRect),
		"rect":             rectOp("rect", cx.Rect),
		"move_to":          pointOp("move_to", cx.MoveTo),
		"line_to":          pointOp("line_to", cx.LineTo),
		"begin_path":       noArg("begin_path", cx.BeginPath),
		"close_path":       noArg("close_path", cx.ClosePath),
		"fill":             noArg("fill", cx.Fill),
		"stroke":           noArg("stroke", cx.Stroke),
		"save":             noArg("save", cx.Save),
		"restore":          noArg("restore", cx.Restore),
		"set_fill_style":   style("set_fill_style", cx.SetFillStyle),
		"set_stroke_style": style("set_stroke_style", cx.SetStrokeStyle),
		"set_line_width":   number("set_line_width", cx.SetLineWidth),
		"set_global_alpha": number("set_global_alpha", cx.SetGlobalAlpha),
		"arc": object.NewBuiltin("arc", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 5 && len(args) != 6 {
				return object.NewArgsError("arc", 5, len(args))
			}
			v, errObj := floats("arc", 5, args[:5])
			if errObj != nil {
				return errObj
			}
			ccw := len(args) == 6 && args[5].IsTruthy()
			cx.Arc(v[0], v[1], v[2], v[3], v[4], ccw)
			return object.Nil
		}),
		"fill_text": object.NewBuiltin("fill_text", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 3 {
				return object.NewArgsError("fill_text", 3, len(args))
			}
			text, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("fill_text: text must be a string, got %s", args[0].Type())
			}
			v, errObj := floats("fill_text", 2, args[1:])
			if errObj != nil {
				return errObj
			}
			cx.FillText(text.Value(), v[0], v[1])
			return object.Nil
		}),
		"measure_text": object.NewBuiltin("measure_text", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("measure_text", 1, len(args))
			}
			text, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("measure_text: text must be a string, got %s", args[0].Type())
			}
			return object.NewFloat(cx.MeasureText(text.Value()))
		}),
	})
	return canvasObj, ctxObj
}

func toFloat(obj object.Object) (float64, bool) {
	switch v := obj.(type) {
	case *object.Int:
		return float64(v.Value()), true
	case *object.Float:
		return v.Value(), true
	}
	return 0, false
}
