package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/jward/thingpad/internal/surface"
)

// JavaScript runs widget code in a goja runtime.
type JavaScript struct{}

func (JavaScript) Name() string         { return "javascript" }
func (JavaScript) Marker() string       { return "js" }
func (JavaScript) Extensions() []string { return []string{".js"} }
func (JavaScript) Placeholder() string  { return "/* your code here ✨ */" }
func (JavaScript) Signature() string    { return "function(canvas, ctx) {" }

// NewSession creates a runtime with the canvas bound. The runtime has no
// globals beyond the ECMAScript builtins; canvas and ctx only reach user
// code as arguments.
func (JavaScript) NewSession(c *surface.Canvas, opts Options) Session {
	vm := goja.New()
	s := &jsSession{vm: vm, canvas: c, timeout: opts.Timeout}
	s.canvasObj, s.ctxObj = bindCanvas(vm, c)
	jsonObj := vm.Get("JSON").ToObject(vm)
	s.stringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))
	return s
}

type jsSession struct {
	vm        *goja.Runtime
	canvas    *surface.Canvas
	canvasObj *goja.Object
	ctxObj    *goja.Object
	stringify goja.Callable
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

func (s *jsSession) Evaluate(ctx context.Context, source string) (string, error) {
	stop := s.watch(ctx)
	defer stop()

	fn, err := s.vm.RunString("(function(canvas, ctx) {\n" + source + "\n})")
	if err != nil {
		return "", jsFailure(err)
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return "", &Failure{Kind: KindSyntax, Message: "SyntaxError: code does not form a function body"}
	}
	ret, err := call(goja.Undefined(), s.canvasObj, s.ctxObj)
	if err != nil {
		return "", jsFailure(err)
	}
	return s.serialize(ret)
}

// watch interrupts the runtime and the canvas context when the timeout
// elapses or ctx is done. The returned func disarms both and clears any
// pending interrupt.
func (s *jsSession) watch(ctx context.Context) func() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	interrupt := func(reason any) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running {
			s.vm.Interrupt(reason)
			s.canvas.Context().Interrupt()
		}
	}

	var timer *time.Timer
	if s.timeout > 0 {
		timeout := s.timeout
		timer = time.AfterFunc(timeout, func() {
			interrupt(fmt.Sprintf("evaluation timed out after %s", timeout))
		})
	}
	stopCtx := context.AfterFunc(ctx, func() { interrupt(ctx.Err()) })

	return func() {
		if timer != nil {
			timer.Stop()
		}
		stopCtx()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.vm.ClearInterrupt()
		s.canvas.Context().Resume()
	}
}

func (s *jsSession) serialize(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) {
		return "", nil
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return "", &Failure{Kind: KindSerialize, Message: "TypeError: functions cannot be serialized"}
	}
	if _, isSym := v.(*goja.Symbol); isSym {
		return "", &Failure{Kind: KindSerialize, Message: "TypeError: symbols cannot be serialized"}
	}
	out, err := s.stringify(goja.Undefined(), v)
	if err != nil {
		f := jsFailure(err)
		f.Kind = KindSerialize
		return "", f
	}
	if out == nil || goja.IsUndefined(out) {
		return "", &Failure{Kind: KindSerialize, Message: "TypeError: value cannot be serialized"}
	}
	return out.String(), nil
}

// jsFailure describes err the way String(err) does for thrown values.
func jsFailure(err error) *Failure {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &Failure{Kind: KindInterrupt, Message: fmt.Sprintf("InterruptedError: %v", interrupted.Value())}
	}
	var ex *goja.Exception
	if !errors.As(err, &ex) || ex.Value() == nil {
		return &Failure{Kind: KindRuntime, Message: err.Error()}
	}
	msg := ex.Value().String()
	kind := KindRuntime
	if obj, ok := ex.Value().(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && name.String() == "SyntaxError" {
			kind = KindSyntax
			msg = strings.Replace(msg, "SyntaxError: SyntaxError: ", "SyntaxError: ", 1)
		}
	}
	return &Failure{Kind: kind, Message: msg}
}

// bindCanvas builds the JavaScript objects for the canvas element and its
// 2D context.
func bindCanvas(vm *goja.Runtime, c *surface.Canvas) (canvasObj, ctxObj *goja.Object) {
	canvasObj = vm.NewObject()
	ctxObj = vm.NewObject()
	cx := c.Context()

	accessor := func(obj *goja.Object, name string, get func() any, set func(goja.Value)) {
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(get()) })
		var setter goja.Value
		if set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(call.Argument(0))
				return goja.Undefined()
			})
		}
		_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	method := func(obj *goja.Object, name string, fn func(call goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}
	float := func(call goja.FunctionCall, i int) float64 { return call.Argument(i).ToFloat() }
	dimension := func(v goja.Value) int {
		n := v.ToInteger()
		if n < 0 {
			return 0
		}
		return int(n)
	}

	accessor(canvasObj, "width", func() any { return c.Width() }, func(v goja.Value) { c.Resize(dimension(v), c.Height()) })
	accessor(canvasObj, "height", func() any { return c.Height() }, func(v goja.Value) { c.Resize(c.Width(), dimension(v)) })
	method(canvasObj, "getContext", func(call goja.FunctionCall) goja.Value {
		if call.Argument(0).String() == "2d" {
			return ctxObj
		}
		return goja.Null()
	})
	method(canvasObj, "toDataURL", func(goja.FunctionCall) goja.Value {
		url, err := c.DataURL()
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(url)
	})

	_ = ctxObj.Set("canvas", canvasObj)
	accessor(ctxObj, "fillStyle", func() any { return cx.FillStyle() }, func(v goja.Value) { cx.SetFillStyle(v.String()) })
	accessor(ctxObj, "strokeStyle", func() any { return cx.StrokeStyle() }, func(v goja.Value) { cx.SetStrokeStyle(v.String()) })
	accessor(ctxObj, "lineWidth", func() any { return cx.LineWidth() }, func(v goja.Value) { cx.SetLineWidth(v.ToFloat()) })
	accessor(ctxObj, "globalAlpha", func() any { return cx.GlobalAlpha() }, func(v goja.Value) { cx.SetGlobalAlpha(v.ToFloat()) })
	accessor(ctxObj, "font", func() any { return surface.Font }, func(goja.Value) {})

	rectOp := func(op func(x, y, w, h float64)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			op(float(call, 0), float(call, 1), float(call, 2), float(call, 3))
			return goja.Undefined()
		}
	}
	pointOp := func(op func(x, y float64)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			op(float(call, 0), float(call, 1))
			return goja.Undefined()
		}
	}
	noArg := func(op func()) func(goja.FunctionCall) goja.Value {
		return func(goja.FunctionCall) goja.Value {
			op()
			return goja.Undefined()
		}
	}

	method(ctxObj, "fillRect", rectOp(cx.FillRect))
	method(ctxObj, "strokeRect", rectOp(cx.StrokeRect))
	method(ctxObj, "clearRect", rectOp(cx.ClearRect))
	method(ctxObj, "rect", rectOp(cx.Rect))
	method(ctxObj, "moveTo", pointOp(cx.MoveTo))
	method(ctxObj, "lineTo", pointOp(cx.LineTo))
	method(ctxObj, "beginPath", noArg(cx.BeginPath))
	method(ctxObj, "closePath", noArg(cx.ClosePath))
	method(ctxObj, "fill", noArg(cx.Fill))
	method(ctxObj, "stroke", noArg(cx.Stroke))
	method(ctxObj, "save", noArg(cx.Save))
	method(ctxObj, "restore", noArg(cx.Restore))
	method(ctxObj, "arc", func(call goja.FunctionCall) goja.Value {
		cx.Arc(float(call, 0), float(call, 1), float(call, 2), float(call, 3), float(call, 4), call.Argument(5).ToBoolean())
		return goja.Undefined()
	})
	method(ctxObj, "fillText", func(call goja.FunctionCall) goja.Value {
		cx.FillText(call.Argument(0).String(), float(call, 1), float(call, 2))
		return goja.Undefined()
	})
	method(ctxObj, "measureText", func(call goja.FunctionCall) goja.Value {
		m := vm.NewObject()
		_ = m.Set("width", cx.MeasureText(call.Argument(0).String()))
		return m
	})
	return canvasObj, ctxObj
}
