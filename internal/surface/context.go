package surface

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Font is the only face available to fillText.
const Font = "13px monospace"

// glyphAdvance is the fixed advance of basicfont.Face7x13.
const glyphAdvance = 7

var black = color.NRGBA{A: 255}

type point struct{ x, y float64 }

type subpath struct {
	pts    []point
	closed bool
}

// drawState is the part of the context saved and restored by save/restore.
type drawState struct {
	fill      color.NRGBA
	stroke    color.NRGBA
	lineWidth float64
	alpha     float64
}

// Context is the 2D rendering context of a Canvas. Coordinates are in
// pixels with the origin at the top-left corner; non-finite arguments make
// an operation a no-op, as in browsers.
//
// Drawing work is bounded by the canvas size, not by the coordinates passed
// in. Interrupt makes pending and running path operations return early so
// an evaluation timeout also covers host-side drawing.
type Context struct {
	canvas *Canvas
	drawState
	saved []drawState
	path  []subpath

	z    *vector.Rasterizer
	halt atomic.Bool
}

func newContext(c *Canvas) *Context {
	ctx := &Context{canvas: c}
	ctx.reset()
	return ctx
}

func (ctx *Context) reset() {
	ctx.drawState = drawState{fill: black, stroke: black, lineWidth: 1, alpha: 1}
	ctx.saved = nil
	ctx.path = nil
}

// Interrupt stops path rasterisation until Resume is called. It is safe to
// call from another goroutine.
func (ctx *Context) Interrupt() { ctx.halt.Store(true) }

// Resume re-enables drawing after Interrupt.
func (ctx *Context) Resume() { ctx.halt.Store(false) }

// Canvas returns the canvas this context draws on.
func (ctx *Context) Canvas() *Canvas { return ctx.canvas }

// FillStyle returns the current fill colour in canonical form.
func (ctx *Context) FillStyle() string { return FormatColor(ctx.fill) }

// SetFillStyle sets the fill colour. Unparseable values are ignored.
func (ctx *Context) SetFillStyle(s string) {
	if c, ok := ParseColor(s); ok {
		ctx.fill = c
	}
}

// StrokeStyle returns the current stroke colour in canonical form.
func (ctx *Context) StrokeStyle() string { return FormatColor(ctx.stroke) }

// SetStrokeStyle sets the stroke colour. Unparseable values are ignored.
func (ctx *Context) SetStrokeStyle(s string) {
	if c, ok := ParseColor(s); ok {
		ctx.stroke = c
	}
}

func (ctx *Context) LineWidth() float64 { return ctx.lineWidth }

// SetLineWidth ignores zero, negative and non-finite widths.
func (ctx *Context) SetLineWidth(w float64) {
	if finite(w) && w > 0 {
		ctx.lineWidth = w
	}
}

func (ctx *Context) GlobalAlpha() float64 { return ctx.alpha }

// SetGlobalAlpha ignores values outside [0, 1].
func (ctx *Context) SetGlobalAlpha(a float64) {
	if finite(a) && a >= 0 && a <= 1 {
		ctx.alpha = a
	}
}

// Save pushes the drawing state.
func (ctx *Context) Save() {
	ctx.saved = append(ctx.saved, ctx.drawState)
}

// Restore pops the drawing state; it does nothing on an empty stack.
func (ctx *Context) Restore() {
	if n := len(ctx.saved); n > 0 {
		ctx.drawState = ctx.saved[n-1]
		ctx.saved = ctx.saved[:n-1]
	}
}

// FillRect paints a rectangle with the fill colour. Integer-aligned
// rectangles are copied directly; others are rasterised with coverage.
func (ctx *Context) FillRect(x, y, w, h float64) {
	if !finite(x, y, w, h) || w == 0 || h == 0 {
		return
	}
	x, w = normalizeSpan(x, w)
	y, h = normalizeSpan(y, h)
	if isInt(x, y, w, h) {
		r := ctx.clip(x, y, x+w, y+h)
		draw.Draw(ctx.canvas.img, r, image.NewUniform(ctx.paint(ctx.fill)), image.Point{}, draw.Over)
		return
	}
	ctx.fillPolygons([][]point{rectPoints(x, y, w, h)}, ctx.fill)
}

// ClearRect makes a rectangle fully transparent.
func (ctx *Context) ClearRect(x, y, w, h float64) {
	if !finite(x, y, w, h) || w == 0 || h == 0 {
		return
	}
	x, w = normalizeSpan(x, w)
	y, h = normalizeSpan(y, h)
	r := ctx.clip(math.Floor(x), math.Floor(y), math.Ceil(x+w), math.Ceil(y+h))
	draw.Draw(ctx.canvas.img, r, image.Transparent, image.Point{}, draw.Src)
}

// StrokeRect outlines a rectangle without touching the current path.
func (ctx *Context) StrokeRect(x, y, w, h float64) {
	if !finite(x, y, w, h) {
		return
	}
	ctx.strokeSubpaths([]subpath{{pts: rectPoints(x, y, w, h), closed: true}})
}

// BeginPath discards the current path.
func (ctx *Context) BeginPath() { ctx.path = nil }

// ClosePath marks the current subpath closed and starts a new one at its
// first point.
func (ctx *Context) ClosePath() {
	n := len(ctx.path)
	if n == 0 || len(ctx.path[n-1].pts) == 0 {
		return
	}
	ctx.path[n-1].closed = true
	first := ctx.path[n-1].pts[0]
	ctx.path = append(ctx.path, subpath{pts: []point{first}})
}

// MoveTo starts a new subpath at (x, y).
func (ctx *Context) MoveTo(x, y float64) {
	if !finite(x, y) {
		return
	}
	ctx.path = append(ctx.path, subpath{pts: []point{{x, y}}})
}

// LineTo adds a straight segment; without a current point it behaves like
// MoveTo.
func (ctx *Context) LineTo(x, y float64) {
	if !finite(x, y) {
		return
	}
	n := len(ctx.path)
	if n == 0 {
		ctx.MoveTo(x, y)
		return
	}
	ctx.path[n-1].pts = append(ctx.path[n-1].pts, point{x, y})
}

// Rect adds a closed rectangular subpath.
func (ctx *Context) Rect(x, y, w, h float64) {
	if !finite(x, y, w, h) {
		return
	}
	ctx.path = append(ctx.path, subpath{pts: rectPoints(x, y, w, h), closed: true})
	ctx.path = append(ctx.path, subpath{pts: []point{{x, y}}})
}

// Arc adds a circular arc centred at (x, y) from start to end angle
// (radians), flattened into line segments.
func (ctx *Context) Arc(x, y, r, start, end float64, counterclockwise bool) {
	if !finite(x, y, r, start, end) || r < 0 {
		return
	}
	sweep := end - start
	switch {
	case !counterclockwise && sweep >= 2*math.Pi, counterclockwise && -sweep >= 2*math.Pi:
		sweep = 2 * math.Pi
		if counterclockwise {
			sweep = -sweep
		}
	case !counterclockwise:
		sweep = math.Mod(sweep, 2*math.Pi)
		if sweep < 0 {
			sweep += 2 * math.Pi
		}
	default:
		sweep = math.Mod(sweep, 2*math.Pi)
		if sweep > 0 {
			sweep -= 2 * math.Pi
		}
	}
	steps := ctx.arcSteps(sweep, r)
	for i := 0; i <= steps; i++ {
		a := start + sweep*float64(i)/float64(steps)
		ctx.LineTo(x+r*math.Cos(a), y+r*math.Sin(a))
	}
}

// arcSteps picks the number of segments for an arc: about one per two
// pixels of arc length, at most a few per pixel of canvas perimeter.
func (ctx *Context) arcSteps(sweep, r float64) int {
	steps := math.Ceil(math.Abs(sweep) * math.Max(r, 1) / 2)
	limit := float64(4*(ctx.canvas.Width()+ctx.canvas.Height()) + 8)
	return int(clampFloat(steps, 8, limit))
}

// Fill paints the interior of the current path with the fill colour.
func (ctx *Context) Fill() {
	var polys [][]point
	for _, sp := range ctx.path {
		if len(sp.pts) >= 3 {
			polys = append(polys, sp.pts)
		}
	}
	ctx.fillPolygons(polys, ctx.fill)
}

// Stroke outlines the current path with the stroke colour and line width.
func (ctx *Context) Stroke() {
	ctx.strokeSubpaths(ctx.path)
}

// FillText draws text with its alphabetic baseline at y.
func (ctx *Context) FillText(text string, x, y float64) {
	if !finite(x, y) || text == "" {
		return
	}
	text, x = visibleText(text, x, float64(ctx.canvas.Width()))
	if text == "" {
		return
	}
	d := font.Drawer{
		Dst:  ctx.canvas.img,
		Src:  image.NewUniform(ctx.paint(ctx.fill)),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(text)
}

// MeasureText returns the advance width of text in pixels.
func (ctx *Context) MeasureText(text string) float64 {
	return float64(font.MeasureString(basicfont.Face7x13, text)) / 64
}

// paint applies globalAlpha to c.
func (ctx *Context) paint(c color.NRGBA) color.NRGBA {
	c.A = uint8(math.Round(float64(c.A) * ctx.alpha))
	return c
}

// fillPolygons paints polys with c using one coverage mask the size of
// their bounding box clipped to the canvas.
func (ctx *Context) fillPolygons(polys [][]point, c color.NRGBA) {
	if len(polys) == 0 || ctx.halt.Load() {
		return
	}
	r := ctx.bounds(polys)
	if r.Empty() {
		return
	}
	if ctx.z == nil {
		ctx.z = vector.NewRasterizer(r.Dx(), r.Dy())
	} else {
		ctx.z.Reset(r.Dx(), r.Dy())
	}
	z := ctx.z
	z.DrawOp = draw.Over
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	w, h := float64(r.Dx()), float64(r.Dy())
	for _, poly := range polys {
		for i := range poly {
			if ctx.halt.Load() {
				return
			}
			a, b := poly[i], poly[(i+1)%len(poly)]
			addEdge(z, point{a.x - ox, a.y - oy}, point{b.x - ox, b.y - oy}, w, h)
		}
	}
	z.Draw(ctx.canvas.img, r, image.NewUniform(ctx.paint(c)), image.Point{})
}

// strokeSubpaths turns every segment into a quad and fills them together.
// All quads share one winding direction, so where segments overlap their
// coverage saturates instead of cancelling.
func (ctx *Context) strokeSubpaths(paths []subpath) {
	half := ctx.lineWidth / 2
	var quads [][]point
	for _, sp := range paths {
		pts := sp.pts
		if sp.closed && len(pts) > 1 {
			pts = append(append([]point(nil), pts...), pts[0])
		}
		for i := 1; i < len(pts); i++ {
			if ctx.halt.Load() {
				return
			}
			a, b := pts[i-1], pts[i]
			dx, dy := b.x-a.x, b.y-a.y
			l := math.Hypot(dx, dy)
			if l == 0 || math.IsInf(l, 0) {
				continue
			}
			// Extend each segment by half the width so corners are covered.
			ux, uy := dx/l*half, dy/l*half
			nx, ny := -uy, ux
			a = point{a.x - ux, a.y - uy}
			b = point{b.x + ux, b.y + uy}
			q := []point{
				{a.x + nx, a.y + ny},
				{b.x + nx, b.y + ny},
				{b.x - nx, b.y - ny},
				{a.x - nx, a.y - ny},
			}
			if signedArea(q) < 0 {
				slices.Reverse(q)
			}
			quads = append(quads, q)
		}
	}
	ctx.fillPolygons(quads, ctx.stroke)
}

// bounds returns the pixel rectangle covering polys, clipped to the canvas.
func (ctx *Context) bounds(polys [][]point) image.Rectangle {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, poly := range polys {
		for _, p := range poly {
			x0, x1 = math.Min(x0, p.x), math.Max(x1, p.x)
			y0, y1 = math.Min(y0, p.y), math.Max(y1, p.y)
		}
	}
	return ctx.clip(math.Floor(x0), math.Floor(y0), math.Ceil(x1), math.Ceil(y1))
}

// addEdge adds the segment a-b to a w x h mask. Parts above or below the
// mask carry no coverage and are dropped. Parts left or right of it are
// moved onto the nearest vertical border, which keeps the accumulated
// coverage of every visible column.
func addEdge(z *vector.Rasterizer, a, b point, w, h float64) {
	if a.y == b.y || (a.y <= 0 && b.y <= 0) || (a.y >= h && b.y >= h) {
		return
	}
	atY := func(y float64) point {
		return point{a.x + (b.x-a.x)*(y-a.y)/(b.y-a.y), y}
	}
	p, q := a, b
	if p.y < 0 {
		p = atY(0)
	} else if p.y > h {
		p = atY(h)
	}
	if q.y < 0 {
		q = atY(0)
	} else if q.y > h {
		q = atY(h)
	}

	ts := []float64{0, 1}
	for _, xc := range [2]float64{0, w} {
		if (p.x < xc) != (q.x < xc) {
			if t := (xc - p.x) / (q.x - p.x); t > 0 && t < 1 {
				ts = append(ts, t)
			}
		}
	}
	slices.Sort(ts)
	lerp := func(t float64) point {
		return point{clampFloat(p.x+(q.x-p.x)*t, 0, w), p.y + (q.y-p.y)*t}
	}
	for i := 1; i < len(ts); i++ {
		s, e := lerp(ts[i-1]), lerp(ts[i])
		z.MoveTo(float32(s.x), float32(s.y))
		z.LineTo(float32(e.x), float32(e.y))
	}
}

func signedArea(poly []point) float64 {
	a := 0.0
	for i, p := range poly {
		q := poly[(i+1)%len(poly)]
		a += p.x*q.y - q.x*p.y
	}
	return a / 2
}

// visibleText drops the runes of text that would be drawn entirely left of
// the bitmap or past its right edge, returning the rest and its new origin.
func visibleText(text string, x, width float64) (string, float64) {
	if x >= width {
		return "", x
	}
	if x+glyphAdvance <= 0 {
		skip := math.Floor(-x / glyphAdvance)
		for ; skip > 0 && text != ""; skip-- {
			_, size := utf8.DecodeRuneInString(text)
			text = text[size:]
			x += glyphAdvance
		}
	}
	i := 0
	for n := int((width-x)/glyphAdvance) + 1; n > 0 && i < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return text[:i], x
}

// clip converts a rectangle to integer bounds within the bitmap.
func (ctx *Context) clip(x0, y0, x1, y1 float64) image.Rectangle {
	w, h := float64(ctx.canvas.Width()), float64(ctx.canvas.Height())
	return image.Rect(
		int(clampFloat(x0, 0, w)), int(clampFloat(y0, 0, h)),
		int(clampFloat(x1, 0, w)), int(clampFloat(y1, 0, h)),
	)
}

func rectPoints(x, y, w, h float64) []point {
	return []point{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

func normalizeSpan(start, length float64) (float64, float64) {
	if length < 0 {
		return start + length, -length
	}
	return start, length
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func isInt(vs ...float64) bool {
	for _, v := range vs {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}
