// Package surface implements the drawing surface handed to widget code: an
// RGBA bitmap with the dimensions of an HTML canvas element and a 2D drawing
// context modelled on CanvasRenderingContext2D.
package surface

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"
)

// Dimensions of a canvas element that has no (valid) width/height attributes.
const (
	DefaultWidth  = 300
	DefaultHeight = 150
)

// Canvas is a raster drawing surface. It is not safe for concurrent use; a
// widget owns its canvas exclusively.
type Canvas struct {
	img  *image.RGBA
	ctx  *Context
	maxW int // 0 means unlimited
	maxH int
}

// New creates a transparent canvas of the given size. Negative dimensions are
// treated as zero.
func New(width, height int) *Canvas {
	c := &Canvas{}
	c.ctx = newContext(c)
	c.Resize(width, height)
	return c
}

// SetLimit caps the canvas dimensions. The current bitmap is resized if it
// exceeds the new limit. A zero limit disables the cap for that axis.
func (c *Canvas) SetLimit(maxWidth, maxHeight int) {
	c.maxW, c.maxH = maxWidth, maxHeight
	w, h := c.Width(), c.Height()
	if (c.maxW > 0 && w > c.maxW) || (c.maxH > 0 && h > c.maxH) {
		c.Resize(w, h)
	}
}

// Resize replaces the bitmap with a transparent one of the given size and
// resets the context state, as assigning canvas.width does in a browser.
func (c *Canvas) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)
	if c.maxW > 0 {
		width = min(width, c.maxW)
	}
	if c.maxH > 0 {
		height = min(height, c.maxH)
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	c.ctx.reset()
}

// Width returns the bitmap width in pixels.
func (c *Canvas) Width() int { return c.img.Bounds().Dx() }

// Height returns the bitmap height in pixels.
func (c *Canvas) Height() int { return c.img.Bounds().Dy() }

// Context returns the canvas' 2D context. There is exactly one per canvas.
func (c *Canvas) Context() *Context { return c.ctx }

// Image exposes the underlying bitmap.
func (c *Canvas) Image() *image.RGBA { return c.img }

// At returns the premultiplied colour at (x, y). Points outside the bitmap
// are transparent.
func (c *Canvas) At(x, y int) color.RGBA {
	return c.img.RGBAAt(x, y)
}

// PaintedPixels counts pixels that are not fully transparent.
func (c *Canvas) PaintedPixels() int {
	n := 0
	for i := 3; i < len(c.img.Pix); i += 4 {
		if c.img.Pix[i] != 0 {
			n++
		}
	}
	return n
}

// EncodePNG writes the bitmap as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if c.Width() == 0 || c.Height() == 0 {
		return fmt.Errorf("surface: cannot encode empty %dx%d canvas", c.Width(), c.Height())
	}
	return png.Encode(w, c.img)
}

// DataURL returns the bitmap as a "data:image/png;base64," URL. Empty
// canvases produce "data:,", matching toDataURL in browsers.
func (c *Canvas) DataURL() (string, error) {
	if c.Width() == 0 || c.Height() == 0 {
		return "data:,", nil
	}
	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ParseDimension parses a canvas width/height attribute using the rules for
// non-negative integers; def is returned for missing or invalid values.
func ParseDimension(attr string, def int) int {
	s := strings.TrimSpace(attr)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return def
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return def
	}
	return n
}
