package surface

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor parses a CSS colour: named colours, "transparent", #rgb, #rgba,
// #rrggbb, #rrggbbaa, rgb() and rgba(). ok is false for anything else.
func ParseColor(s string) (c color.NRGBA, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return c, false
	case s == "transparent":
		return color.NRGBA{}, true
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[len("rgba(") : len(s)-1])
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[len("rgb(") : len(s)-1])
	}
	named, found := colornames.Map[s]
	if !found {
		return c, false
	}
	return color.NRGBA{R: named.R, G: named.G, B: named.B, A: named.A}, true
}

func parseHex(h string) (color.NRGBA, bool) {
	digits := make([]uint8, len(h))
	for i := 0; i < len(h); i++ {
		v, err := strconv.ParseUint(h[i:i+1], 16, 8)
		if err != nil {
			return color.NRGBA{}, false
		}
		digits[i] = uint8(v)
	}
	switch len(digits) {
	case 3, 4:
		c := color.NRGBA{R: digits[0] * 17, G: digits[1] * 17, B: digits[2] * 17, A: 255}
		if len(digits) == 4 {
			c.A = digits[3] * 17
		}
		return c, true
	case 6, 8:
		c := color.NRGBA{
			R: digits[0]<<4 | digits[1],
			G: digits[2]<<4 | digits[3],
			B: digits[4]<<4 | digits[5],
			A: 255,
		}
		if len(digits) == 8 {
			c.A = digits[6]<<4 | digits[7]
		}
		return c, true
	}
	return color.NRGBA{}, false
}

func parseFunc(args string) (color.NRGBA, bool) {
	parts := strings.Split(args, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, false
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		p := strings.TrimSpace(parts[i])
		var v float64
		var err error
		if strings.HasSuffix(p, "%") {
			v, err = strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
			v = v * 255 / 100
		} else {
			v, err = strconv.ParseFloat(p, 64)
		}
		if err != nil {
			return color.NRGBA{}, false
		}
		ch[i] = uint8(math.Round(clampFloat(v, 0, 255)))
	}
	a := 1.0
	if len(parts) == 4 {
		p := strings.TrimSpace(parts[3])
		var err error
		if strings.HasSuffix(p, "%") {
			a, err = strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
			a /= 100
		} else {
			a, err = strconv.ParseFloat(p, 64)
		}
		if err != nil {
			return color.NRGBA{}, false
		}
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: uint8(math.Round(clampFloat(a, 0, 1) * 255))}, true
}

// FormatColor serialises a colour the way canvas style getters do: "#rrggbb"
// for opaque colours, "rgba(r, g, b, a)" otherwise.
func FormatColor(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	a := strconv.FormatFloat(float64(c.A)/255, 'f', -1, 64)
	if len(a) > 10 {
		a = strconv.FormatFloat(math.Round(float64(c.A)/255*1000)/1000, 'f', -1, 64)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, a)
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
