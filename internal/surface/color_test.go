package surface

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"red", color.NRGBA{R: 255, A: 255}, true},
		{"  CornflowerBlue ", color.NRGBA{R: 100, G: 149, B: 237, A: 255}, true},
		{"#0f0", color.NRGBA{G: 255, A: 255}, true},
		{"#11223344", color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, true},
		{"rgb(1, 2, 3)", color.NRGBA{R: 1, G: 2, B: 3, A: 255}, true},
		{"rgba(255,0,0,0.5)", color.NRGBA{R: 255, A: 128}, true},
		{"rgb(100%, 0%, 0%)", color.NRGBA{R: 255, A: 255}, true},
		{"transparent", color.NRGBA{}, true},
		{"#12", color.NRGBA{}, false},
		{"notacolor", color.NRGBA{}, false},
		{"rgb(1,2)", color.NRGBA{}, false},
		{"", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestFormatColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "#ff8000", FormatColor(color.NRGBA{R: 255, G: 128, A: 255}))
	assert.Equal(t, "rgba(0, 0, 0, 0)", FormatColor(color.NRGBA{}))
	assert.Equal(t, "rgba(255, 0, 0, 0.502)", FormatColor(color.NRGBA{R: 255, A: 128}))
}

func TestSetFillStyle_IgnoresInvalid(t *testing.T) {
	t.Parallel()
	ctx := New(1, 1).Context()
	ctx.SetFillStyle("green")
	ctx.SetFillStyle("bogus")
	assert.Equal(t, "#008000", ctx.FillStyle())
}
