package cpu

import (
	"fmt"
	"math"

	"github.com/Distortions81/stable-fluids/internal/field"
)

// texture is host-memory field storage. Texels are laid out row-major from
// the bottom row up, matching texture-space v.
type texture struct {
	width, height int
	channels      int
	half          bool
	data          []float32
	released      bool
}

func newTexture(w, h int, f field.Format) *texture {
	ch := f.Channels()
	return &texture{
		width:    w,
		height:   h,
		channels: ch,
		half:     f.Half(),
		data:     make([]float32, w*h*ch),
	}
}

func (t *texture) Release() {
	t.released = true
	t.data = nil
}

func clampCoord(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (t *texture) offset(x, y int) int {
	x = clampCoord(x, 0, t.width-1)
	y = clampCoord(y, 0, t.height-1)
	return (y*t.width + x) * t.channels
}

// at returns channel c of the texel nearest (x,y), clamped to the edge.
func (t *texture) at(x, y, c int) float32 {
	if c >= t.channels {
		return 0
	}
	return t.data[t.offset(x, y)+c]
}

// vec2 returns the first two channels of a clamped texel.
func (t *texture) vec2(x, y int) (float32, float32) {
	i := t.offset(x, y)
	if t.channels < 2 {
		return t.data[i], 0
	}
	return t.data[i], t.data[i+1]
}

// bilinear samples the texture at (u,v) in texture space with linear
// filtering and clamp-to-edge addressing, writing n channels into dst.
func (t *texture) bilinear(u, v float32, dst []float32) {
	px := u*float32(t.width) - 0.5
	py := v*float32(t.height) - 0.5
	fx0 := float32(math.Floor(float64(px)))
	fy0 := float32(math.Floor(float64(py)))
	tx := px - fx0
	ty := py - fy0
	x0, y0 := int(fx0), int(fy0)
	i00 := t.offset(x0, y0)
	i10 := t.offset(x0+1, y0)
	i01 := t.offset(x0, y0+1)
	i11 := t.offset(x0+1, y0+1)
	for c := range dst {
		if c >= t.channels {
			dst[c] = 0
			continue
		}
		a := t.data[i00+c] + (t.data[i10+c]-t.data[i00+c])*tx
		b := t.data[i01+c] + (t.data[i11+c]-t.data[i01+c])*tx
		dst[c] = a + (b-a)*ty
	}
}

// set stores value into channel c, rounding to half precision when the
// storage format requires it.
func (t *texture) set(x, y, c int, value float32) {
	if t.half {
		value = field.QuantizeHalf(value)
	}
	t.data[(y*t.width+x)*t.channels+c] = value
}

func textureOf(f *field.Field) (*texture, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("field %v is not allocated", f)
	}
	t, ok := f.Texture.(*texture)
	if !ok {
		return nil, fmt.Errorf("field %s is bound to a %T, not a cpu texture", f.Name, f.Texture)
	}
	if t.released {
		return nil, fmt.Errorf("field %s texture already released", f.Name)
	}
	if t.width != f.Width || t.height != f.Height {
		return nil, fmt.Errorf("field %s is %dx%d but its texture is %dx%d", f.Name, f.Width, f.Height, t.width, t.height)
	}
	return t, nil
}
