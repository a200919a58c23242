// Package transform rotates a frame about a normalized center and crops a
// normalized rectangle from it, shrinking the rectangle whenever its
// rotated corners would sample outside the source frame.
package transform

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrInvalidFrame is returned when the input frame fails validation
var ErrInvalidFrame = errors.New("invalid input frame")

// DefaultInterpolation is the kernel used when none is configured
const DefaultInterpolation = "bilinear"

var interpolators = map[string]draw.Interpolator{
	"nearest":         draw.NearestNeighbor,
	"approx-bilinear": draw.ApproxBiLinear,
	"bilinear":        draw.BiLinear,
	"catmull-rom":     draw.CatmullRom,
}

// Interpolations lists the accepted kernel names
func Interpolations() []string {
	names := make([]string, 0, len(interpolators))
	for name := range interpolators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine applies rotate-and-crop transforms. It holds no per-frame state
// and is safe for concurrent use.
type Engine struct {
	interp draw.Interpolator
	name   string
}

// NewEngine creates an engine using the named resampling kernel.
// An empty name selects DefaultInterpolation.
func NewEngine(interpolation string) (*Engine, error) {
	name := strings.ToLower(strings.TrimSpace(interpolation))
	if name == "" {
		name = DefaultInterpolation
	}
	interp, ok := interpolators[name]
	if !ok {
		return nil, fmt.Errorf("unknown interpolation %q (use one of: %s)",
			interpolation, strings.Join(Interpolations(), ", "))
	}
	return &Engine{interp: interp, name: name}, nil
}

// Interpolation returns the kernel name
func (e *Engine) Interpolation() string {
	return e.name
}

// Apply returns the rotated and cropped region of f as a new frame
func (e *Engine) Apply(f *frame.Frame, p Params) (*frame.Frame, error) {
	out, _, err := e.ApplyWithGeometry(f, p)
	return out, err
}

// ApplyWithGeometry is Apply that also reports the planned crop
func (e *Engine) ApplyWithGeometry(f *frame.Frame, p Params) (*frame.Frame, Geometry, error) {
	if err := f.Validate(); err != nil {
		return nil, Geometry{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	g := Plan(f.Width, f.Height, p)
	if p.IsIdentity() {
		return f.Clone(), g, nil
	}

	s2d := sourceToCrop(g)
	pad := samplePadding(s2d, g.Crop.Dx(), g.Crop.Dy(), f.Width, f.Height)
	src := replicateBorder(f, pad)

	dst := image.NewRGBA(image.Rect(0, 0, g.Crop.Dx(), g.Crop.Dy()))
	e.interp.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)

	out, err := frame.FromRGBA(dst, f.Channels)
	if err != nil {
		return nil, g, err
	}
	if f.Channels == 1 {
		// FromRGBA computes luma; gray input was replicated into R, G and B,
		// so taking R back is exact.
		for i := range out.Pix {
			out.Pix[i] = dst.Pix[i*4]
		}
	}
	return out, g, nil
}

// sourceToCrop maps source pixel coordinates into the crop's coordinates:
// a rotation about the center by the plan's angle (positive turns the
// image counter-clockwise on screen) followed by a shift that puts the
// crop's top-left at the origin.
func sourceToCrop(g Geometry) f64.Aff3 {
	sin, cos := math.Sincos(g.Angle * math.Pi / 180)
	cx, cy := float64(g.CenterX), float64(g.CenterY)
	ox, oy := float64(g.Crop.Min.X), float64(g.Crop.Min.Y)
	return f64.Aff3{
		cos, sin, (1-cos)*cx - sin*cy - ox,
		-sin, cos, sin*cx + (1-cos)*cy - oy,
	}
}

// samplePadding returns how far outside the frame the crop's samples
// reach, plus room for the widest kernel.
func samplePadding(s2d f64.Aff3, cropW, cropH, width, height int) int {
	d2s := invert(s2d)
	over := 0.0
	for _, p := range [4]Point{{0, 0}, {float64(cropW), 0}, {float64(cropW), float64(cropH)}, {0, float64(cropH)}} {
		x := d2s[0]*p.X + d2s[1]*p.Y + d2s[2]
		y := d2s[3]*p.X + d2s[4]*p.Y + d2s[5]
		over = math.Max(over, math.Max(-x, x-float64(width)))
		over = math.Max(over, math.Max(-y, y-float64(height)))
	}
	return int(math.Ceil(over)) + 2
}

func invert(m f64.Aff3) f64.Aff3 {
	det := m[0]*m[4] - m[1]*m[3]
	return f64.Aff3{
		m[4] / det, -m[1] / det, (m[1]*m[5] - m[4]*m[2]) / det,
		-m[3] / det, m[0] / det, (m[3]*m[2] - m[0]*m[5]) / det,
	}
}

// replicateBorder copies f into an RGBA image whose bounds extend pad
// pixels past every edge, filling the margin with the nearest edge pixel.
func replicateBorder(f *frame.Frame, pad int) *image.RGBA {
	img := image.NewRGBA(image.Rect(-pad, -pad, f.Width+pad, f.Height+pad))
	c := int(f.Channels)
	for y := -pad; y < f.Height+pad; y++ {
		sy := clamp(y, 0, f.Height-1)
		row := img.Pix[(y+pad)*img.Stride:]
		for x := -pad; x < f.Width+pad; x++ {
			sx := clamp(x, 0, f.Width-1)
			src := f.Pix[(sy*f.Width+sx)*c:]
			dst := row[(x+pad)*4 : (x+pad)*4+4]
			switch c {
			case 1:
				dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 0xff
			case 3:
				dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xff
			default:
				copy(dst, src[:4])
			}
		}
	}
	return img
}
