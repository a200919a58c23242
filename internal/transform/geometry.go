package transform

import (
	"image"
	"math"
)

const (
	// boundsEpsilon absorbs float error when a corner lands exactly on an edge
	boundsEpsilon = 1e-6

	// floorEpsilon keeps a product like 387.99999999 from flooring to 387
	floorEpsilon = 1e-9
)

// Params describes the rotate-then-crop request in normalized units.
// Alpha is in degrees; OX, OY, Width and Height are fractions of the frame.
type Params struct {
	Alpha  float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`
	OX     float64 `json:"ox" yaml:"ox" mapstructure:"ox"`
	OY     float64 `json:"oy" yaml:"oy" mapstructure:"oy"`
	Width  float64 `json:"width" yaml:"width" mapstructure:"width"`
	Height float64 `json:"height" yaml:"height" mapstructure:"height"`
}

// DefaultParams returns the no-op transform: no rotation, full frame
func DefaultParams() Params {
	return Params{Alpha: 0, OX: 0.5, OY: 0.5, Width: 1, Height: 1}
}

// IsIdentity reports whether the params leave any frame unchanged
func (p Params) IsIdentity() bool {
	return NormalizeAngle(p.Alpha) == 0 &&
		p.OX == 0.5 && p.OY == 0.5 &&
		p.Width == 1 && p.Height == 1
}

// NormalizeAngle maps any angle in degrees into [0, 360)
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	if a == 360 {
		a = 0
	}
	return a
}

// Point is a position in continuous pixel coordinates
type Point struct {
	X, Y float64
}

// Geometry is the planned crop for one frame size
type Geometry struct {
	FrameWidth  int
	FrameHeight int

	// Rotation center in pixels
	CenterX int
	CenterY int

	// Angle in degrees, normalized
	Angle float64

	// Crop size before and after shrinking
	RequestedWidth  int
	RequestedHeight int
	Width           int
	Height          int

	// Scale applied to the requested size; 1 when nothing had to shrink
	Scale float64

	// Corners of Crop mapped back into the source frame, clockwise from
	// top-left. These are the extremes the warp samples.
	Corners [4]Point

	// Crop is the pixel rectangle taken from the rotated frame, clamped to
	// the frame
	Crop image.Rectangle
}

// Shrunk reports whether the requested crop had to be scaled down
func (g Geometry) Shrunk() bool {
	return g.Width != g.RequestedWidth || g.Height != g.RequestedHeight
}

// InBounds reports whether every corner lies within the frame's extent
func (g Geometry) InBounds() bool {
	for _, c := range g.Corners {
		if !inside(c, g.FrameWidth, g.FrameHeight) {
			return false
		}
	}
	return true
}

// Plan computes the crop for a width x height frame.
//
// The requested rectangle is centered on the rotation center and its
// corners are rotated into source coordinates. Any corner that leaves the
// frame yields, per violated axis, the factor that would pull it back
// onto that edge with the center held fixed. The smallest factor scales
// both sides, so the requested aspect ratio survives the shrink. The
// resulting pixel rectangle is then checked as extracted and shrunk
// further by whole pixels if rounding pushed a corner out.
//
// A center on the frame edge leaves no room at all: the crop becomes the
// nearest single pixel, and under rotation that pixel's corners may reach
// past the edge. The same holds for a one pixel crop next to the edge. InBounds reports false in that case and the warp fills
// the overhang by edge replication.
func Plan(width, height int, p Params) Geometry {
	g := Geometry{
		FrameWidth:      width,
		FrameHeight:     height,
		CenterX:         int(math.Round(p.OX * float64(width))),
		CenterY:         int(math.Round(p.OY * float64(height))),
		Angle:           NormalizeAngle(p.Alpha),
		RequestedWidth:  atLeastOne(int(math.Round(p.Width * float64(width)))),
		RequestedHeight: atLeastOne(int(math.Round(p.Height * float64(height)))),
		Scale:           1,
	}

	cx, cy := float64(g.CenterX), float64(g.CenterY)
	w, h := float64(width), float64(height)
	sin, cos := math.Sincos(g.Angle * math.Pi / 180)

	requested := corners(cx, cy, float64(g.RequestedWidth), float64(g.RequestedHeight), sin, cos)
	for _, c := range requested {
		if inside(c, width, height) {
			continue
		}
		g.Scale = math.Min(g.Scale, axisScale(c.X, cx, w))
		g.Scale = math.Min(g.Scale, axisScale(c.Y, cy, h))
	}

	g.Width = g.RequestedWidth
	g.Height = g.RequestedHeight
	if g.Scale < 1 {
		g.resize()
	}

	// Integer halving leaves an odd-sized crop half a pixel off the
	// center, so the rectangle actually extracted is checked, not the
	// ideal one. Each step takes one pixel off the longer requested side.
	step := 1 / float64(max(g.RequestedWidth, g.RequestedHeight))
	for {
		g.Crop = clampToFrame(cropRect(g.CenterX, g.CenterY, g.Width, g.Height), width, height)
		g.Corners = rectCorners(g.Crop, cx, cy, sin, cos)
		if g.InBounds() || (g.Width == 1 && g.Height == 1) {
			break
		}
		g.Scale = math.Max(0, g.Scale-step)
		g.resize()
	}

	return g
}

// resize applies Scale to the requested size, flooring to at least one pixel
func (g *Geometry) resize() {
	g.Width = atLeastOne(int(math.Floor(float64(g.RequestedWidth)*g.Scale + floorEpsilon)))
	g.Height = atLeastOne(int(math.Floor(float64(g.RequestedHeight)*g.Scale + floorEpsilon)))
}

// cropRect is the w x h pixel rectangle around (cx, cy), with the odd
// pixel of an odd size falling right of or below the center
func cropRect(cx, cy, w, h int) image.Rectangle {
	x0, y0 := cx-w/2, cy-h/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// clampToFrame clips r to the frame. An axis that falls entirely outside,
// which happens when the center sits on the frame edge, keeps the nearest
// row or column of pixels.
func clampToFrame(r image.Rectangle, width, height int) image.Rectangle {
	x0, x1 := clampSpan(r.Min.X, r.Max.X, width)
	y0, y1 := clampSpan(r.Min.Y, r.Max.Y, height)
	return image.Rect(x0, y0, x1, y1)
}

func clampSpan(lo, hi, n int) (int, int) {
	a, b := max(lo, 0), min(hi, n)
	if a < b {
		return a, b
	}
	p := clamp(lo, 0, n-1)
	return p, p + 1
}

// rectCorners maps the corners of r, a rectangle of the rotated frame,
// back into source coordinates, clockwise from top-left
func rectCorners(r image.Rectangle, cx, cy, sin, cos float64) [4]Point {
	rel := [4]Point{
		{float64(r.Min.X) - cx, float64(r.Min.Y) - cy},
		{float64(r.Max.X) - cx, float64(r.Min.Y) - cy},
		{float64(r.Max.X) - cx, float64(r.Max.Y) - cy},
		{float64(r.Min.X) - cx, float64(r.Max.Y) - cy},
	}
	return rotate(rel, cx, cy, sin, cos)
}

// axisScale returns the factor that brings coordinate v back inside
// [0, limit] when scaling about center c, or 1 when v is not outside on
// this axis. Corners level with the center cannot be fixed by scaling and
// are skipped.
func axisScale(v, c, limit float64) float64 {
	switch {
	case v < -boundsEpsilon:
		if d := c - v; d > 0 {
			return math.Max(0, c/d)
		}
	case v > limit+boundsEpsilon:
		if d := v - c; d > 0 {
			return math.Max(0, (limit-c)/d)
		}
	}
	return 1
}

// corners returns the rectangle's corners rotated about (cx, cy),
// clockwise from top-left
func corners(cx, cy, w, h, sin, cos float64) [4]Point {
	rel := [4]Point{
		{-w / 2, -h / 2},
		{w / 2, -h / 2},
		{w / 2, h / 2},
		{-w / 2, h / 2},
	}
	return rotate(rel, cx, cy, sin, cos)
}

func rotate(rel [4]Point, cx, cy, sin, cos float64) [4]Point {
	var out [4]Point
	for i, r := range rel {
		out[i] = Point{
			X: cx + r.X*cos - r.Y*sin,
			Y: cy + r.X*sin + r.Y*cos,
		}
	}
	return out
}

func inside(p Point, width, height int) bool {
	return p.X >= -boundsEpsilon && p.X <= float64(width)+boundsEpsilon &&
		p.Y >= -boundsEpsilon && p.Y <= float64(height)+boundsEpsilon
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
