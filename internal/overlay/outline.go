package overlay

import (
	"image"
	"image/color"
	"sync"
)

// OutlineWidget strokes a closed polygon, used to mark the rotated crop
// region on the raw view
type OutlineWidget struct {
	*BaseWidget
	points    []image.Point
	color     color.RGBA
	thickness int
	mu        sync.RWMutex
}

// NewOutlineWidget creates an empty outline; it draws nothing until
// SetPoints is called
func NewOutlineWidget(id string) *OutlineWidget {
	return &OutlineWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		color:      color.RGBA{0, 255, 0, 255},
		thickness:  2,
	}
}

// SetPoints replaces the polygon's vertices
func (w *OutlineWidget) SetPoints(points []image.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points[:0], points...)
}

// Points returns a copy of the polygon's vertices
func (w *OutlineWidget) Points() []image.Point {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]image.Point(nil), w.points...)
}

// SetColor sets the stroke color
func (w *OutlineWidget) SetColor(c color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.color = c
}

// SetThickness sets the stroke width in pixels
func (w *OutlineWidget) SetThickness(px int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.thickness = max(1, px)
}

// Render strokes each edge of the polygon, closing it back to the first vertex
func (w *OutlineWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}

	w.mu.RLock()
	points := w.points
	c := w.color
	thickness := w.thickness
	w.mu.RUnlock()

	if len(points) < 2 {
		return nil
	}

	for i, p := range points {
		q := points[(i+1)%len(points)]
		strokeLine(img, p, q, c, thickness, w.Opacity())
	}
	return nil
}

// strokeLine draws a Bresenham line from p to q, stamping a square of
// side thickness at every step
func strokeLine(img *image.RGBA, p, q image.Point, c color.RGBA, thickness int, opacity float64) {
	dx, dy := abs(q.X-p.X), -abs(q.Y-p.Y)
	sx, sy := sign(q.X-p.X), sign(q.Y-p.Y)
	e := dx + dy
	off := thickness / 2

	x, y := p.X, p.Y
	for {
		for ty := 0; ty < thickness; ty++ {
			for tx := 0; tx < thickness; tx++ {
				plot(img, x-off+tx, y-off+ty, c, opacity)
			}
		}
		if x == q.X && y == q.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// plot blends one pixel; points outside img are ignored
func plot(img *image.RGBA, x, y int, c color.RGBA, opacity float64) {
	if !(image.Point{x, y}).In(img.Bounds()) {
		return
	}
	alpha := float64(c.A) / 255 * opacity
	if alpha <= 0 {
		return
	}
	d := img.RGBAAt(x, y)
	img.SetRGBA(x, y, color.RGBA{
		R: blend(c.R, d.R, alpha, alpha),
		G: blend(c.G, d.G, alpha, alpha),
		B: blend(c.B, d.B, alpha, alpha),
		A: blend(c.A, d.A, alpha, alpha),
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
