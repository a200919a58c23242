package transform

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientFrame(width, height int, channels uint8) *frame.Frame {
	f := frame.New(width, height, channels)
	c := int(channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for k := 0; k < c; k++ {
				f.Pix[(y*width+x)*c+k] = byte(x*3 + y*5 + k*40)
			}
		}
	}
	return f
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{45, 45},
		{360, 0},
		{-90, 270},
		{725, 5},
		{-720, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9, "angle %v", tt.in)
	}
}

func TestIdentityTransform(t *testing.T) {
	engine, err := NewEngine("")
	require.NoError(t, err)

	for _, f := range []*frame.Frame{gradientFrame(640, 480, 3), gradientFrame(641, 479, 1), gradientFrame(7, 5, 4)} {
		out, err := engine.Apply(f, DefaultParams())
		require.NoError(t, err)
		assert.True(t, f.Equal(out), "frame %s", f)
	}

	full := Params{Alpha: 360, OX: 0.5, OY: 0.5, Width: 1, Height: 1}
	assert.True(t, full.IsIdentity())
}

func TestPlanNoShrinkAtZeroAngle(t *testing.T) {
	g := Plan(640, 480, DefaultParams())
	assert.Equal(t, 1.0, g.Scale)
	assert.False(t, g.Shrunk())
	assert.Equal(t, image.Rect(0, 0, 640, 480), g.Crop)
	assert.True(t, g.InBounds())
}

func TestPlanRotated45(t *testing.T) {
	g := Plan(640, 480, Params{Alpha: 45, OX: 0.5, OY: 0.5, Width: 0.8, Height: 0.8})

	assert.Equal(t, 320, g.CenterX)
	assert.Equal(t, 240, g.CenterY)
	assert.Equal(t, 512, g.RequestedWidth)
	assert.Equal(t, 384, g.RequestedHeight)

	// The top-left and bottom-right corners overflow vertically by the
	// rotated half-diagonal (256+192)*sin45 against a 240 pixel margin.
	want := 240 / (448 * math.Sqrt2 / 2)
	assert.InDelta(t, want, g.Scale, 1e-9)
	assert.True(t, g.Shrunk())
	assert.Equal(t, 387, g.Width)
	assert.Equal(t, 290, g.Height)
	assert.True(t, g.InBounds())
	assert.InDelta(t, 512.0/384.0, float64(g.Width)/float64(g.Height), 0.01)
	assert.Equal(t, image.Rect(127, 95, 514, 385), g.Crop)

	engine, err := NewEngine("bilinear")
	require.NoError(t, err)
	out, err := engine.Apply(gradientFrame(640, 480, 3), Params{Alpha: 45, OX: 0.5, OY: 0.5, Width: 0.8, Height: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 387, out.Width)
	assert.Equal(t, 290, out.Height)
	assert.Equal(t, uint8(3), out.Channels)
}

func TestPlanOversizedCropShrinks(t *testing.T) {
	g := Plan(640, 480, Params{Alpha: 0, OX: 0.2, OY: 0.5, Width: 1, Height: 1})

	// Left edge at 128-320 overflows; pulling it to 0 needs 128/320.
	assert.InDelta(t, 0.4, g.Scale, 1e-9)
	assert.Equal(t, 256, g.Width)
	assert.Equal(t, 192, g.Height)
	assert.True(t, g.InBounds())
}

func TestPlanDegenerateClampsToOnePixel(t *testing.T) {
	g := Plan(640, 480, Params{Alpha: 30, OX: 0, OY: 0, Width: 0.5, Height: 0.5})
	assert.Equal(t, 1, g.Width)
	assert.Equal(t, 1, g.Height)
	assert.Equal(t, 1, g.Crop.Dx())
	assert.Equal(t, 1, g.Crop.Dy())

	engine, err := NewEngine("nearest")
	require.NoError(t, err)
	out, err := engine.Apply(gradientFrame(640, 480, 3), Params{Alpha: 30, OX: 0, OY: 0, Width: 0.5, Height: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Width)
	assert.Equal(t, 1, out.Height)
	assert.Len(t, out.Pix, 3)
}

// extractedCorners rotates the pixel rectangle the engine crops back into
// the source frame, independently of Plan's own bookkeeping
func extractedCorners(g Geometry) []Point {
	sin, cos := math.Sincos(g.Angle * math.Pi / 180)
	cx, cy := float64(g.CenterX), float64(g.CenterY)
	var out []Point
	for _, p := range []image.Point{g.Crop.Min, {g.Crop.Max.X, g.Crop.Min.Y}, g.Crop.Max, {g.Crop.Min.X, g.Crop.Max.Y}} {
		dx, dy := float64(p.X)-cx, float64(p.Y)-cy
		out = append(out, Point{X: cx + dx*cos - dy*sin, Y: cy + dx*sin + dy*cos})
	}
	return out
}

func TestPlanBoundsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := [][2]int{{640, 480}, {1920, 1080}, {101, 37}, {480, 640}}

	for i := 0; i < 20000; i++ {
		size := sizes[i%len(sizes)]
		p := Params{
			Alpha:  rng.Float64()*1440 - 720,
			OX:     rng.Float64(),
			OY:     rng.Float64(),
			Width:  0.05 + rng.Float64()*0.95,
			Height: 0.05 + rng.Float64()*0.95,
		}
		g := Plan(size[0], size[1], p)

		require.True(t, g.Crop.In(image.Rect(0, 0, size[0], size[1])))
		require.LessOrEqual(t, g.Scale, 1.0)

		for k, c := range extractedCorners(g) {
			require.InDelta(t, c.X, g.Corners[k].X, 1e-9)
			require.InDelta(t, c.Y, g.Corners[k].Y, 1e-9)
		}

		// A single pixel is the floor; next to the edge it may overhang
		if g.Width == 1 && g.Height == 1 {
			continue
		}
		for _, c := range extractedCorners(g) {
			require.True(t, c.X >= -1e-6 && c.X <= float64(size[0])+1e-6 &&
				c.Y >= -1e-6 && c.Y <= float64(size[1])+1e-6,
				"params %+v on %v: extracted corner %v outside", p, size, c)
		}
		require.True(t, g.InBounds())

		if g.Shrunk() && g.Height > 20 && g.Width > 20 {
			want := float64(g.RequestedWidth) / float64(g.RequestedHeight)
			got := float64(g.Width) / float64(g.Height)
			tolerance := want * (1/float64(g.Width) + 1/float64(g.Height))
			require.InDelta(t, want, got, tolerance, "params %+v on %v", p, size)
		}
	}
}

func TestPlanOddCropStaysInside(t *testing.T) {
	p := Params{Alpha: 52.19, OX: 0.490, OY: 0.850, Width: 0.344, Height: 0.567}
	g := Plan(640, 480, p)

	assert.True(t, g.InBounds(), "corners %v", g.Corners)
	for _, c := range extractedCorners(g) {
		assert.GreaterOrEqual(t, c.Y, -1e-6)
		assert.LessOrEqual(t, c.Y, 480+1e-6)
	}
}

func TestPlanCenterOnFrameEdge(t *testing.T) {
	t.Run("unrotated keeps the edge pixel", func(t *testing.T) {
		g := Plan(640, 480, Params{Alpha: 0, OX: 1, OY: 0.5, Width: 0.5, Height: 0.5})
		assert.Equal(t, 0.0, g.Scale)
		assert.Equal(t, image.Rect(639, 240, 640, 241), g.Crop)
		assert.True(t, g.InBounds())
	})

	t.Run("rotated pixel overhangs and is edge replicated", func(t *testing.T) {
		p := Params{Alpha: 30, OX: 0, OY: 0, Width: 0.5, Height: 0.5}
		g := Plan(640, 480, p)
		assert.Equal(t, image.Rect(0, 0, 1, 1), g.Crop)
		assert.False(t, g.InBounds())

		f := frame.New(640, 480, 1)
		for i := range f.Pix {
			f.Pix[i] = 77
		}
		engine, err := NewEngine("bilinear")
		require.NoError(t, err)
		out, err := engine.Apply(f, p)
		require.NoError(t, err)
		assert.Equal(t, []byte{77}, out.Pix)
	})
}

func TestEdgeReplicationHasNoBlackFill(t *testing.T) {
	f := frame.New(64, 48, 3)
	for i := range f.Pix {
		f.Pix[i] = 200
	}

	engine, err := NewEngine("bilinear")
	require.NoError(t, err)

	for _, alpha := range []float64{10, 45, 90, 133, 270} {
		out, err := engine.Apply(f, Params{Alpha: alpha, OX: 0.5, OY: 0.5, Width: 1, Height: 1})
		require.NoError(t, err)
		for i, v := range out.Pix {
			require.Equal(t, byte(200), v, "alpha %v byte %d", alpha, i)
		}
	}
}

func TestRotate180(t *testing.T) {
	f := frame.New(4, 4, 1)
	for i := range f.Pix {
		f.Pix[i] = byte(i * 10)
	}

	engine, err := NewEngine("nearest")
	require.NoError(t, err)
	out, err := engine.Apply(f, Params{Alpha: 180, OX: 0.5, OY: 0.5, Width: 1, Height: 1})
	require.NoError(t, err)

	require.Equal(t, 4, out.Width)
	require.Equal(t, 4, out.Height)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, f.Pix[(3-y)*4+(3-x)], out.Pix[y*4+x], "pixel %d,%d", x, y)
		}
	}
}

func TestApplyRejectsInvalidFrame(t *testing.T) {
	engine, err := NewEngine("")
	require.NoError(t, err)

	_, err = engine.Apply(&frame.Frame{Width: 2, Height: 2, Channels: 3, DType: frame.Uint8}, DefaultParams())
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestNewEngineInterpolation(t *testing.T) {
	for _, name := range Interpolations() {
		e, err := NewEngine(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Interpolation())
	}

	_, err := NewEngine("lanczos")
	assert.Error(t, err)
}
