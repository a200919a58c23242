package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// DType identifies the per-channel sample type of a frame.
// The value doubles as the dtype tag on the wire.
type DType uint8

const (
	// Uint8 is one unsigned byte per channel sample
	Uint8 DType = 1
)

// Size returns the byte width of one sample, or 0 for unknown types
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	default:
		return 0
	}
}

// String returns the dtype name
func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// ErrInvalid is returned by Validate for frames that break the buffer invariant
var ErrInvalid = errors.New("invalid frame")

// Frame is one captured image: an owned, contiguous, row-major pixel buffer
// plus the shape needed to interpret it.
type Frame struct {
	Width    int
	Height   int
	Channels uint8
	DType    DType
	Pix      []byte
}

// New allocates a zeroed uint8 frame
func New(width, height int, channels uint8) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		DType:    Uint8,
		Pix:      make([]byte, width*height*int(channels)),
	}
}

// SupportedChannels reports whether c is a layout this system can carry
func SupportedChannels(c uint8) bool {
	return c == 1 || c == 3 || c == 4
}

// Size returns the expected buffer length for the frame's shape
func (f *Frame) Size() int {
	return f.Width * f.Height * int(f.Channels) * f.DType.Size()
}

// Stride returns the byte length of one row
func (f *Frame) Stride() int {
	return f.Width * int(f.Channels) * f.DType.Size()
}

// Validate checks that the shape is usable and the buffer matches it
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalid)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalid, f.Width, f.Height)
	}
	if !SupportedChannels(f.Channels) {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalid, f.Channels)
	}
	if f.DType.Size() == 0 {
		return fmt.Errorf("%w: unsupported dtype %s", ErrInvalid, f.DType)
	}
	if len(f.Pix) != f.Size() {
		return fmt.Errorf("%w: buffer is %d bytes, shape %dx%dx%d needs %d",
			ErrInvalid, len(f.Pix), f.Width, f.Height, f.Channels, f.Size())
	}
	return nil
}

// Clone returns a deep copy
func (f *Frame) Clone() *Frame {
	out := *f
	out.Pix = make([]byte, len(f.Pix))
	copy(out.Pix, f.Pix)
	return &out
}

// Equal reports whether both frames have the same shape and pixel bytes
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.Width != o.Width || f.Height != o.Height || f.Channels != o.Channels || f.DType != o.DType {
		return false
	}
	if len(f.Pix) != len(o.Pix) {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// String describes the frame shape
func (f *Frame) String() string {
	return fmt.Sprintf("%dx%dx%d %s", f.Width, f.Height, f.Channels, f.DType)
}

// ToRGBA expands the frame into an opaque RGBA image.
// Gray frames are replicated into all three color channels.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	c := int(f.Channels)
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		src := f.Pix[i*c : i*c+c]
		dst := img.Pix[i*4 : i*4+4]
		switch c {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 0xff
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xff
		case 4:
			copy(dst, src)
		}
	}
	return img
}

// FromRGBA packs an RGBA image into a frame with the given channel count.
// Gray output uses the Rec. 601 luma of each pixel.
func FromRGBA(img *image.RGBA, channels uint8) (*Frame, error) {
	if !SupportedChannels(channels) {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalid, channels)
	}
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), channels)
	c := int(channels)
	for y := 0; y < f.Height; y++ {
		row := img.Pix[(y)*img.Stride : (y)*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			src := row[x*4 : x*4+4]
			dst := f.Pix[(y*f.Width+x)*c : (y*f.Width+x)*c+c]
			switch c {
			case 1:
				g := color.GrayModel.Convert(color.RGBA{R: src[0], G: src[1], B: src[2], A: 0xff}).(color.Gray)
				dst[0] = g.Y
			case 3:
				copy(dst, src[:3])
			case 4:
				copy(dst, src)
			}
		}
	}
	return f, nil
}
