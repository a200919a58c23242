// Package codec implements the length-prefixed wire format that carries
// frames over a byte-stream transport.
//
//	message := length(uint32, big-endian) || payload(length bytes)
//	payload := width(uint32 BE) || height(uint32 BE) || channels(u8) || dtype(u8) || pixels
//
// The transport gives no message boundaries, so decoding works on an
// accumulating buffer and yields identical frames however the bytes are
// chunked.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bryanchriswhite/framerelay/internal/frame"
)

const (
	// HeaderSize is the byte width of the length field
	HeaderSize = 4

	// PayloadHeaderSize is the shape metadata preceding the pixel bytes
	PayloadHeaderSize = 4 + 4 + 1 + 1

	// DefaultMaxMessageSize bounds a payload when no limit is configured.
	// 64 MiB holds a 3840x2160 four channel frame.
	DefaultMaxMessageSize uint32 = 64 << 20
)

var (
	// ErrEncoding is returned when a frame cannot be put on the wire
	ErrEncoding = errors.New("encoding error")

	// ErrMalformedLength is returned for a zero or oversized length field
	ErrMalformedLength = errors.New("malformed message length")

	// ErrMalformedPayload is returned when a complete payload does not describe a valid frame
	ErrMalformedPayload = errors.New("malformed message payload")

	// ErrTruncatedStream is returned when the stream ends inside a message
	ErrTruncatedStream = errors.New("truncated stream")
)

// Codec encodes frames, optionally refusing payloads above MaxMessageSize
// so that a sender never emits what its receiver would reject.
// A zero MaxMessageSize only enforces the range of the length field.
type Codec struct {
	MaxMessageSize uint32
}

// Encode serializes f with the length field's range as the only limit
func Encode(f *frame.Frame) ([]byte, error) {
	return Codec{}.Encode(f)
}

// Encode serializes f into one complete message
func (c Codec) Encode(f *frame.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if uint64(f.Width) > math.MaxUint32 || uint64(f.Height) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: dimensions %dx%d exceed 32 bits", ErrEncoding, f.Width, f.Height)
	}

	limit := uint64(math.MaxUint32)
	if c.MaxMessageSize > 0 {
		limit = uint64(c.MaxMessageSize)
	}
	payloadLen := uint64(PayloadHeaderSize) + uint64(len(f.Pix))
	if payloadLen > limit {
		return nil, fmt.Errorf("%w: payload is %d bytes, limit is %d", ErrEncoding, payloadLen, limit)
	}

	msg := make([]byte, HeaderSize+int(payloadLen))
	binary.BigEndian.PutUint32(msg[0:4], uint32(payloadLen))
	binary.BigEndian.PutUint32(msg[4:8], uint32(f.Width))
	binary.BigEndian.PutUint32(msg[8:12], uint32(f.Height))
	msg[12] = f.Channels
	msg[13] = byte(f.DType)
	copy(msg[HeaderSize+PayloadHeaderSize:], f.Pix)
	return msg, nil
}

// Decode appends chunk to pending and tries to take one message off the
// front of the result.
//
// A nil frame with a nil error means more data is needed; the returned
// buffer must be passed back as pending on the next call. When a frame is
// returned, exactly one message has been consumed and the returned buffer
// holds whatever followed it, possibly the start of the next message.
//
// The length field is checked as soon as it is complete, so a corrupt
// length fails before any payload is buffered. maxSize of zero selects
// DefaultMaxMessageSize. pending may be modified in place.
func Decode(pending, chunk []byte, maxSize uint32) (*frame.Frame, []byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}

	buf := append(pending, chunk...)
	if len(buf) < HeaderSize {
		return nil, buf, nil
	}

	length := binary.BigEndian.Uint32(buf[:HeaderSize])
	if length == 0 || length > maxSize {
		return nil, buf, fmt.Errorf("%w: %d bytes (max %d)", ErrMalformedLength, length, maxSize)
	}

	total := HeaderSize + int(length)
	if len(buf) < total {
		return nil, buf, nil
	}

	f, err := decodePayload(buf[HeaderSize:total])
	if err != nil {
		return nil, buf[total:], err
	}
	return f, buf[total:], nil
}

// decodePayload copies a payload into a new, owned frame
func decodePayload(p []byte) (*frame.Frame, error) {
	if len(p) < PayloadHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the shape header", ErrMalformedPayload, len(p))
	}

	width := binary.BigEndian.Uint32(p[0:4])
	height := binary.BigEndian.Uint32(p[4:8])
	channels := p[8]
	dtype := frame.DType(p[9])

	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrMalformedPayload, width, height)
	}
	if !frame.SupportedChannels(channels) {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrMalformedPayload, channels)
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: unknown dtype tag %d", ErrMalformedPayload, uint8(dtype))
	}

	pixels := p[PayloadHeaderSize:]
	want := uint64(width) * uint64(height) * uint64(channels) * uint64(dtype.Size())
	if want != uint64(len(pixels)) {
		return nil, fmt.Errorf("%w: shape %dx%dx%d needs %d pixel bytes, got %d",
			ErrMalformedPayload, width, height, channels, want, len(pixels))
	}

	f := &frame.Frame{
		Width:    int(width),
		Height:   int(height),
		Channels: channels,
		DType:    dtype,
		Pix:      make([]byte, len(pixels)),
	}
	copy(f.Pix, pixels)
	return f, nil
}
