package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/bryanchriswhite/framerelay/internal/frame"
)

// Decoder owns the reassembly buffer of one connection.
// It is not safe for concurrent use.
type Decoder struct {
	pending []byte
	maxSize uint32
	err     error
}

// NewDecoder creates a decoder; maxSize of zero selects DefaultMaxMessageSize
func NewDecoder(maxSize uint32) *Decoder {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Decoder{maxSize: maxSize}
}

// Decode feeds chunk into the buffer and returns at most one frame.
// Call again with a nil chunk to drain messages that arrived pipelined in
// the same read. A nil frame with a nil error means more data is needed.
// After a framing error the decoder keeps returning that error.
func (d *Decoder) Decode(chunk []byte) (*frame.Frame, error) {
	if d.err != nil {
		return nil, d.err
	}

	f, rest, err := Decode(d.pending, chunk, d.maxSize)
	if err != nil {
		d.err = err
		d.pending = nil
		return nil, err
	}
	if f == nil {
		d.pending = rest
		return nil, nil
	}

	// Leftovers are usually small; copying lets the consumed message's
	// backing array be collected.
	if len(rest) == 0 {
		d.pending = nil
	} else {
		d.pending = append([]byte(nil), rest...)
	}
	return f, nil
}

// Buffered returns the number of bytes waiting for the rest of their message
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// Finish is called when the transport reports end of stream.
// A partial header or payload still buffered is discarded and reported as
// ErrTruncatedStream.
func (d *Decoder) Finish() error {
	n := len(d.pending)
	d.pending = nil
	if n == 0 {
		return nil
	}
	if n < HeaderSize {
		return fmt.Errorf("%w: %d of %d length bytes received", ErrTruncatedStream, n, HeaderSize)
	}
	return fmt.Errorf("%w: %d bytes of an unfinished message discarded", ErrTruncatedStream, n)
}

// Reader pulls frames out of an io.Reader through a Decoder
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
}

// NewReader creates a Reader that reads at most bufSize bytes per call
func NewReader(r io.Reader, maxSize uint32, bufSize int) *Reader {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Reader{
		r:   r,
		dec: NewDecoder(maxSize),
		buf: make([]byte, bufSize),
	}
}

// ReadFrame blocks until a complete frame is available.
// It returns io.EOF when the stream ends cleanly between messages and
// ErrTruncatedStream when it ends inside one.
func (r *Reader) ReadFrame() (*frame.Frame, error) {
	f, err := r.dec.Decode(nil)
	if err != nil || f != nil {
		return f, err
	}

	for {
		n, readErr := r.r.Read(r.buf)
		if n > 0 {
			f, err := r.dec.Decode(r.buf[:n])
			if err != nil {
				return nil, err
			}
			if f != nil {
				return f, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if err := r.dec.Finish(); err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			return nil, readErr
		}
	}
}

// Buffered returns the bytes held for an incomplete message
func (r *Reader) Buffered() int {
	return r.dec.Buffered()
}
