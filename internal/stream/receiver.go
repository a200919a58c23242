package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/codec"
	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/output"
	"github.com/bryanchriswhite/framerelay/internal/transform"
)

// DefaultReadBufferSize is the largest chunk taken from the socket per read
const DefaultReadBufferSize = 4096

// ReceiverConfig configures a Receiver
type ReceiverConfig struct {
	Addr           string
	MaxMessageSize uint32
	ReadBufferSize int
	Params         transform.Params
}

// Stats is a point-in-time view of the receiver
type Stats struct {
	State         State               `json:"state"`
	SessionID     string              `json:"session_id,omitempty"`
	Peer          string              `json:"peer,omitempty"`
	StartedAt     time.Time           `json:"started_at,omitempty"`
	Frames        uint64              `json:"frames"`
	Bytes         uint64              `json:"bytes"`
	LastRaw       string              `json:"last_raw,omitempty"`
	LastProcessed string              `json:"last_processed,omitempty"`
	Geometry      *transform.Geometry `json:"geometry,omitempty"`
	Params        transform.Params    `json:"params"`
	Interpolation string              `json:"interpolation"`
}

// Receiver accepts a single producer connection and turns its byte
// stream back into frames
type Receiver struct {
	cfg    ReceiverConfig
	engine *transform.Engine
	out    output.Output

	mu            sync.RWMutex
	listener      net.Listener
	state         State
	session       *Session
	lastRaw       string
	lastProcessed string
	geometry      *transform.Geometry
}

// NewReceiver creates a receiver that transforms every frame with engine
// and hands the pair to out
func NewReceiver(cfg ReceiverConfig, engine *transform.Engine, out output.Output) *Receiver {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = codec.DefaultMaxMessageSize
	}
	return &Receiver{cfg: cfg, engine: engine, out: out}
}

// Listen binds the configured address
func (r *Receiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		return fmt.Errorf("receiver already listening on %s", r.listener.Addr())
	}
	if r.state == StateClosed {
		return fmt.Errorf("receiver is closed")
	}

	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", ErrTransport, r.cfg.Addr, err)
	}
	r.listener = ln
	r.state = StateListening

	logger.WithComponent("receiver").Info().
		Str("addr", ln.Addr().String()).
		Msg("Listening for producer")
	return nil
}

// Addr returns the bound address, or nil before Listen
func (r *Receiver) Addr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Serve accepts one connection and runs its session to the end. It binds
// first if Listen has not been called. A clean peer close, a truncated
// stream and cancellation all return nil; a protocol violation returns the
// codec error and transport failures wrap ErrTransport.
func (r *Receiver) Serve(ctx context.Context) error {
	r.mu.RLock()
	ln := r.listener
	r.mu.RUnlock()
	if ln == nil {
		if err := r.Listen(); err != nil {
			return err
		}
		r.mu.RLock()
		ln = r.listener
		r.mu.RUnlock()
	}

	log := logger.WithComponent("receiver")
	defer r.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	conn, err := ln.Accept()
	stop()
	// One session per receiver; nobody else gets in
	ln.Close()

	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Shutdown requested before a producer connected")
			return nil
		}
		return fmt.Errorf("%w: accept: %w", ErrTransport, err)
	}

	sess := newSession(conn, r.cfg.MaxMessageSize)
	r.mu.Lock()
	r.session = sess
	r.state = StateConnected
	r.mu.Unlock()

	sess.log.Info().Str("peer", sess.Peer).Msg("Producer connected")
	err = r.runSession(ctx, sess)

	ev := sess.log.Info()
	if err != nil {
		ev = sess.log.Error().Err(err)
	}
	ev.Uint64("frames", sess.Frames()).
		Uint64("bytes", sess.Bytes()).
		Dur("duration", time.Since(sess.StartedAt)).
		Msg("Session closed")
	return err
}

func (r *Receiver) runSession(ctx context.Context, sess *Session) error {
	defer sess.conn.Close()
	stop := context.AfterFunc(ctx, func() { sess.conn.Close() })
	defer stop()

	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, err := sess.conn.Read(buf)
		if n > 0 {
			if sess.bytes.Add(uint64(n)) == uint64(n) {
				r.setState(StateStreaming)
			}

			f, derr := sess.decoder.Decode(buf[:n])
			for f != nil {
				r.handleFrame(sess, f)
				f, derr = sess.decoder.Decode(nil)
			}
			if derr != nil {
				sess.log.Error().Err(derr).Msg("Protocol violation, aborting session")
				return derr
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				sess.log.Info().Msg("Shutdown requested")
				return nil
			}
			if errors.Is(err, io.EOF) {
				if ferr := sess.decoder.Finish(); ferr != nil {
					sess.log.Warn().Err(ferr).Msg("Producer closed mid-message")
				} else {
					sess.log.Info().Msg("Producer closed the connection")
				}
				return nil
			}
			return fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
	}
}

// handleFrame transforms one decoded frame and forwards both to the output.
// Failures here cost the frame, never the session.
func (r *Receiver) handleFrame(sess *Session, raw *frame.Frame) {
	processed, g, err := r.engine.ApplyWithGeometry(raw, r.cfg.Params)
	if err != nil {
		sess.log.Error().Err(err).Stringer("frame", raw).Msg("Transform failed, dropping frame")
		return
	}

	n := sess.frames.Add(1)
	if n == 1 {
		sess.log.Info().
			Stringer("raw", raw).
			Stringer("processed", processed).
			Float64("scale", g.Scale).
			Msg("First frame received")
		if g.Shrunk() {
			sess.log.Warn().
				Int("requested_width", g.RequestedWidth).
				Int("requested_height", g.RequestedHeight).
				Int("width", g.Width).
				Int("height", g.Height).
				Msg("Crop shrunk to stay inside the rotated frame")
		}
	}

	r.mu.Lock()
	r.lastRaw = raw.String()
	r.lastProcessed = processed.String()
	r.geometry = &g
	r.mu.Unlock()

	if r.out == nil {
		return
	}
	if ga, ok := r.out.(output.GeometryAware); ok {
		ga.SetGeometry(g)
	}
	if err := r.out.WriteFrames(raw, processed); err != nil {
		sess.log.Warn().Err(err).Uint64("frame", n).Msg("Output failed")
	}
}

// Close stops listening and ends any running session. Closed is terminal.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		r.listener.Close()
	}
	if r.session != nil {
		r.session.conn.Close()
	}
	r.state = StateClosed
	return nil
}

// State returns the current lifecycle stage
func (r *Receiver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Receiver) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateClosed {
		r.state = s
	}
}

// Stats returns a snapshot safe to call from any goroutine
func (r *Receiver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		State:         r.state,
		LastRaw:       r.lastRaw,
		LastProcessed: r.lastProcessed,
		Params:        r.cfg.Params,
		Interpolation: r.engine.Interpolation(),
	}
	if r.geometry != nil {
		g := *r.geometry
		s.Geometry = &g
	}
	if r.session != nil {
		s.SessionID = r.session.ID
		s.Peer = r.session.Peer
		s.StartedAt = r.session.StartedAt
		s.Frames = r.session.Frames()
		s.Bytes = r.session.Bytes()
	}
	return s
}

// Params returns the transform applied to every frame
func (r *Receiver) Params() transform.Params {
	return r.cfg.Params
}
