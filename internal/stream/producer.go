package stream

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/capture"
	"github.com/bryanchriswhite/framerelay/internal/codec"
	"github.com/bryanchriswhite/framerelay/internal/logger"
)

// DefaultInterval paces the producer at roughly 30 frames per second
const DefaultInterval = 33 * time.Millisecond

// ProducerConfig configures a Producer
type ProducerConfig struct {
	Addr           string
	Interval       time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize uint32
}

// Producer captures frames and writes them to one receiver
type Producer struct {
	cfg   ProducerConfig
	src   capture.Capturer
	codec codec.Codec

	sent    atomic.Uint64
	skipped atomic.Uint64
	bytes   atomic.Uint64
}

// NewProducer creates a producer reading from src
func NewProducer(cfg ProducerConfig, src capture.Capturer) *Producer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Producer{
		cfg:   cfg,
		src:   src,
		codec: codec.Codec{MaxMessageSize: cfg.MaxMessageSize},
	}
}

// Run starts the capturer, connects, and sends one frame per interval
// until ctx is cancelled or capture or the connection fails. Cancellation
// returns nil. The capturer and connection are released on every path.
func (p *Producer) Run(ctx context.Context) error {
	log := logger.WithComponent("producer")

	if err := p.src.Start(); err != nil {
		return fmt.Errorf("failed to start %s capturer: %w", p.src.Name(), err)
	}
	defer p.src.Stop()

	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: dial %s: %w", ErrTransport, p.cfg.Addr, err)
	}
	defer conn.Close()

	// A blocked Write only returns once the connection is closed
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Info().
		Str("addr", p.cfg.Addr).
		Str("source", p.src.Name()).
		Dur("interval", p.cfg.Interval).
		Msg("Connected to receiver")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	defer func() {
		log.Info().
			Uint64("sent", p.sent.Load()).
			Uint64("skipped", p.skipped.Load()).
			Uint64("bytes", p.bytes.Load()).
			Msg("Producer stopped")
	}()

	for {
		f, err := p.src.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture failed: %w", err)
		}

		msg, err := p.codec.Encode(f)
		if err != nil {
			p.skipped.Add(1)
			log.Warn().Err(err).Stringer("frame", f).Msg("Skipping frame")
		} else {
			if p.cfg.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			}
			// net.Conn writes the whole buffer or fails
			if _, err := conn.Write(msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: write: %w", ErrTransport, err)
			}
			p.sent.Add(1)
			p.bytes.Add(uint64(len(msg)))
			if n := p.sent.Load(); n == 1 {
				log.Info().Stringer("frame", f).Int("message_bytes", len(msg)).Msg("First frame sent")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sent returns the number of frames written
func (p *Producer) Sent() uint64 {
	return p.sent.Load()
}

// Skipped returns the number of frames dropped because they could not be encoded
func (p *Producer) Skipped() uint64 {
	return p.skipped.Load()
}
