package stream

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/codec"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is the state of one accepted connection. It owns the
// reassembly buffer and is driven by a single goroutine.
type Session struct {
	ID        string
	Peer      string
	StartedAt time.Time

	conn    net.Conn
	decoder *codec.Decoder
	log     *zerolog.Logger

	frames atomic.Uint64
	bytes  atomic.Uint64
}

func newSession(conn net.Conn, maxMessageSize uint32) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		Peer:      conn.RemoteAddr().String(),
		StartedAt: time.Now(),
		conn:      conn,
		decoder:   codec.NewDecoder(maxMessageSize),
		log:       logger.WithSession("receiver", id),
	}
}

// Frames returns the number of frames decoded so far
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}

// Bytes returns the number of bytes read so far
func (s *Session) Bytes() uint64 {
	return s.bytes.Load()
}
