// Package stream moves frames over a single TCP connection: a Producer
// captures, encodes and sends them at a fixed pace, and a Receiver
// reassembles, transforms and displays them, one session at a time.
package stream

import (
	"errors"
	"fmt"
)

// ErrTransport wraps bind, accept, dial, read and write failures
var ErrTransport = errors.New("transport error")

// State is the lifecycle stage of a receiver session
type State int32

const (
	StateIdle State = iota
	StateListening
	StateConnected
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON and YAML
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
