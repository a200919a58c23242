package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
)

// subprocessCapturer reads fixed-size raw frames from the stdout of a
// capture subprocess (ffmpeg, gst-launch). The subprocess is expected to
// emit packed RGB24 at exactly width x height.
type subprocessCapturer struct {
	name     string
	binary   string
	command  func() (*exec.Cmd, error)
	width    int
	height   int
	channels uint8

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  *bufio.Reader
	running bool
	frames  uint64
}

// Start launches the subprocess and begins draining its stderr
func (s *subprocessCapturer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%s capturer already running", s.name)
	}

	log := logger.WithComponent(s.component())

	cmd, err := s.command()
	if err != nil {
		return fmt.Errorf("failed to build %s command: %w", s.name, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	log.Debug().Strs("args", cmd.Args).Msg("Starting capture subprocess")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.binary, err)
	}

	frameSize := s.width * s.height * int(s.channels)
	s.cmd = cmd
	s.stdout = bufio.NewReaderSize(stdout, frameSize*2)
	s.running = true
	s.frames = 0

	go s.logStderr(stderr)

	log.Info().
		Int("pid", cmd.Process.Pid).
		Int("width", s.width).
		Int("height", s.height).
		Msg("Capture subprocess started")
	return nil
}

// Capture reads exactly one frame from the subprocess.
// Cancelling ctx abandons the read; Stop then unblocks it.
func (s *subprocessCapturer) Capture(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	reader := s.stdout
	s.mu.Unlock()

	type result struct {
		f   *frame.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f := frame.New(s.width, s.height, s.channels)
		if _, err := io.ReadFull(reader, f.Pix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = fmt.Errorf("%s subprocess ended: %w", s.name, err)
			}
			done <- result{err: err}
			return
		}
		done <- result{f: f}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			s.mu.Lock()
			s.frames++
			s.mu.Unlock()
		}
		return r.f, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// logStderr logs any output from the subprocess
func (s *subprocessCapturer) logStderr(stderr io.Reader) {
	log := logger.WithComponent(s.component())
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "warn") {
			log.Warn().Str("output", line).Msg("Capture subprocess message")
		} else {
			log.Debug().Str("output", line).Msg("Capture subprocess output")
		}
	}
}

// Stop kills the subprocess
func (s *subprocessCapturer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	log := logger.WithComponent(s.component())
	if s.cmd != nil && s.cmd.Process != nil {
		log.Debug().Int("pid", s.cmd.Process.Pid).Msg("Killing capture subprocess")
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}

	s.running = false
	log.Info().Uint64("frames", s.frames).Msg("Capture subprocess stopped")
	return nil
}

// Name returns the capturer name
func (s *subprocessCapturer) Name() string {
	return s.name
}

// IsAvailable checks that the binary is on PATH and the size is usable
func (s *subprocessCapturer) IsAvailable() bool {
	if s.width <= 0 || s.height <= 0 {
		return false
	}
	_, err := exec.LookPath(s.binary)
	return err == nil
}

func (s *subprocessCapturer) component() string {
	return strings.ToLower(s.name) + "-capturer"
}
