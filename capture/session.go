package capture

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/logging"
)

var log = logging.L("capture")

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one backend handle and its idle/capturing lifecycle.
//
// Start, Stop, OutputSize and Close take the lock exclusively. NextFrame
// takes it shared, so frame pulls run concurrently with each other but never
// alongside a transition. The lock is not reentrant.
//
// NextFrame does not check the state: pulling frames from an idle session is
// delegated to the backend, which may block, fail or return stale frames.
// Callers that care should check State first.
type Session struct {
	mu      sync.RWMutex
	handle  Handle
	state   State
	closed  bool
	options Options
}

// Open allocates a backend handle for options and returns an idle session.
// Nil options select DefaultOptions.
func Open(b Backend, options *Options) (*Session, error) {
	opts, err := validateOpenOptions(options)
	if err != nil {
		return nil, err
	}

	handle, err := b.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open capture backend: %w", err)
	}

	log.Debug("capture session opened",
		zap.String(logging.KeyTarget, targetString(opts.Target)),
		zap.Uint32(logging.KeyFrameRate, opts.FrameRate),
		zap.Bool("showCursor", opts.ShowCursor),
		zap.Bool("showHighlight", opts.ShowHighlight),
	)
	return &Session{handle: handle, state: Idle, options: opts}, nil
}

// Start begins frame production. It fails with ErrAlreadyRunning, without
// side effects, when the session is already capturing.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == Capturing {
		return ErrAlreadyRunning
	}
	if err := s.handle.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	s.state = Capturing
	log.Debug("capture started")
	return nil
}

// Stop halts frame production. It fails with ErrNotRunning, without side
// effects, when the session is idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == Idle {
		return ErrNotRunning
	}
	if err := s.handle.Stop(); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	s.state = Idle
	log.Debug("capture stopped")
	return nil
}

// NextFrame blocks until the backend delivers a frame. Backend failures are
// wrapped with ErrCapture. There is no deadline.
func (s *Session) NextFrame() (frame.RawFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return frame.RawFrame{}, ErrClosed
	}
	f, err := s.handle.NextFrame()
	if err != nil {
		return frame.RawFrame{}, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	return f, nil
}

// OutputSize returns [width, height] of the frames the backend will produce.
// It takes the lock exclusively because Handle.OutputSize may update
// backend state.
func (s *Session) OutputSize() [2]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return [2]uint32{}
	}
	return s.handle.OutputSize()
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Options returns a copy of the options the session was opened with.
func (s *Session) Options() Options {
	return s.options.clone()
}

// Close stops a capturing session and releases the backend handle. Later
// calls on the session return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var stopErr error
	if s.state == Capturing {
		stopErr = s.handle.Stop()
		s.state = Idle
	}
	return errors.Join(stopErr, s.handle.Close())
}

func targetString(t *Target) string {
	if t == nil {
		return "primary"
	}
	return t.String()
}
