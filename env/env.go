// Package env couples a capture session with frame conversion behind a
// reset/step/close interface.
//
// Lifecycle failures during Reset and Close are reported to a Warner and do
// not abort the call. Bad construction input and frame pipeline failures are
// returned as errors.
package env

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/logging"
)

// ErrFrame wraps every failure to produce an observation.
var ErrFrame = errors.New("failed to produce frame")

var log = logging.L("env")

// Info carries auxiliary per-observation metadata. It is currently always empty.
type Info map[string]any

// Params are the optional construction parameters. Nil fields take the
// capture defaults.
type Params struct {
	TargetID      *uint32
	ShowCursor    *bool
	ShowHighlight *bool
	FrameRate     *uint32
}

// Option customizes an Environment.
type Option func(*Environment)

// WithWarner routes non-fatal failures to w instead of the logger.
func WithWarner(w Warner) Option {
	return func(e *Environment) {
		if w != nil {
			e.warner = w
		}
	}
}

// Environment is a capture session plus frame conversion.
type Environment struct {
	session *capture.Session
	warner  Warner
}

// New resolves the requested target, opens a session and starts it.
//
// An unknown TargetID fails construction with capture.ErrTargetNotFound. A
// failed start is only warned about; the returned Environment is usable and
// the next Reset retries the start.
func New(b capture.Backend, p Params, opts ...Option) (*Environment, error) {
	e := &Environment{warner: logWarner{}}
	for _, opt := range opts {
		opt(e)
	}

	options := capture.DefaultOptions()
	if p.TargetID != nil {
		target, err := capture.Resolve(b, *p.TargetID)
		if err != nil {
			return nil, err
		}
		options.Target = &target
	}
	if p.FrameRate != nil {
		options.FrameRate = *p.FrameRate
	}
	if p.ShowCursor != nil {
		options.ShowCursor = *p.ShowCursor
	}
	if p.ShowHighlight != nil {
		options.ShowHighlight = *p.ShowHighlight
	}

	session, err := capture.Open(b, &options)
	if err != nil {
		return nil, err
	}
	e.session = session

	e.softFail(session.Start())
	return e, nil
}

// Reset restarts the capture and returns the first frame after the restart.
//
// A capturing session is stopped and then started again; failures of either
// transition are warned about and do not abort the call. Failures to fetch
// or convert the frame are returned wrapped in ErrFrame.
func (e *Environment) Reset() (frame.ImageArray, Info, error) {
	if e.session.State() == capture.Capturing {
		e.softFail(e.session.Stop())
	}
	e.softFail(e.session.Start())

	return e.observe()
}

// Step returns the next frame without any lifecycle transition.
func (e *Environment) Step() (frame.ImageArray, Info, error) {
	return e.observe()
}

func (e *Environment) observe() (frame.ImageArray, Info, error) {
	raw, err := e.session.NextFrame()
	if err != nil {
		return frame.ImageArray{}, nil, fmt.Errorf("%w: %w", ErrFrame, err)
	}
	image, err := frame.Convert(raw)
	if err != nil {
		return frame.ImageArray{}, nil, fmt.Errorf("%w: %w", ErrFrame, err)
	}
	log.Debug("observation",
		zap.Int(logging.KeyWidth, image.Width()),
		zap.Int(logging.KeyHeight, image.Height()),
		zap.Uint64("displayTime", raw.DisplayTime),
	)
	return image, Info{}, nil
}

// Close stops the capture. Closing an already stopped environment only warns.
// The backend handle stays allocated so Reset can start it again; use
// Release to free it.
func (e *Environment) Close() {
	e.softFail(e.session.Stop())
}

// Release stops the capture if needed and frees the backend handle. The
// Environment is unusable afterwards.
func (e *Environment) Release() error {
	return e.session.Close()
}

// OutputSize returns [width, height] of the frames Reset and Step return.
func (e *Environment) OutputSize() [2]uint32 {
	return e.session.OutputSize()
}

// State reports the lifecycle state of the underlying session.
func (e *Environment) State() capture.State {
	return e.session.State()
}

// TargetInfo is the (id, title) pair exposed by ListTargets.
type TargetInfo struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
}

// ListTargets returns the id and title of every target the backend offers.
func ListTargets(b capture.Backend) ([]TargetInfo, error) {
	targets, err := capture.Enumerate(b)
	if err != nil {
		return nil, err
	}
	out := make([]TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, TargetInfo{ID: t.ID, Title: t.Title})
	}
	return out, nil
}
