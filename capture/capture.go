package capture

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultFrameRate is the frame rate used when none is requested.
const DefaultFrameRate = 32

var (
	ErrTargetNotFound   = errors.New("failed to find capture target")
	ErrAlreadyRunning   = errors.New("failed to start capture, it is already running")
	ErrNotRunning       = errors.New("failed to stop capture, it was not running")
	ErrCapture          = errors.New("failed to get next frame")
	ErrClosed           = errors.New("capture session is closed")
	ErrInvalidOptions   = errors.New("invalid screen capture options")
	ErrNotSupported     = errors.New("screen capture is not supported on this platform")
	ErrPermissionDenied = errors.New("screen capture permission denied")
)

// Options configures a capture session. A session keeps its own copy, so
// callers may reuse an Options value after Open returns.
type Options struct {
	// Target selects the window or display to capture. Nil means the
	// backend's primary display.
	Target *Target

	FrameRate     uint32
	ShowCursor    bool
	ShowHighlight bool

	// ExcludedTargets are hidden from the capture where the backend can do so.
	ExcludedTargets []Target
}

// DefaultOptions returns options for the primary display at DefaultFrameRate,
// without cursor and with the capture highlight shown.
func DefaultOptions() Options {
	return Options{
		FrameRate:     DefaultFrameRate,
		ShowCursor:    false,
		ShowHighlight: true,
	}
}

func (o Options) clone() Options {
	if o.Target != nil {
		t := *o.Target
		o.Target = &t
	}
	o.ExcludedTargets = slices.Clone(o.ExcludedTargets)
	return o
}

func validateOpenOptions(options *Options) (Options, error) {
	if options == nil {
		return DefaultOptions(), nil
	}
	if options.FrameRate == 0 {
		return Options{}, fmt.Errorf("%w: FrameRate must be > 0", ErrInvalidOptions)
	}
	return options.clone(), nil
}
