package capture

import "go2tv.app/acapture/frame"

// Backend is a platform capture implementation.
type Backend interface {
	// Supported reports whether capture can work on this machine at all.
	Supported() bool
	HasPermission() bool
	// RequestPermission asks the OS for capture permission and reports
	// whether it is granted afterwards.
	RequestPermission() bool
	Targets() ([]Target, error)
	// Open allocates the capture pipeline for options without starting it.
	Open(options Options) (Handle, error)
}

// Handle is one opened capture pipeline. Implementations need not be safe
// for concurrent use; Session serializes access.
type Handle interface {
	Start() error
	Stop() error
	// NextFrame blocks until a frame is delivered or the backend fails.
	NextFrame() (frame.RawFrame, error)
	// OutputSize returns [width, height] of the frames the handle produces.
	OutputSize() [2]uint32
	Close() error
}

// Preflight checks platform support and capture permission, requesting it
// when missing.
func Preflight(b Backend) error {
	if !b.Supported() {
		return ErrNotSupported
	}
	if b.HasPermission() {
		return nil
	}
	log.Info("capture permission not granted, requesting")
	if !b.RequestPermission() {
		return ErrPermissionDenied
	}
	return nil
}
