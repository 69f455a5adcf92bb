//go:build !linux

package portal

import (
	"time"

	"go2tv.app/acapture/capture"
)

type Option func(*Backend)

func WithCursor(bool) Option { return func(*Backend) {} }

func WithPermissionTimeout(time.Duration) Option { return func(*Backend) {} }

func WithRestoreTokenFile(string) Option { return func(*Backend) {} }

// Backend is unavailable outside Linux.
type Backend struct{}

func New(...Option) *Backend { return &Backend{} }

func (*Backend) Supported() bool         { return false }
func (*Backend) HasPermission() bool     { return false }
func (*Backend) RequestPermission() bool { return false }
func (*Backend) Close() error            { return nil }

func (*Backend) Targets() ([]capture.Target, error) {
	return nil, capture.ErrNotSupported
}

func (*Backend) Open(capture.Options) (capture.Handle, error) {
	return nil, capture.ErrNotSupported
}
