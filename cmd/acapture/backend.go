package main

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"go2tv.app/acapture/backend/display"
	"go2tv.app/acapture/backend/portal"
	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/internal/config"
	"go2tv.app/acapture/internal/logging"
)

// selectBackend builds the backend named in c. "auto" prefers the portal on
// Wayland sessions, where X11-style screenshots only see XWayland windows.
func selectBackend(c config.CaptureConfig) (capture.Backend, func(), error) {
	log := logging.L("cmd")
	newPortal := func() (capture.Backend, func(), error) {
		p := portal.New(
			portal.WithCursor(c.ShowCursor),
			portal.WithPermissionTimeout(c.PermissionTimeout),
			portal.WithRestoreTokenFile(c.RestoreTokenFile),
		)
		return p, func() { _ = p.Close() }, nil
	}

	switch c.Backend {
	case "display":
		return display.New(), func() {}, nil
	case "portal":
		return newPortal()
	case "auto", "":
		if runtime.GOOS == "linux" && os.Getenv("WAYLAND_DISPLAY") != "" {
			b, closeFn, _ := newPortal()
			if b.Supported() {
				log.Debug("selected backend", zap.String(logging.KeyBackend, "portal"))
				return b, closeFn, nil
			}
			closeFn()
			log.Debug("portal unavailable, falling back to display capture")
		}
		log.Debug("selected backend", zap.String(logging.KeyBackend, "display"))
		return display.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", capture.ErrInvalidOptions, c.Backend)
	}
}

// openBackend selects the configured backend and makes sure capture is
// permitted before any command uses it.
func openBackend() (capture.Backend, func(), error) {
	b, closeFn, err := selectBackend(cfg.Capture)
	if err != nil {
		return nil, nil, err
	}
	if err := capture.Preflight(b); err != nil {
		closeFn()
		return nil, nil, err
	}
	return b, closeFn, nil
}
