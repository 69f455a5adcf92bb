// Package display is a polling capture backend for whole displays built on
// github.com/kbinani/screenshot. It works wherever that library does
// (Windows, macOS, X11) and offers displays only, not windows.
package display

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/framequeue"
	"go2tv.app/acapture/internal/logging"
)

const firstFrameTimeout = 8 * time.Second

var (
	ErrStopped        = errors.New("display capture is not running")
	ErrAlreadyStarted = errors.New("display capture already running")
)

var log = logging.L("backend/display")

// grabber is the subset of kbinani/screenshot the backend uses.
type grabber interface {
	NumDisplays() int
	Bounds(index int) image.Rectangle
	Capture(bounds image.Rectangle) (*image.RGBA, error)
}

type screenshotGrabber struct{}

func (screenshotGrabber) NumDisplays() int                  { return screenshot.NumActiveDisplays() }
func (screenshotGrabber) Bounds(index int) image.Rectangle { return screenshot.GetDisplayBounds(index) }
func (screenshotGrabber) Capture(bounds image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(bounds)
}

// Backend enumerates and captures active displays.
type Backend struct {
	grabber grabber
}

// New returns a display backend using the OS screenshot facilities.
func New() *Backend {
	return &Backend{grabber: screenshotGrabber{}}
}

func (b *Backend) Supported() bool {
	return b.grabber.NumDisplays() > 0
}

// HasPermission probes a 1x1 capture of the primary display. On macOS the
// probe fails until Screen Recording access is granted.
func (b *Backend) HasPermission() bool {
	if !b.Supported() {
		return false
	}
	origin := b.grabber.Bounds(0).Min
	_, err := b.grabber.Capture(image.Rectangle{Min: origin, Max: origin.Add(image.Pt(1, 1))})
	if err != nil {
		log.Debug("permission probe failed", zap.Error(err))
		return false
	}
	return true
}

// RequestPermission repeats the probe; the first capture attempt is what
// makes the OS prompt for access.
func (b *Backend) RequestPermission() bool {
	return b.HasPermission()
}

func (b *Backend) Targets() ([]capture.Target, error) {
	n := b.grabber.NumDisplays()
	targets := make([]capture.Target, 0, n)
	for i := 0; i < n; i++ {
		bounds := b.grabber.Bounds(i)
		targets = append(targets, capture.Target{
			Kind:  capture.KindDisplay,
			ID:    uint32(i),
			Title: fmt.Sprintf("Display %d (%dx%d)", i, bounds.Dx(), bounds.Dy()),
		})
	}
	return targets, nil
}

// ignoredOptions lists the requested options screenshots cannot honor: the
// cursor is never drawn, nothing marks the captured area and every window
// on the display is captured.
func ignoredOptions(o capture.Options) []zap.Field {
	var fields []zap.Field
	if o.ShowCursor {
		fields = append(fields, zap.Bool("showCursor", true))
	}
	if o.ShowHighlight {
		fields = append(fields, zap.Bool("showHighlight", true))
	}
	if n := len(o.ExcludedTargets); n > 0 {
		fields = append(fields, zap.Int("excluded", n))
	}
	return fields
}

func (b *Backend) Open(options capture.Options) (capture.Handle, error) {
	index := 0
	if t := options.Target; t != nil {
		if t.Kind != capture.KindDisplay {
			return nil, fmt.Errorf("%w: display backend cannot capture %s", capture.ErrInvalidOptions, t)
		}
		index = int(t.ID)
	}
	if index >= b.grabber.NumDisplays() {
		return nil, fmt.Errorf("%w with id: %d", capture.ErrTargetNotFound, index)
	}
	if options.FrameRate == 0 {
		return nil, fmt.Errorf("%w: FrameRate must be > 0", capture.ErrInvalidOptions)
	}

	if ignored := ignoredOptions(options); len(ignored) > 0 {
		log.Debug("display backend ignores options", ignored...)
	}

	bounds := b.grabber.Bounds(index)
	return &handle{
		grabber:  b.grabber,
		index:    index,
		bounds:   bounds,
		interval: time.Second / time.Duration(options.FrameRate),
		queue:    framequeue.New(fmt.Sprintf("display-%d", index), framequeue.DefaultSize),
	}, nil
}

type handle struct {
	grabber  grabber
	index    int
	bounds   image.Rectangle
	interval time.Duration
	queue    *framequeue.Queue

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	errMu   sync.Mutex
	lastErr error
}

func (h *handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrAlreadyStarted
	}
	h.queue.Discard()
	h.stopCh = make(chan struct{})
	h.running = true
	h.wg.Add(1)
	go h.loop(h.stopCh)
	log.Debug("display capture started",
		zap.Int("display", h.index),
		zap.Int(logging.KeyWidth, h.bounds.Dx()),
		zap.Int(logging.KeyHeight, h.bounds.Dy()),
		zap.Duration("interval", h.interval),
	)
	return nil
}

func (h *handle) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	close(h.stopCh)
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *handle) NextFrame() (frame.RawFrame, error) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		return frame.RawFrame{}, ErrStopped
	}

	f, err := h.queue.Pop(firstFrameTimeout)
	if errors.Is(err, framequeue.ErrTimeout) {
		h.errMu.Lock()
		last := h.lastErr
		h.errMu.Unlock()
		if last != nil {
			return frame.RawFrame{}, fmt.Errorf("display %d: %w (last capture error: %v)", h.index, err, last)
		}
	}
	return f, err
}

func (h *handle) OutputSize() [2]uint32 {
	return [2]uint32{uint32(h.bounds.Dx()), uint32(h.bounds.Dy())}
}

func (h *handle) Close() error {
	err := h.Stop()
	h.queue.Close()
	return err
}

func (h *handle) loop(stop <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.grab()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.grab()
		}
	}
}

func (h *handle) grab() {
	img, err := h.grabber.Capture(h.bounds)
	h.errMu.Lock()
	h.lastErr = err
	h.errMu.Unlock()
	if err != nil {
		log.Debug("display capture failed", zap.Int("display", h.index), zap.Error(err))
		return
	}
	h.queue.Push(bgraFrame(img, time.Now()))
}

// bgraFrame swaps the red and blue samples of img in place and wraps its
// buffer as a BGRA frame.
func bgraFrame(img *image.RGBA, at time.Time) frame.RawFrame {
	b := img.Bounds()
	w, ht := b.Dx(), b.Dy()
	for y := 0; y < ht; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+2] = row[x+2], row[x]
		}
	}
	return frame.RawFrame{
		Format:      frame.PixelFormatBGRA,
		Width:       uint32(w),
		Height:      uint32(ht),
		Stride:      img.Stride,
		DisplayTime: uint64(at.UnixNano()),
		Data:        img.Pix,
	}
}
