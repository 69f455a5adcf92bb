// Package capturetest provides an in-memory capture backend for tests.
package capturetest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/frame"
)

// ErrNotStarted is returned by NextFrame on a handle that is not running.
var ErrNotStarted = errors.New("capturetest: handle not started")

const (
	DefaultWidth  = 64
	DefaultHeight = 48
)

// DefaultTargets is what New offers when called without targets.
var DefaultTargets = []capture.Target{
	{Kind: capture.KindDisplay, ID: 1, Title: "Built-in Display"},
	{Kind: capture.KindWindow, ID: 7, Title: "Terminal"},
	{Kind: capture.KindWindow, ID: 42, Title: "Browser"},
}

// Pixel is the sample the fake backend writes at row r, column c, channel k
// of every frame. Channel 3 (alpha) is always 0xFF.
func Pixel(r, c, k int) byte {
	if k == 3 {
		return 0xFF
	}
	return byte((r*31 + c*7 + k*3) % 251)
}

// Backend is a deterministic capture.Backend. Exported fields may be set
// before Open; they are read under the backend lock.
type Backend struct {
	mu sync.Mutex

	TargetList []capture.Target
	Width      uint32
	Height     uint32
	Format     frame.PixelFormat

	Unsupported    bool
	DenyPermission bool
	granted        bool

	TargetsErr error
	OpenErr    error
	StartErr   error
	FrameErr   error
	// FrameDelay is slept inside NextFrame before a frame is returned.
	FrameDelay time.Duration

	handles []*Handle
}

// New returns a backend offering targets, or DefaultTargets when none are given.
func New(targets ...capture.Target) *Backend {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	return &Backend{
		TargetList: append([]capture.Target(nil), targets...),
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		Format:     frame.PixelFormatBGRA,
		granted:    true,
	}
}

func (b *Backend) Supported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.Unsupported
}

func (b *Backend) HasPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted && !b.DenyPermission
}

func (b *Backend) RequestPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DenyPermission {
		return false
	}
	b.granted = true
	return true
}

// Revoke clears a previously granted permission.
func (b *Backend) Revoke() {
	b.mu.Lock()
	b.granted = false
	b.mu.Unlock()
}

func (b *Backend) Targets() ([]capture.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.TargetsErr != nil {
		return nil, b.TargetsErr
	}
	return append([]capture.Target(nil), b.TargetList...), nil
}

func (b *Backend) Open(options capture.Options) (capture.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	h := &Handle{backend: b, options: options}
	b.handles = append(b.handles, h)
	return h, nil
}

// Handles returns every handle opened so far, oldest first.
func (b *Backend) Handles() []*Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Handle(nil), b.handles...)
}

func (b *Backend) config() (w, h uint32, format frame.PixelFormat, startErr, frameErr error, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Width, b.Height, b.Format, b.StartErr, b.FrameErr, b.FrameDelay
}

// Handle is the capture.Handle returned by Backend.Open.
type Handle struct {
	backend *Backend
	options capture.Options

	running atomic.Bool
	closed  atomic.Bool
	seq     atomic.Uint64

	starts atomic.Int32
	stops  atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// Options returns the options the handle was opened with.
func (h *Handle) Options() capture.Options { return h.options }

func (h *Handle) Starts() int        { return int(h.starts.Load()) }
func (h *Handle) Stops() int         { return int(h.stops.Load()) }
func (h *Handle) Running() bool      { return h.running.Load() }
func (h *Handle) Closed() bool       { return h.closed.Load() }
func (h *Handle) FramesServed() int  { return int(h.seq.Load()) }
func (h *Handle) MaxConcurrent() int { return int(h.maxInFlight.Load()) }

func (h *Handle) Start() error {
	_, _, _, startErr, _, _ := h.backend.config()
	if startErr != nil {
		return startErr
	}
	h.starts.Add(1)
	h.running.Store(true)
	return nil
}

func (h *Handle) Stop() error {
	h.stops.Add(1)
	h.running.Store(false)
	return nil
}

func (h *Handle) NextFrame() (frame.RawFrame, error) {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		peak := h.maxInFlight.Load()
		if n <= peak || h.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	w, ht, format, _, frameErr, delay := h.backend.config()
	if delay > 0 {
		time.Sleep(delay)
	}
	if frameErr != nil {
		return frame.RawFrame{}, frameErr
	}
	if !h.running.Load() {
		return frame.RawFrame{}, ErrNotStarted
	}

	seq := h.seq.Add(1)
	return frame.RawFrame{
		Format:      format,
		Width:       w,
		Height:      ht,
		DisplayTime: seq * uint64(time.Second/time.Duration(max(h.options.FrameRate, 1))),
		Data:        fill(int(w), int(ht)),
	}, nil
}

func (h *Handle) OutputSize() [2]uint32 {
	w, ht, _, _, _, _ := h.backend.config()
	return [2]uint32{w, ht}
}

func (h *Handle) Close() error {
	h.closed.Store(true)
	h.running.Store(false)
	return nil
}

func fill(w, h int) []byte {
	data := make([]byte, w*h*4)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			for k := 0; k < 4; k++ {
				data[r*w*4+c*4+k] = Pixel(r, c, k)
			}
		}
	}
	return data
}
