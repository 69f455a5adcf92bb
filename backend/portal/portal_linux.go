//go:build linux

// Package portal captures displays and windows on Wayland desktops through
// the xdg-desktop-portal ScreenCast interface and PipeWire.
//
// Targets are the streams the user picked in the portal's share dialog; the
// dialog is shown by RequestPermission, or by Targets when nothing has been
// shared yet.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/framequeue"
	"go2tv.app/acapture/internal/logging"
	"go2tv.app/acapture/internal/pipewire"
	"go2tv.app/acapture/internal/xdgportal"
)

const (
	defaultPermissionTimeout = 2 * time.Minute
	firstFrameTimeout        = 8 * time.Second
	minRepeatAfter           = 100 * time.Millisecond
)

var (
	ErrStopped       = errors.New("portal capture is not running")
	ErrSessionClosed = errors.New("screen cast session closed by the portal")
	ErrNoStreams     = errors.New("no streams were shared")
)

var log = logging.L("backend/portal")

// Option customizes a Backend.
type Option func(*Backend)

// WithCursor embeds the cursor in shared streams. The portal fixes the
// cursor mode when the user shares, so this applies to the whole session.
func WithCursor(show bool) Option {
	return func(b *Backend) { b.showCursor = show }
}

// WithPermissionTimeout bounds how long the share dialog may stay open.
func WithPermissionTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.permissionTimeout = d
		}
	}
}

// WithRestoreTokenFile keeps the user's share grant in path so later runs
// can share the same sources without showing the dialog again. Portals older
// than ScreenCast version 4 always show the dialog.
func WithRestoreTokenFile(path string) Option {
	return func(b *Backend) { b.restoreTokenFile = path }
}

// Backend is a capture.Backend over one portal screen cast session.
type Backend struct {
	showCursor        bool
	permissionTimeout time.Duration
	restoreTokenFile  string

	mu        sync.Mutex
	client    *xdgportal.Client
	session   *xdgportal.Session
	streams   []xdgportal.Stream
	closed    <-chan struct{}
	stopWatch func()
}

func New(opts ...Option) *Backend {
	b := &Backend{permissionTimeout: defaultPermissionTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) connect() (*xdgportal.Client, error) {
	if b.client != nil && b.client.Connected() {
		return b.client, nil
	}
	client, err := xdgportal.New()
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

// Supported reports whether libpipewire loads and a ScreenCast portal answers.
func (b *Backend) Supported() bool {
	if !pipewire.IsAvailable() {
		log.Debug("libpipewire not available")
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	client, err := b.connect()
	if err != nil {
		log.Debug("session bus unavailable", zap.Error(err))
		return false
	}
	version, err := client.Version()
	if err != nil {
		log.Debug("screencast portal unavailable", zap.Error(err))
		return false
	}
	log.Debug("screencast portal found", zap.Uint32("version", version))
	return true
}

// HasPermission reports whether a share is active.
func (b *Backend) HasPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeLocked()
}

func (b *Backend) activeLocked() bool {
	if b.session == nil {
		return false
	}
	select {
	case <-b.closed:
		return false
	default:
		return true
	}
}

// RequestPermission shows the share dialog and blocks until the user answers
// or the permission timeout expires.
func (b *Backend) RequestPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.shareLocked(); err != nil {
		log.Warn("screen share not granted", zap.Error(err))
		return false
	}
	return true
}

func (b *Backend) shareLocked() error {
	if b.activeLocked() {
		return nil
	}
	b.resetLocked()

	client, err := b.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.permissionTimeout)
	defer cancel()

	sess, err := client.CreateSession(ctx)
	if err != nil {
		return err
	}

	types := xdgportal.SourceTypeMonitor | xdgportal.SourceTypeWindow
	if available, err := client.AvailableSourceTypes(); err == nil && available != 0 {
		types &= available
	}
	cursorModes, err := client.AvailableCursorModes()
	if err != nil {
		log.Debug("cursor modes unavailable", zap.Error(err))
	}

	selectOpts := xdgportal.SelectSourcesOptions{
		Types:      types,
		Multiple:   true,
		CursorMode: cursorMode(b.showCursor, cursorModes),
	}
	persist := b.restoreTokenFile != ""
	if version, err := client.Version(); err != nil || version < xdgportal.RestoreTokenVersion {
		persist = false
	}
	if persist {
		selectOpts.PersistMode = xdgportal.PersistModePersistent
		selectOpts.RestoreToken = loadRestoreToken(b.restoreTokenFile)
	}

	if err := sess.SelectSources(ctx, selectOpts); err != nil {
		_ = sess.Close()
		return err
	}

	started, err := sess.Start(ctx, "")
	if err != nil {
		_ = sess.Close()
		return err
	}
	if persist && started.RestoreToken != "" {
		if err := saveRestoreToken(b.restoreTokenFile, started.RestoreToken); err != nil {
			log.Debug("restore token not saved", zap.Error(err))
		}
	}
	streams := started.Streams
	if len(streams) == 0 {
		_ = sess.Close()
		return ErrNoStreams
	}

	closed, stop, err := sess.OnClosed()
	if err != nil {
		_ = sess.Close()
		return err
	}

	b.session = sess
	b.streams = streams
	b.closed = closed
	b.stopWatch = stop
	log.Info("screen share granted", zap.Int("streams", len(streams)))
	return nil
}

// cursorMode asks for an embedded cursor only when the portal offers it.
// Hidden is mandatory for every portal implementation.
func cursorMode(show bool, available uint32) uint32 {
	if !show {
		return xdgportal.CursorModeHidden
	}
	if available&xdgportal.CursorModeEmbedded == 0 {
		log.Debug("portal does not offer an embedded cursor, hiding it",
			zap.Uint32("availableCursorModes", available))
		return xdgportal.CursorModeHidden
	}
	return xdgportal.CursorModeEmbedded
}

// loadRestoreToken returns the token saved at path, or "" when there is none.
func loadRestoreToken(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debug("restore token not loaded", zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveRestoreToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func (b *Backend) resetLocked() {
	if b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
	if b.session != nil {
		_ = b.session.Close()
		b.session = nil
	}
	b.streams = nil
	b.closed = nil
}

// Targets lists the shared streams, asking the user to share first if
// nothing is shared yet.
func (b *Backend) Targets() ([]capture.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.shareLocked(); err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
	}

	targets := make([]capture.Target, 0, len(b.streams))
	for _, s := range b.streams {
		targets = append(targets, streamTarget(s))
	}
	return targets, nil
}

func streamTarget(s xdgportal.Stream) capture.Target {
	kind := capture.KindDisplay
	label := "Monitor"
	if s.SourceType == xdgportal.SourceTypeWindow {
		kind = capture.KindWindow
		label = "Window"
	}
	title := fmt.Sprintf("%s %d (%dx%d)", label, s.NodeID, s.Size[0], s.Size[1])
	if s.MappingID != "" {
		title += " " + s.MappingID
	}
	return capture.Target{Kind: kind, ID: s.NodeID, Title: title}
}

func pickStream(streams []xdgportal.Stream, target *capture.Target) (xdgportal.Stream, error) {
	if target == nil {
		return streams[0], nil
	}
	for _, s := range streams {
		if s.NodeID == target.ID {
			return s, nil
		}
	}
	return xdgportal.Stream{}, fmt.Errorf("%w with id: %d", capture.ErrTargetNotFound, target.ID)
}

func (b *Backend) Open(options capture.Options) (capture.Handle, error) {
	if options.FrameRate == 0 {
		return nil, fmt.Errorf("%w: FrameRate must be > 0", capture.ErrInvalidOptions)
	}
	b.logIgnoredOptions(options)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.shareLocked(); err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
	}

	selected, err := pickStream(b.streams, options.Target)
	if err != nil {
		return nil, err
	}
	if selected.Size[0] <= 0 || selected.Size[1] <= 0 {
		return nil, fmt.Errorf("invalid stream size %dx%d", selected.Size[0], selected.Size[1])
	}

	remote, err := b.session.OpenPipeWireRemote()
	if err != nil {
		return nil, err
	}
	defer remote.Close()

	queue := framequeue.New(fmt.Sprintf("portal-%d", selected.NodeID), framequeue.DefaultSize)
	stream, err := pipewire.NewStream(int(remote.Fd()), selected.NodeID,
		uint32(selected.Size[0]), uint32(selected.Size[1]), options.FrameRate, queue)
	if err != nil {
		queue.Close()
		return nil, err
	}

	repeat := 2 * time.Second / time.Duration(options.FrameRate)
	if repeat < minRepeatAfter {
		repeat = minRepeatAfter
	}
	return &handle{
		node:        selected.NodeID,
		stream:      stream,
		queue:       queue,
		closed:      b.closed,
		repeatAfter: repeat,
	}, nil
}

// logIgnoredOptions reports options the session cannot apply per handle.
// The portal has no way to hide windows from a shared stream.
func (b *Backend) logIgnoredOptions(options capture.Options) {
	if options.ShowCursor != b.showCursor {
		log.Debug("cursor mode is fixed for the portal session",
			zap.Bool("requested", options.ShowCursor),
			zap.Bool("session", b.showCursor),
		)
	}
	if n := len(options.ExcludedTargets); n > 0 {
		log.Debug("portal capture ignores excluded targets", zap.Int("excluded", n))
	}
}

// Close ends the portal session. Open handles stop receiving frames.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	return nil
}

type handle struct {
	node        uint32
	stream      *pipewire.Stream
	queue       *framequeue.Queue
	closed      <-chan struct{}
	repeatAfter time.Duration

	mu      sync.Mutex
	running bool
	last    frame.RawFrame
	hasLast bool
}

func (h *handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue.Discard()
	h.hasLast = false
	h.stream.Start()
	h.running = true
	log.Debug("portal capture started", zap.Uint32("node", h.node))
	return nil
}

func (h *handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stream.Stop()
	h.running = false
	return nil
}

// NextFrame waits for the first frame after Start. Compositors only send
// frames on damage, so after that an unchanged screen repeats the last frame.
func (h *handle) NextFrame() (frame.RawFrame, error) {
	h.mu.Lock()
	running, last, hasLast := h.running, h.last, h.hasLast
	h.mu.Unlock()

	if !running {
		return frame.RawFrame{}, ErrStopped
	}
	select {
	case <-h.closed:
		return frame.RawFrame{}, ErrSessionClosed
	default:
	}

	timeout := firstFrameTimeout
	if hasLast {
		timeout = h.repeatAfter
	}
	f, err := h.queue.Pop(timeout)
	if errors.Is(err, framequeue.ErrTimeout) && hasLast {
		return last, nil
	}
	if err != nil {
		return frame.RawFrame{}, fmt.Errorf("node %d: %w", h.node, err)
	}

	h.mu.Lock()
	h.last, h.hasLast = f, true
	h.mu.Unlock()
	return f, nil
}

func (h *handle) OutputSize() [2]uint32 {
	w, ht := h.stream.Size()
	return [2]uint32{w, ht}
}

func (h *handle) Close() error {
	err := h.stream.Close()
	h.queue.Close()
	return err
}
