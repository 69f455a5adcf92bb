//go:build linux

// Package xdgportal binds the org.freedesktop.portal.ScreenCast interface.
package xdgportal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"go2tv.app/acapture/internal/apis"
	"go2tv.app/acapture/internal/convert"
	"go2tv.app/acapture/internal/request"
	"go2tv.app/acapture/internal/session"
)

const (
	interfaceName      = apis.CallBaseName + ".ScreenCast"
	createSessionName  = interfaceName + ".CreateSession"
	selectSourcesName  = interfaceName + ".SelectSources"
	startName          = interfaceName + ".Start"
	openPipeWireRemote = interfaceName + ".OpenPipeWireRemote"
)

const (
	SourceTypeMonitor uint32 = 1
	SourceTypeWindow  uint32 = 2
)

const (
	CursorModeHidden   uint32 = 1
	CursorModeEmbedded uint32 = 2
)

// PersistModePersistent keeps a grant across restarts until the user revokes
// it. The grant is redeemed with the restore token from Start.
const PersistModePersistent uint32 = 2

// RestoreTokenVersion is the first ScreenCast version that honors
// persist_mode and restore_token.
const RestoreTokenVersion uint32 = 4

var ErrMissingSessionHandle = errors.New("CreateSession response missing session_handle")

// Client talks to the ScreenCast portal over one session bus connection.
type Client struct {
	bus *apis.Bus
}

func New() (*Client, error) {
	bus, err := apis.Connect()
	if err != nil {
		return nil, err
	}
	return &Client{bus: bus}, nil
}

// Connected reports whether the client's bus connection is still open.
func (c *Client) Connected() bool {
	return c.bus.Connected()
}

func (c *Client) uint32Property(property string) (uint32, error) {
	value, err := c.bus.Property(interfaceName, property)
	if err != nil {
		return 0, err
	}
	result, ok := value.(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s returned unexpected type %T", property, value)
	}
	return result, nil
}

func (c *Client) AvailableSourceTypes() (uint32, error) {
	return c.uint32Property("AvailableSourceTypes")
}

func (c *Client) AvailableCursorModes() (uint32, error) {
	return c.uint32Property("AvailableCursorModes")
}

func (c *Client) Version() (uint32, error) {
	return c.uint32Property("version")
}

// Stream is one entry of the streams list returned by Start.
type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType uint32
	MappingID  string
	ID         string
}

type Session struct {
	client *Client
	Path   dbus.ObjectPath
}

type SelectSourcesOptions struct {
	Types        uint32
	Multiple     bool
	CursorMode   uint32
	RestoreToken string
	PersistMode  uint32
}

// CreateSession opens a new screen cast session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	token := session.GenerateToken()
	data := convert.Vardict{}.
		String("handle_token", token).
		String("session_handle_token", session.GenerateToken())

	results, err := request.Do(ctx, c.bus, token, func() (dbus.ObjectPath, error) {
		var path dbus.ObjectPath
		err := c.bus.Call(createSessionName, &path, map[string]dbus.Variant(data))
		return path, err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sessionPath, ok := convert.StringOf(results, "session_handle")
	if !ok {
		return nil, ErrMissingSessionHandle
	}
	return &Session{client: c, Path: dbus.ObjectPath(sessionPath)}, nil
}

// SelectSources configures which kinds of sources the share dialog offers.
func (s *Session) SelectSources(ctx context.Context, options SelectSourcesOptions) error {
	token := session.GenerateToken()
	data := convert.Vardict{}.
		String("handle_token", token).
		Uint32("types", options.Types).
		Bool("multiple", options.Multiple).
		Uint32("cursor_mode", options.CursorMode).
		String("restore_token", options.RestoreToken).
		Uint32("persist_mode", options.PersistMode)

	_, err := request.Do(ctx, s.client.bus, token, func() (dbus.ObjectPath, error) {
		var path dbus.ObjectPath
		err := s.client.bus.Call(selectSourcesName, &path, s.Path, map[string]dbus.Variant(data))
		return path, err
	})
	if err != nil {
		return fmt.Errorf("select sources: %w", err)
	}
	return nil
}

// Started is the result of a successful Start.
type Started struct {
	Streams []Stream
	// RestoreToken replays this grant in a later SelectSources. Tokens are
	// single use; empty when the portal did not persist the grant.
	RestoreToken string
}

// Start shows the share dialog, unless a restore token replays an earlier
// grant, and returns the streams the user picked.
func (s *Session) Start(ctx context.Context, parentWindow string) (Started, error) {
	token := session.GenerateToken()
	data := convert.Vardict{}.String("handle_token", token)

	results, err := request.Do(ctx, s.client.bus, token, func() (dbus.ObjectPath, error) {
		var path dbus.ObjectPath
		err := s.client.bus.Call(startName, &path, s.Path, parentWindow, map[string]dbus.Variant(data))
		return path, err
	})
	if err != nil {
		return Started{}, fmt.Errorf("start: %w", err)
	}
	return parseStarted(results), nil
}

func parseStarted(results map[string]dbus.Variant) Started {
	var started Started
	if v, ok := results["streams"]; ok {
		started.Streams = parseStreams(v.Value())
	}
	started.RestoreToken, _ = convert.StringOf(results, "restore_token")
	return started
}

func parseStreams(value any) []Stream {
	var rawStreams [][]any
	switch rs := value.(type) {
	case [][]any:
		rawStreams = rs
	case []any:
		for _, r := range rs {
			if s, ok := r.([]any); ok {
				rawStreams = append(rawStreams, s)
			}
		}
	default:
		return nil
	}

	streams := make([]Stream, 0, len(rawStreams))
	for _, raw := range rawStreams {
		if len(raw) < 2 {
			continue
		}

		var stream Stream
		stream.NodeID, _ = raw[0].(uint32)
		if props, ok := raw[1].(map[string]dbus.Variant); ok {
			stream.Position, _ = convert.Int32PairOf(props, "position")
			stream.Size, _ = convert.Int32PairOf(props, "size")
			stream.SourceType, _ = convert.Uint32Of(props, "source_type")
			stream.MappingID, _ = convert.StringOf(props, "mapping_id")
			stream.ID, _ = convert.StringOf(props, "id")
		}
		streams = append(streams, stream)
	}
	return streams
}

// OpenPipeWireRemote returns a file for the PipeWire remote the session's
// streams are served on. The caller owns the file.
func (s *Session) OpenPipeWireRemote() (*os.File, error) {
	var fd dbus.UnixFD
	if err := s.client.bus.Call(openPipeWireRemote, &fd, s.Path, map[string]dbus.Variant{}); err != nil {
		return nil, err
	}
	// godbus keeps no reference to the received descriptor; dup it so the
	// returned file has a close-on-exec copy of its own.
	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dup pipewire fd: %w", err)
	}
	_ = unix.Close(int(fd))
	return os.NewFile(uintptr(dup), "pipewire-remote"), nil
}

// OnClosed reports when the portal closes the session.
func (s *Session) OnClosed() (<-chan struct{}, func(), error) {
	return session.OnClosed(s.client.bus, s.Path)
}

func (s *Session) Close() error {
	return session.Close(s.client.bus, s.Path)
}
