//go:build linux

package portal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/internal/logging"
	"go2tv.app/acapture/internal/xdgportal"
)

var shared = []xdgportal.Stream{
	{NodeID: 57, Size: [2]int32{2560, 1440}, SourceType: xdgportal.SourceTypeMonitor},
	{NodeID: 64, Size: [2]int32{800, 600}, SourceType: xdgportal.SourceTypeWindow, MappingID: "editor"},
}

func TestStreamTarget(t *testing.T) {
	tests := []struct {
		stream xdgportal.Stream
		want   capture.Target
	}{
		{shared[0], capture.Target{Kind: capture.KindDisplay, ID: 57, Title: "Monitor 57 (2560x1440)"}},
		{shared[1], capture.Target{Kind: capture.KindWindow, ID: 64, Title: "Window 64 (800x600) editor"}},
	}
	for _, tt := range tests {
		if got := streamTarget(tt.stream); got != tt.want {
			t.Errorf("streamTarget(%d) = %v, want %v", tt.stream.NodeID, got, tt.want)
		}
	}
}

func TestPickStream(t *testing.T) {
	got, err := pickStream(shared, nil)
	if err != nil || got.NodeID != 57 {
		t.Fatalf("pickStream(nil) = %d, %v", got.NodeID, err)
	}

	got, err = pickStream(shared, &capture.Target{Kind: capture.KindWindow, ID: 64})
	if err != nil || got.NodeID != 64 {
		t.Fatalf("pickStream(64) = %d, %v", got.NodeID, err)
	}

	if _, err := pickStream(shared, &capture.Target{ID: 3}); !errors.Is(err, capture.ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}
}

func TestOpenRejectsZeroFrameRate(t *testing.T) {
	if _, err := New().Open(capture.Options{}); !errors.Is(err, capture.ErrInvalidOptions) {
		t.Fatalf("err = %v, want ErrInvalidOptions", err)
	}
}

func TestCursorMode(t *testing.T) {
	tests := []struct {
		name      string
		show      bool
		available uint32
		want      uint32
	}{
		{"hidden requested", false, xdgportal.CursorModeHidden | xdgportal.CursorModeEmbedded, xdgportal.CursorModeHidden},
		{"embedded offered", true, xdgportal.CursorModeHidden | xdgportal.CursorModeEmbedded, xdgportal.CursorModeEmbedded},
		{"embedded not offered", true, xdgportal.CursorModeHidden, xdgportal.CursorModeHidden},
		{"modes unknown", true, 0, xdgportal.CursorModeHidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cursorMode(tt.show, tt.available); got != tt.want {
				t.Fatalf("cursorMode(%v, %d) = %d, want %d", tt.show, tt.available, got, tt.want)
			}
		})
	}
}

func TestRestoreTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acapture", "portal-restore-token")
	if token := loadRestoreToken(path); token != "" {
		t.Fatalf("missing file loaded %q", token)
	}

	if err := saveRestoreToken(path, "0b7e1f5c"); err != nil {
		t.Fatalf("saveRestoreToken: %v", err)
	}
	if token := loadRestoreToken(path); token != "0b7e1f5c" {
		t.Fatalf("loaded %q, want 0b7e1f5c", token)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file mode = %o, want 600", perm)
	}
}

func TestLogIgnoredOptions(t *testing.T) {
	t.Setenv("ACAPTURE_DEBUG", "")
	var buf bytes.Buffer
	logging.Init("json", "debug", &buf)
	t.Cleanup(func() { logging.Init("text", "info", nil) })

	b := New(WithCursor(true))
	b.logIgnoredOptions(capture.Options{ShowCursor: true, FrameRate: 30})
	if buf.Len() != 0 {
		t.Fatalf("matching options logged: %s", buf.String())
	}

	b.logIgnoredOptions(capture.Options{
		ShowCursor:      true,
		FrameRate:       30,
		ExcludedTargets: []capture.Target{{Kind: capture.KindWindow, ID: 3}, {Kind: capture.KindWindow, ID: 4}},
	})
	if out := buf.String(); !strings.Contains(out, "ignores excluded targets") || !strings.Contains(out, `"excluded":2`) {
		t.Fatalf("exclusion not logged: %s", out)
	}
}
