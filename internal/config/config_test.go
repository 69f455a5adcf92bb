package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"go2tv.app/acapture/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acapture.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.Backend != "auto" || cfg.Capture.TargetID != NoTarget || cfg.Capture.FrameRate != 32 {
		t.Fatalf("capture = %+v", cfg.Capture)
	}
	if cfg.Capture.ShowCursor || !cfg.Capture.ShowHighlight || cfg.Capture.PermissionTimeout != 2*time.Minute {
		t.Fatalf("capture = %+v", cfg.Capture)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" || cfg.Grab.Frames != 100 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if runtime.GOOS == "linux" {
		if want := filepath.Join(xdg, "acapture", "portal-restore-token"); cfg.Capture.RestoreTokenFile != want {
			t.Fatalf("restore_token_file = %q, want %q", cfg.Capture.RestoreTokenFile, want)
		}
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("defaults do not validate: %v", errs)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
capture:
  backend: display
  target_id: 2
  frame_rate: 10
  show_cursor: true
  permission_timeout: 30s
log:
  level: debug
serve:
  listen: 0.0.0.0:9000
`)
	t.Setenv("ACAPTURE_CAPTURE_FRAME_RATE", "15")
	t.Setenv("ACAPTURE_LOG_FORMAT", "json")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cfg.Capture
	if c.Backend != "display" || c.TargetID != 2 || !c.ShowCursor || c.PermissionTimeout != 30*time.Second {
		t.Fatalf("capture = %+v", c)
	}
	if c.FrameRate != 15 {
		t.Fatalf("frame_rate = %d, want env override 15", c.FrameRate)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Serve.Listen != "0.0.0.0:9000" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return cfg
}

func TestValidateClamps(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		check   func(c *Config) bool
		message string
	}{
		{
			name:    "zero frame rate",
			mutate:  func(c *Config) { c.Capture.FrameRate = 0 },
			check:   func(c *Config) bool { return c.Capture.FrameRate == minFrameRate },
			message: "below minimum",
		},
		{
			name:    "huge frame rate",
			mutate:  func(c *Config) { c.Capture.FrameRate = 1000 },
			check:   func(c *Config) bool { return c.Capture.FrameRate == maxFrameRate },
			message: "exceeds maximum",
		},
		{
			name:    "negative target",
			mutate:  func(c *Config) { c.Capture.TargetID = -5 },
			check:   func(c *Config) bool { return c.Capture.TargetID == NoTarget },
			message: "negative",
		},
		{
			name:    "target overflow",
			mutate:  func(c *Config) { c.Capture.TargetID = 1 << 33 },
			check:   func(c *Config) bool { return c.Capture.TargetID == NoTarget },
			message: "32 bits",
		},
		{
			name:    "short permission timeout",
			mutate:  func(c *Config) { c.Capture.PermissionTimeout = time.Second },
			check:   func(c *Config) bool { return c.Capture.PermissionTimeout == minPermissionTimeout },
			message: "permission_timeout",
		},
		{
			name:    "no frames",
			mutate:  func(c *Config) { c.Grab.Frames = 0 },
			check:   func(c *Config) bool { return c.Grab.Frames == 1 },
			message: "grab.frames",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || !strings.Contains(errs[0].Error(), tt.message) {
				t.Fatalf("errs = %v, want one containing %q", errs, tt.message)
			}
			if !tt.check(cfg) {
				t.Fatalf("value not clamped: %+v", cfg)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := validConfig(t)
	cfg.Capture.Backend = "X11"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Serve.Listen = "8765"

	if errs := cfg.Validate(); len(errs) != 4 {
		t.Fatalf("got %d errors, want 4: %v", len(errs), errs)
	}
}

func TestParams(t *testing.T) {
	cfg := validConfig(t)
	p := cfg.Capture.Params()
	if p.TargetID != nil || p.FrameRate == nil || *p.FrameRate != 32 || *p.ShowCursor || !*p.ShowHighlight {
		t.Fatalf("default params = %+v", p)
	}

	cfg.Capture.TargetID = 0
	if p := cfg.Capture.Params(); p.TargetID == nil || *p.TargetID != 0 {
		t.Fatalf("target 0 not passed through: %+v", p)
	}
}

func TestValidateDoesNotLog(t *testing.T) {
	t.Setenv("ACAPTURE_DEBUG", "")
	var buf bytes.Buffer
	logging.Init("json", "debug", &buf)
	t.Cleanup(func() { logging.Init("text", "info", nil) })

	cfg := validConfig(t)
	cfg.Capture.FrameRate = 1000
	cfg.Log.Level = "loud"
	if errs := cfg.Validate(); len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if buf.Len() != 0 {
		t.Fatalf("Validate logged its errors, callers report them: %s", buf.String())
	}
}
