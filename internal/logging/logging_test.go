package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestPreInitLoggerUsesConfiguredCore(t *testing.T) {
	t.Setenv(envDebug, "")
	logger := L("session")

	var buf bytes.Buffer
	Init("json", "info", &buf)
	t.Cleanup(func() { Init("text", "info", nil) })

	logger.Info("capture started", zap.Uint32(KeyFrameRate, 32))

	out := buf.String()
	if !strings.Contains(out, `"msg":"capture started"`) {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, `"component":"session"`) {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, `"frameRate":32`) {
		t.Fatalf("expected frameRate field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	t.Setenv(envDebug, "")
	logger := L("env")

	var buf bytes.Buffer
	Init("text", "warn", &buf)
	t.Cleanup(func() { Init("text", "info", nil) })

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestDebugEnvForcesDebugLevel(t *testing.T) {
	t.Setenv(envDebug, "1")

	var buf bytes.Buffer
	Init("text", "error", &buf)
	t.Cleanup(func() {
		t.Setenv(envDebug, "")
		Init("text", "info", nil)
	})

	L("backend").Debug("negotiated")
	if !strings.Contains(buf.String(), "negotiated") {
		t.Fatalf("debug log should be emitted when %s=1: %s", envDebug, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
