package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeyTarget    = "target"
	KeyBackend   = "backend"
	KeyState     = "state"
	KeyFrameRate = "frameRate"
	KeyWidth     = "width"
	KeyHeight    = "height"
)

const (
	envDebug     = "ACAPTURE_DEBUG"
	envDebugFile = "ACAPTURE_DEBUG_FILE"
)

// switchableCore lets package-level loggers created before Init pick up the
// configured core once Init runs.
type switchableCore struct {
	current *atomic.Pointer[zapcore.Core]
	fields  []zapcore.Field
}

func (c *switchableCore) base() zapcore.Core {
	core := *c.current.Load()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c *switchableCore) Enabled(level zapcore.Level) bool {
	return (*c.current.Load()).Enabled(level)
}

func (c *switchableCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &switchableCore{current: c.current, fields: merged}
}

func (c *switchableCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *switchableCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.base().Write(entry, fields)
}

func (c *switchableCore) Sync() error {
	return (*c.current.Load()).Sync()
}

var (
	currentCore atomic.Pointer[zapcore.Core]
	rootCore    = &switchableCore{current: &currentCore}
	root        = zap.New(rootCore)

	debugOutputOnce sync.Once
	debugOutput     io.Writer
)

func init() {
	level := zapcore.InfoLevel
	if debugEnabled() {
		level = zapcore.DebugLevel
	}
	setCore(newCore("text", level, nil))
}

func setCore(core zapcore.Core) {
	currentCore.Store(&core)
}

// Init configures the global logger. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
//
// ACAPTURE_DEBUG=1 forces debug level and ACAPTURE_DEBUG_FILE redirects
// output to a file, regardless of the arguments.
func Init(format, level string, output io.Writer) {
	lvl := ParseLevel(level)
	if debugEnabled() {
		lvl = zapcore.DebugLevel
	}
	setCore(newCore(format, lvl, output))
}

func newCore(format string, level zapcore.Level, output io.Writer) zapcore.Core {
	if w := debugWriter(); w != nil {
		output = w
	}
	if output == nil {
		output = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(output)), level)
}

// L returns a logger tagged with the given component name.
func L(component string) *zap.Logger {
	return root.With(zap.String(KeyComponent, component))
}

// Sync flushes buffered log entries.
func Sync() error {
	return root.Sync()
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func debugEnabled() bool {
	return strings.TrimSpace(os.Getenv(envDebug)) == "1"
}

func debugWriter() io.Writer {
	debugOutputOnce.Do(func() {
		p := strings.TrimSpace(os.Getenv(envDebugFile))
		if p == "" {
			return
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "acapture debug log open failed: %v\n", err)
			return
		}
		debugOutput = f
	})
	return debugOutput
}
