package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go2tv.app/acapture/env"
)

// NoTarget leaves the target choice to the backend.
const NoTarget = -1

type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
	Serve   ServeConfig   `mapstructure:"serve"`
	Grab    GrabConfig    `mapstructure:"grab"`
}

type CaptureConfig struct {
	Backend           string        `mapstructure:"backend"`
	TargetID          int64         `mapstructure:"target_id"`
	FrameRate         int           `mapstructure:"frame_rate"`
	ShowCursor        bool          `mapstructure:"show_cursor"`
	ShowHighlight     bool          `mapstructure:"show_highlight"`
	PermissionTimeout time.Duration `mapstructure:"permission_timeout"`
	// RestoreTokenFile keeps the portal share grant between runs. Empty
	// shows the share dialog every run.
	RestoreTokenFile string `mapstructure:"restore_token_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServeConfig struct {
	Listen string `mapstructure:"listen"`
}

type GrabConfig struct {
	Frames int `mapstructure:"frames"`
}

// SetDefaults registers every default on v so they apply without a config
// file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("capture.backend", "auto")
	v.SetDefault("capture.target_id", NoTarget)
	v.SetDefault("capture.frame_rate", 32)
	v.SetDefault("capture.show_cursor", false)
	v.SetDefault("capture.show_highlight", true)
	v.SetDefault("capture.permission_timeout", "2m")
	v.SetDefault("capture.restore_token_file", filepath.Join(ConfigDir(), "portal-restore-token"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("serve.listen", "127.0.0.1:8765")

	v.SetDefault("grab.frames", 100)
}

// Load reads cfgFile, or acapture.yaml from the config dir or the working
// directory, layered over defaults and ACAPTURE_* environment variables.
// A missing default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("acapture")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ACAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigDir is the per-user directory searched for acapture.yaml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "acapture")
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "acapture")
	default:
		return filepath.Join(os.Getenv("HOME"), ".config", "acapture")
	}
}

// Params converts the capture section into environment parameters. Unset
// values are left nil so the capture defaults apply.
func (c CaptureConfig) Params() env.Params {
	p := env.Params{
		ShowCursor:    &c.ShowCursor,
		ShowHighlight: &c.ShowHighlight,
	}
	if c.TargetID > NoTarget {
		id := uint32(c.TargetID)
		p.TargetID = &id
	}
	if c.FrameRate > 0 {
		rate := uint32(c.FrameRate)
		p.FrameRate = &rate
	}
	return p
}
