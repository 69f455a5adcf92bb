package config

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

const (
	minFrameRate = 1
	maxFrameRate = 240

	minPermissionTimeout = 5 * time.Second
	maxPermissionTimeout = time.Hour
)

var validBackends = map[string]bool{
	"auto":    true,
	"display": true,
	"portal":  true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config and returns every problem found. Out of range
// numbers are clamped to the nearest usable value; the returned errors for
// those are informational. Callers decide which of the rest are fatal and
// report them; Validate itself does not log.
func (c *Config) Validate() []error {
	var errs []error

	c.Capture.Backend = strings.ToLower(c.Capture.Backend)
	if !validBackends[c.Capture.Backend] {
		errs = append(errs, fmt.Errorf("capture.backend %q is not valid (use auto, display or portal)", c.Capture.Backend))
	}

	if c.Capture.TargetID < NoTarget {
		errs = append(errs, fmt.Errorf("capture.target_id %d is negative, ignoring", c.Capture.TargetID))
		c.Capture.TargetID = NoTarget
	} else if c.Capture.TargetID > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("capture.target_id %d does not fit in 32 bits, ignoring", c.Capture.TargetID))
		c.Capture.TargetID = NoTarget
	}

	if c.Capture.FrameRate < minFrameRate {
		errs = append(errs, fmt.Errorf("capture.frame_rate %d is below minimum %d, clamping", c.Capture.FrameRate, minFrameRate))
		c.Capture.FrameRate = minFrameRate
	} else if c.Capture.FrameRate > maxFrameRate {
		errs = append(errs, fmt.Errorf("capture.frame_rate %d exceeds maximum %d, clamping", c.Capture.FrameRate, maxFrameRate))
		c.Capture.FrameRate = maxFrameRate
	}

	if c.Capture.PermissionTimeout < minPermissionTimeout {
		errs = append(errs, fmt.Errorf("capture.permission_timeout %s is below minimum %s, clamping", c.Capture.PermissionTimeout, minPermissionTimeout))
		c.Capture.PermissionTimeout = minPermissionTimeout
	} else if c.Capture.PermissionTimeout > maxPermissionTimeout {
		errs = append(errs, fmt.Errorf("capture.permission_timeout %s exceeds maximum %s, clamping", c.Capture.PermissionTimeout, maxPermissionTimeout))
		c.Capture.PermissionTimeout = maxPermissionTimeout
	}

	if c.Log.Level != "" && !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q is not valid (use debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.Format != "" && c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not valid (use console or json)", c.Log.Format))
	}

	if _, _, err := net.SplitHostPort(c.Serve.Listen); err != nil {
		errs = append(errs, fmt.Errorf("serve.listen %q is not a host:port address: %w", c.Serve.Listen, err))
	}

	if c.Grab.Frames < 1 {
		errs = append(errs, fmt.Errorf("grab.frames %d is below minimum 1, clamping", c.Grab.Frames))
		c.Grab.Frames = 1
	}

	return errs
}
