package env

import (
	"go.uber.org/zap"

	"go2tv.app/acapture/internal/logging"
)

// Warner receives non-fatal failures. Warn must not block for long; it runs
// on the caller's goroutine.
type Warner interface {
	Warn(message string)
}

// WarnFunc adapts a function to Warner.
type WarnFunc func(message string)

func (f WarnFunc) Warn(message string) { f(message) }

type logWarner struct{}

func (logWarner) Warn(message string) {
	log.Warn(message)
}

// softFail reports a non-nil err to the warner and carries on.
func (e *Environment) softFail(err error) {
	if err == nil {
		return
	}
	log.Debug("soft failure", zap.Error(err), zap.String(logging.KeyState, e.session.State().String()))
	e.warner.Warn(err.Error())
}
