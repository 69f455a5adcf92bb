package wsfeed

import "go2tv.app/acapture/env"

// Message types sent by clients.
const (
	TypeReset   = "reset"
	TypeStep    = "step"
	TypeClose   = "close"
	TypeTargets = "targets"
)

// Message types sent by the server.
const (
	TypeFrame   = "frame"
	TypeClosed  = "closed"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Message is the JSON envelope for every text frame in both directions. A
// "frame" message is immediately followed by one binary message holding the
// packed height x width x 3 BGR bytes.
type Message struct {
	Type    string           `json:"type"`
	Shape   []int            `json:"shape,omitempty"`
	Info    *env.Info        `json:"info,omitempty"`
	Targets []env.TargetInfo `json:"targets,omitempty"`
	Message string           `json:"message,omitempty"`
}
