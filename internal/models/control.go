package models

import "github.com/benmeehan/sos-agent/pkg/motion"

// ControlCommand is a request from the presentation layer.
type ControlCommand struct {
	Action string         `json:"action"`
	Source string         `json:"source,omitempty"` // activate: manual or medical
	Mode   string         `json:"mode,omitempty"`   // set_mode
	Sample *motion.Sample `json:"sample,omitempty"` // motion
}

// ControlResult acknowledges a ControlCommand on the response topic.
type ControlResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}
