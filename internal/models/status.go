package models

import "time"

// Status represents the structure for a periodic agent status event.
type Status struct {
	DeviceID    string             `json:"device_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Status      string             `json:"status"`
	ShakeArmed  bool               `json:"shake_armed"`
	IsSimulated bool               `json:"is_simulated"`
	Mode        string             `json:"mode"`
	Metrics     map[string]float64 `json:"metrics,omitempty"` // e.g. uptime, cpu, memory
}
