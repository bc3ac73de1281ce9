package models

import (
	"time"
)

// LocationReport is the periodic location message of a device.
type LocationReport struct {
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	IsSimulated bool      `json:"is_simulated"`
	Phase       string    `json:"phase"`
	Error       string    `json:"error,omitempty"`
}
