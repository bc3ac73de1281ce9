package models

import (
	"time"

	"github.com/benmeehan/sos-agent/internal/entities"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/pkg/location"
	"github.com/google/uuid"
)

// EmergencyActivation records the moment an emergency was entered.
type EmergencyActivation struct {
	ID          uuid.UUID           `json:"id"`
	DeviceID    string              `json:"device_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Source      string              `json:"source"`
	Mode        entities.Mode       `json:"mode"`
	Location    location.Coordinate `json:"location"`
	IsSimulated bool                `json:"is_simulated"`
}

// EmergencyView is everything the presentation layer needs to draw the map.
type EmergencyView struct {
	DeviceID     string                `json:"device_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Mode         entities.Mode         `json:"mode"`
	Active       bool                  `json:"active"`
	ActivationID *uuid.UUID            `json:"activation_id,omitempty"`
	Location     tracker.LocationState `json:"location"`
	Entities     entities.Set          `json:"entities"`
	Advisory     string                `json:"advisory,omitempty"` // e.g. motion permission denied
}
