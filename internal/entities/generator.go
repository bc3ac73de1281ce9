// Package entities derives the synthetic responders and alerts shown around a user.
// Everything here is a pure function of (center, mode) so a live feed can replace it
// without changing the consumers.
package entities

import (
	"fmt"

	"github.com/benmeehan/sos-agent/pkg/location"
)

// Mode selects which view the entities are generated for.
type Mode string

const (
	// ModeStandard is the everyday dashboard: nothing nearby is shown.
	ModeStandard Mode = "standard"
	// ModePeerAlerts is the protector-facing dashboard listing other users' alerts.
	ModePeerAlerts Mode = "peer-alerts"
	// ModeSelfEmergency is the user's own active SOS.
	ModeSelfEmergency Mode = "self-emergency"
	// ModeMedicalEmergency is an active medical emergency; it is rendered like an SOS.
	ModeMedicalEmergency Mode = "medical-emergency"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeStandard, ModePeerAlerts, ModeSelfEmergency, ModeMedicalEmergency:
		return m, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// IsEmergency reports whether responders should be shown.
func (m Mode) IsEmergency() bool {
	return m == ModeSelfEmergency || m == ModeMedicalEmergency
}

type Kind string

const (
	KindAlert     Kind = "alert"
	KindAmbulance Kind = "ambulance"
	KindPolice    Kind = "police"
	KindProtector Kind = "protector"
)

// MarkerStyle lets the map tell alert subtypes apart.
type MarkerStyle string

const (
	MarkerCircle MarkerStyle = "circle"
	MarkerPin    MarkerStyle = "pin"
)

// Alert subtypes.
const (
	AlertEmergency = "emergency"
	AlertSuspect   = "suspect"
)

// Entity is one marker around the user.
type Entity struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Kind           Kind                `json:"kind"`
	AlertType      string              `json:"alert_type,omitempty"`
	MarkerStyle    MarkerStyle         `json:"marker_style,omitempty"`
	Initials       string              `json:"initials,omitempty"`
	Location       location.Coordinate `json:"location"`
	DistanceMeters float64             `json:"distance_meters"`
	DistanceLabel  string              `json:"distance"`
	Status         string              `json:"status"`
}

// Set groups the four entity lists. Lists are never nil.
type Set struct {
	Alerts      []Entity `json:"alerts"`
	Ambulances  []Entity `json:"ambulances"`
	PoliceUnits []Entity `json:"police_units"`
	Protectors  []Entity `json:"protectors"`
}

// Generate derives the entities for center in the given mode.
func Generate(center location.Coordinate, mode Mode) Set {
	set := Set{
		Alerts:      []Entity{},
		Ambulances:  []Entity{},
		PoliceUnits: []Entity{},
		Protectors:  []Entity{},
	}

	switch {
	case mode.IsEmergency():
		set.Alerts = append(set.Alerts, selfAlert(center))
		set.Ambulances = append(set.Ambulances, ambulance(center))
		set.PoliceUnits = append(set.PoliceUnits, police(center))
		set.Protectors = append(set.Protectors, protectors(center)...)
	case mode == ModePeerAlerts:
		set.Alerts = append(set.Alerts, peerAlerts(center)...)
	}
	return set
}

func peerAlerts(center location.Coordinate) []Entity {
	return []Entity{
		{
			ID:             "alert-1",
			Name:           "Amrita",
			Kind:           KindAlert,
			AlertType:      AlertEmergency,
			MarkerStyle:    MarkerCircle,
			Location:       center.Offset(400, 100),
			DistanceMeters: 700,
			DistanceLabel:  "700m",
			Status:         "Active",
		},
		{
			ID:             "alert-2",
			Name:           "Ritika",
			Kind:           KindAlert,
			AlertType:      AlertSuspect,
			MarkerStyle:    MarkerPin,
			Location:       center.Offset(-300, 200),
			DistanceMeters: 600,
			DistanceLabel:  "600m",
			Status:         "Active",
		},
	}
}

func selfAlert(center location.Coordinate) Entity {
	return Entity{
		ID:            "emergency-alert",
		Name:          "Your Emergency",
		Kind:          KindAlert,
		AlertType:     AlertEmergency,
		MarkerStyle:   MarkerCircle,
		Location:      center,
		DistanceLabel: "0m",
		Status:        "Active",
	}
}

func ambulance(center location.Coordinate) Entity {
	return Entity{
		ID:             "ambulance-1",
		Name:           "Ambulance 1",
		Kind:           KindAmbulance,
		Location:       center.Offset(0, 300),
		DistanceMeters: 300,
		DistanceLabel:  "300m",
		Status:         "On The Way",
	}
}

func police(center location.Coordinate) Entity {
	// southwest: 0.7 of the distance along each axis
	const d = 200.0
	return Entity{
		ID:             "police-1",
		Name:           "Police Unit 1",
		Kind:           KindPolice,
		Location:       center.Offset(-d*0.7, -d*0.7),
		DistanceMeters: d,
		DistanceLabel:  "200m",
		Status:         "On The Way",
	}
}

func protectors(center location.Coordinate) []Entity {
	return []Entity{
		protector("protector-1", "Rahul M.", "RM", center.Offset(250, -250), 250, "Responding"),
		protector("protector-2", "Amit K.", "AK", center.Offset(-300, -300), 300, "Notified"),
		protector("protector-3", "Vikram S.", "VS", center.Offset(200, 400), 400, "On the way"),
	}
}

func protector(id, name, initials string, at location.Coordinate, meters float64, status string) Entity {
	return Entity{
		ID:             id,
		Name:           name,
		Kind:           KindProtector,
		Initials:       initials,
		Location:       at,
		DistanceMeters: meters,
		DistanceLabel:  fmt.Sprintf("%.0fm", meters),
		Status:         status,
	}
}
