package constants

// Agent statuses reported by the status service
const (
	StatusAlive     = "alive"
	StatusEmergency = "emergency"
)
