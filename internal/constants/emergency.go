package constants

// Activation sources
const (
	// ActivationSourceShake is a burst detected by the shake detector.
	ActivationSourceShake = "shake"
	// ActivationSourceManual is an explicit SOS request from the presentation layer.
	ActivationSourceManual = "manual"
	// ActivationSourceMedical is a medical emergency request.
	ActivationSourceMedical = "medical"
)

// Advisory messages surfaced to the presentation layer
const (
	AdvisoryMotionDenied      = "Motion permission denied."
	AdvisoryMotionUnsupported = "This device does not support motion detection."
)

// Middleware names
const (
	NAMESPACE_MIDDLEWARE = "namespace"
)

// Control actions accepted on the control topic
const (
	ControlActivate   = "activate"
	ControlDeactivate = "deactivate"
	ControlSetMode    = "set_mode"
	ControlMotion     = "motion"
)
