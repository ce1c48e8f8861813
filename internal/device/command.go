package device

import "time"

// Action is a command verb understood by the relay controller.
type Action string

const (
	ActionActivate      Action = "activate"
	ActionDeactivate    Action = "deactivate"
	ActionEmergencyStop Action = "emergency_stop"
)

// Command is the outbound message published on the device command channel.
// Delivery is at-least-once; the controller treats a repeated identical
// activate as a refresh of the running timer, not a restart.
type Command struct {
	MachineID  string    `json:"machineId"`
	Action     Action    `json:"action"`
	DurationMs int64     `json:"durationMs"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// Telemetry is the advisory inbound state report from a controller. It is
// logged for observability and never drives session state.
type Telemetry struct {
	MachineID string    `json:"machineId"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}
