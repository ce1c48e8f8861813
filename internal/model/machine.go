package model

import "time"

// MachineStatus is the lifecycle state of a physical vacuum unit.
type MachineStatus string

const (
	MachineOnline      MachineStatus = "online"
	MachineInUse       MachineStatus = "in_use"
	MachineOffline     MachineStatus = "offline"
	MachineMaintenance MachineStatus = "maintenance"
)

// Machine represents a physical rental unit in the fleet.
// Status is mutated only by the session manager (start/stop) and by the
// reconciliation sweeper (drift repair). A machine is in_use exactly when
// one active session references it.
type Machine struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	Code           string        `gorm:"uniqueIndex;size:32;not null" json:"code"`
	Location       string        `gorm:"size:256" json:"location"`
	Status         MachineStatus `gorm:"size:16;not null;index" json:"status"`
	OperatingHours float64       `gorm:"not null;default:0" json:"operatingHours"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}
