package model

import "time"

// SessionStatus is the lifecycle state of a rental session.
// pending -> active -> completed; pending -> cancelled; active -> expired.
// All terminal states are absorbing; sessions are never physically deleted.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether the status is absorbing.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled, SessionExpired:
		return true
	}
	return false
}

// Session represents one rental occupancy of a machine by a user.
type Session struct {
	ID              string        `gorm:"primaryKey;size:36" json:"id"`
	MachineID       string        `gorm:"size:36;not null;index" json:"machineId"`
	UserID          string        `gorm:"size:36;not null;index" json:"userId"`
	Status          SessionStatus `gorm:"size:16;not null;index" json:"status"`
	DurationMinutes int           `gorm:"not null" json:"durationMinutes"`
	StartTime       *time.Time    `json:"startTime"`
	EndTime         *time.Time    `json:"endTime"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Deadline returns the wall-clock instant the session outlives its rented
// duration. Only meaningful for active sessions with a start time.
func (s *Session) Deadline() time.Time {
	if s.StartTime == nil {
		return time.Time{}
	}
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}
