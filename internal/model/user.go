package model

import "time"

// User carries the wallet balance credited by approved payments. Account
// management itself lives outside this service; only the balance is owned
// here.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:128" json:"name"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balanceCents"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
