package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "WAITING"
	WaitlistNotified  WaitlistStatus = "NOTIFIED"
	WaitlistCancelled WaitlistStatus = "CANCELLED"
)

type WaitlistEntry struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	UserID       string         `gorm:"index;not null" json:"user_id"`
	SpotID       string         `gorm:"index;not null" json:"spot_id"`
	DesiredStart time.Time      `gorm:"not null" json:"desired_start"`
	DesiredEnd   time.Time      `gorm:"not null" json:"desired_end"`
	AutoBook     bool           `json:"auto_book"`
	Status       WaitlistStatus `gorm:"index;not null" json:"status"`
	NotifiedAt   null.Time      `json:"notified_at"`
	CreatedAt    time.Time      `json:"created_at"`
}
