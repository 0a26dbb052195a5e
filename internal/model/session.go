package model

import "time"

// Session is a visitor-scoped ownership token. Uploaded files and their
// vectors are grouped under it so the cleanup job can sweep everything once
// the session expires.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
