package model

import "time"

// AssistantMessage is one turn of an assistant conversation, persisted
// asynchronously by the transcript worker.
type AssistantMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionToken string    `gorm:"size:64;not null;index" json:"session_token"`
	Role         string    `gorm:"size:16;not null" json:"role"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}
