package model

import "time"

// File is the relational record of an uploaded document. FileKey addresses
// the raw bytes in object storage. SessionID is set for visitor uploads and
// cascades with the session; UserID is set for authenticated owner uploads.
type File struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileName  string    `gorm:"size:256;not null" json:"file_name"`
	FileKey   string    `gorm:"size:512;not null;uniqueIndex" json:"file_key"`
	UserID    uint      `gorm:"index" json:"user_id"`
	SessionID *string   `gorm:"size:64;index" json:"session_id,omitempty"`
	Session   *Session  `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
