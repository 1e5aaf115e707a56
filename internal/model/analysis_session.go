package model

import "time"

// AnalysisSession groups the text rows originating from one CSV upload.
// Sessions are immutable after creation; deleting one cascades to its rows.
type AnalysisSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Filename  string    `gorm:"size:256;not null" json:"filename"`
	CreatedAt time.Time `json:"created_at"`

	Analyses []TextAnalysis `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}
