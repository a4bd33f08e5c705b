package models

import (
	"time"
)

// Stage is one ordered step of a booking's production pipeline,
// instantiated from a process template when the booking is confirmed.
// Never reordered after creation.
type Stage struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	BookingID     uint         `gorm:"not null;index" json:"booking_id"`
	StageKey      string       `gorm:"not null" json:"stage_key"`
	Name          string       `gorm:"not null" json:"name"`
	StageOrder    int          `gorm:"not null" json:"stage_order"`
	RequiresPhoto bool         `gorm:"not null;default:false" json:"requires_photo"`
	EstimatedMins int          `json:"estimated_minutes"`
	StartedAt     *time.Time   `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at"`
	Completed     bool         `gorm:"not null;default:false;index" json:"completed"`
	Notes         string       `json:"notes"`
	AssignedTo    *uint        `gorm:"index" json:"assigned_to"` // staff user ID, nil when unassigned
	Assignee      *User        `gorm:"foreignKey:AssignedTo" json:"assignee,omitempty"`
	Images        []StageImage `gorm:"foreignKey:StageID" json:"images,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName specifies the table name for the Stage model
func (Stage) TableName() string {
	return "stages"
}

// Started reports whether work on the stage has begun
func (s *Stage) Started() bool {
	return s.StartedAt != nil
}

// StageImage is a progress photo attached to a stage. Append-only.
type StageImage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StageID    uint      `gorm:"not null;index" json:"stage_id"`
	ImageKey   string    `gorm:"not null" json:"image_key"`               // S3 object key
	ImageURL   string    `gorm:"-" json:"image_url,omitempty"`            // computed, presigned URL
	UploadedBy uint      `gorm:"not null" json:"uploaded_by"`             // staff user ID
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for the StageImage model
func (StageImage) TableName() string {
	return "stage_images"
}
