package models

import (
	"time"
)

// DefaultTemplateCategory is the fallback template used when no template
// matches a booking's service category.
const DefaultTemplateCategory = "default"

// ProcessTemplate is an ordered sequence of stage definitions for a service
// category. Consumed read-only when a booking's stages are instantiated;
// managed by the external admin CRUD.
type ProcessTemplate struct {
	ID        uint                   `gorm:"primaryKey" json:"id"`
	Category  string                 `gorm:"uniqueIndex;not null" json:"category"`
	Name      string                 `gorm:"not null" json:"name"`
	Stages    []ProcessTemplateStage `gorm:"foreignKey:TemplateID" json:"stages"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TableName specifies the table name for the ProcessTemplate model
func (ProcessTemplate) TableName() string {
	return "process_templates"
}

// ProcessTemplateStage is one stage definition within a process template
type ProcessTemplateStage struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TemplateID    uint      `gorm:"not null;index" json:"template_id"`
	StageKey      string    `gorm:"not null" json:"stage_key"`
	Name          string    `gorm:"not null" json:"name"`
	StageOrder    int       `gorm:"not null" json:"stage_order"`
	RequiresPhoto bool      `gorm:"not null;default:false" json:"requires_photo"`
	EstimatedMins int       `json:"estimated_minutes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for the ProcessTemplateStage model
func (ProcessTemplateStage) TableName() string {
	return "process_template_stages"
}
