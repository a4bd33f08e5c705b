package models

import (
	"time"
)

// CatalogService is a priced service from the external catalog. The workflow
// engine reads it for titles and prices but never writes it; the admin CRUD
// that manages the catalog lives outside this API.
type CatalogService struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Category  string    `gorm:"not null;index" json:"category"`
	Price     float64   `gorm:"not null" json:"price"`
	Color     string    `json:"color"` // badge color used by the UI
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the CatalogService model
func (CatalogService) TableName() string {
	return "catalog_services"
}

// Vehicle is the customer's vehicle a booking refers to. Managed by the
// external profile CRUD; read here only for work queue summaries.
type Vehicle struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Make      string    `gorm:"not null" json:"make"`
	Model     string    `gorm:"not null" json:"model"`
	Year      int       `json:"year"`
	Plate     string    `json:"plate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Vehicle model
func (Vehicle) TableName() string {
	return "vehicles"
}

// Label returns a short human-readable description of the vehicle
func (v *Vehicle) Label() string {
	label := v.Make + " " + v.Model
	if v.Plate != "" {
		label += " (" + v.Plate + ")"
	}
	return label
}
