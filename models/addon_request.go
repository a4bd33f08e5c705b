package models

import (
	"time"
)

// AddonRequest status values
const (
	AddonPending  = "pending"
	AddonApproved = "approved"
	AddonRejected = "rejected"
)

// AddonRequest is a proposal to add a billable service to an in-progress
// booking. Created by staff, reviewed exactly once by an admin. Terminal
// once approved or rejected.
type AddonRequest struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	BookingID       uint           `gorm:"not null;index" json:"booking_id"`
	ServiceID       uint           `gorm:"not null" json:"service_id"`
	Service         CatalogService `gorm:"foreignKey:ServiceID" json:"service"`
	RequestedPrice  float64        `gorm:"not null" json:"requested_price"`
	RequestedBy     uint           `gorm:"not null" json:"requested_by"` // staff user ID
	Requester       User           `gorm:"foreignKey:RequestedBy" json:"requester"`
	Status          string         `gorm:"not null;default:'pending';index" json:"status"` // pending, approved, rejected
	RejectionReason *string        `json:"rejection_reason"`
	ReviewedBy      *uint          `json:"reviewed_by"` // admin user ID, set on approval/rejection
	ReviewedAt      *time.Time     `json:"reviewed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the AddonRequest model
func (AddonRequest) TableName() string {
	return "addon_requests"
}

// Reviewed reports whether the request has left the pending state
func (r *AddonRequest) Reviewed() bool {
	return r.Status != AddonPending
}
