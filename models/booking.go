package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking status values
const (
	BookingPending    = "pending"
	BookingConfirmed  = "confirmed"
	BookingInProgress = "in_progress"
	BookingCompleted  = "completed"
	BookingCancelled  = "cancelled"
)

// Booking priority values
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Booking represents a detailing job booked by a customer
type Booking struct {
	ID                  uint                 `gorm:"primaryKey" json:"id"`
	CustomerID          uint                 `gorm:"not null;index" json:"customer_id"`
	Customer            User                 `gorm:"foreignKey:CustomerID" json:"customer"`
	VehicleID           uint                 `gorm:"not null;index" json:"vehicle_id"`
	Vehicle             Vehicle              `gorm:"foreignKey:VehicleID" json:"vehicle"`
	ServiceID           uint                 `gorm:"not null;index" json:"service_id"`
	Service             CatalogService       `gorm:"foreignKey:ServiceID" json:"service"`
	ServiceCategory     string               `gorm:"not null" json:"service_category"`
	Status              string               `gorm:"not null;default:'pending'" json:"status"`   // pending, confirmed, in_progress, completed, cancelled
	Priority            string               `gorm:"not null;default:'normal'" json:"priority"` // normal, high, urgent
	EstimatedCompletion *time.Time           `json:"estimated_completion"` // staff-editable ETA
	PaymentAmount       float64              `json:"payment_amount"`       // legacy total, used when no service lines exist
	Stages              []Stage              `gorm:"foreignKey:BookingID" json:"stages,omitempty"`
	ServiceLines        []BookingServiceLine `gorm:"foreignKey:BookingID" json:"service_lines,omitempty"`
	AddonRequests       []AddonRequest       `gorm:"foreignKey:BookingID" json:"addon_requests,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	DeletedAt           gorm.DeletedAt       `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// IsActive reports whether the booking should appear in the work queue
func (b *Booking) IsActive() bool {
	return b.Status == BookingConfirmed || b.Status == BookingInProgress
}

// TotalPrice returns the sum of the booking's service line prices.
// Bookings created before line-item tracking fall back to PaymentAmount.
// ServiceLines must be loaded before calling.
func (b *Booking) TotalPrice() float64 {
	if len(b.ServiceLines) == 0 {
		return b.PaymentAmount
	}

	var total float64
	for _, line := range b.ServiceLines {
		total += line.Price
	}
	return total
}

// BookingServiceLine represents a billable line item attached to a booking,
// either the original service or one added via an approved addon request
type BookingServiceLine struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	BookingID uint           `gorm:"not null;index" json:"booking_id"`
	ServiceID uint           `gorm:"not null" json:"service_id"`
	Service   CatalogService `gorm:"foreignKey:ServiceID" json:"service"`
	Price     float64        `gorm:"not null" json:"price"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the BookingServiceLine model
func (BookingServiceLine) TableName() string {
	return "booking_service_lines"
}
