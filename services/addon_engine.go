package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/models"
)

// DefaultRejectionReason is stored when an admin rejects a request without
// giving a reason.
const DefaultRejectionReason = "Request declined. Please rebook this service."

// AddonEngine owns the addon request lifecycle (pending -> approved or
// rejected) and the atomic application of an approved addon to the booking's
// service line ledger.
type AddonEngine struct {
	db          *gorm.DB
	broadcaster Broadcaster
	notifier    Notifier
}

// NewAddonEngine creates an addon approval engine on the given database
func NewAddonEngine(db *gorm.DB, broadcaster Broadcaster, notifier Notifier) *AddonEngine {
	return &AddonEngine{db: db, broadcaster: broadcaster, notifier: notifier}
}

func (e *AddonEngine) publish(topic string, event Event) {
	if e.broadcaster != nil {
		e.broadcaster.Publish(topic, event)
	}
}

// SubmitRequest creates an addon request for the booking. Staff submissions
// enter the pending review queue; admin submissions are applied immediately
// since the admin is the approver: the returned record is already approved
// with its service line created.
func (e *AddonEngine) SubmitRequest(ctx context.Context, bookingID, serviceID uint, price float64, actor Actor) (*models.AddonRequest, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("submit an addon request")
	}

	db := e.db.WithContext(ctx)

	var booking models.Booking
	if err := db.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("booking", bookingID)
		}
		return nil, errOperationFailed(err)
	}

	var service models.CatalogService
	if err := db.First(&service, serviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("service", serviceID)
		}
		return nil, errOperationFailed(err)
	}

	request := models.AddonRequest{
		BookingID:      bookingID,
		ServiceID:      serviceID,
		RequestedPrice: price,
		RequestedBy:    actor.UserID,
		Status:         models.AddonPending,
	}

	if actor.IsAdmin() {
		now := time.Now()
		request.Status = models.AddonApproved
		request.ReviewedBy = &actor.UserID
		request.ReviewedAt = &now

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := e.checkDuplicate(tx, bookingID, serviceID); err != nil {
				return err
			}
			if err := tx.Create(&request).Error; err != nil {
				return err
			}
			line := models.BookingServiceLine{
				BookingID: bookingID,
				ServiceID: serviceID,
				Price:     price,
			}
			return tx.Create(&line).Error
		})
		if err != nil {
			return nil, wrapWorkflowErr(err)
		}

		e.publishAddonChange(bookingID, request.ID, EventAddonApproved)
		e.notifyCustomer(ctx, &booking, NotifyAddonApproved, request.ID,
			fmt.Sprintf("Service %q was added to your booking.", service.Title))

		return &request, nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := e.checkDuplicate(tx, bookingID, serviceID); err != nil {
			return err
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return nil, wrapWorkflowErr(err)
	}

	e.publishAddonChange(bookingID, request.ID, EventAddonSubmitted)

	return &request, nil
}

// checkDuplicate fails when a pending request for the same booking+service
// already exists. Runs inside the submit transaction so racing duplicate
// submissions cannot both land.
func (e *AddonEngine) checkDuplicate(tx *gorm.DB, bookingID, serviceID uint) error {
	var count int64
	if err := tx.Model(&models.AddonRequest{}).
		Where("booking_id = ? AND service_id = ? AND status = ?", bookingID, serviceID, models.AddonPending).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errDuplicateActiveRequest(bookingID, serviceID)
	}
	return nil
}

// Approve transitions a pending request to approved and creates the
// booking's service line, atomically. The status flip is a compare-and-set
// on pending: a concurrent second approval gets AlreadyReviewed instead of
// doubling the line item.
func (e *AddonEngine) Approve(ctx context.Context, requestID uint, actor Actor) (*models.AddonRequest, error) {
	if !actor.IsAdmin() {
		return nil, errUnauthorized("approve an addon request")
	}

	db := e.db.WithContext(ctx)

	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AddonRequest{}).
			Where("id = ? AND status = ?", requestID, models.AddonPending).
			Updates(map[string]interface{}{
				"status":      models.AddonApproved,
				"reviewed_by": actor.UserID,
				"reviewed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyReviewed(requestID)
		}

		line := models.BookingServiceLine{
			BookingID: request.BookingID,
			ServiceID: request.ServiceID,
			Price:     request.RequestedPrice,
		}
		return tx.Create(&line).Error
	})
	if err != nil {
		return nil, wrapWorkflowErr(err)
	}

	request, err = e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	e.publishAddonChange(request.BookingID, requestID, EventAddonApproved)
	e.notifyBookingCustomer(ctx, request.BookingID, NotifyAddonApproved, requestID,
		"Your requested additional service was approved.")

	return request, nil
}

// Reject transitions a pending request to rejected with a reason. Uses the
// same compare-and-set guard as Approve.
func (e *AddonEngine) Reject(ctx context.Context, requestID uint, reason string, actor Actor) (*models.AddonRequest, error) {
	if !actor.IsAdmin() {
		return nil, errUnauthorized("reject an addon request")
	}

	if reason == "" {
		reason = DefaultRejectionReason
	}

	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := e.db.WithContext(ctx).Model(&models.AddonRequest{}).
		Where("id = ? AND status = ?", requestID, models.AddonPending).
		Updates(map[string]interface{}{
			"status":           models.AddonRejected,
			"rejection_reason": reason,
			"reviewed_by":      actor.UserID,
			"reviewed_at":      now,
		})
	if res.Error != nil {
		return nil, errOperationFailed(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errAlreadyReviewed(requestID)
	}

	request, err = e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	e.publishAddonChange(request.BookingID, requestID, EventAddonRejected)
	e.notifyBookingCustomer(ctx, request.BookingID, NotifyAddonRejected, requestID,
		"Your requested additional service was declined.")

	return request, nil
}

// RemoveServiceLine deletes a booking service line. Manual correction path:
// it does not reopen any addon request the line came from.
func (e *AddonEngine) RemoveServiceLine(ctx context.Context, lineID uint, actor Actor) error {
	if !actor.IsStaff() {
		return errUnauthorized("remove a service line")
	}

	db := e.db.WithContext(ctx)

	var line models.BookingServiceLine
	if err := db.First(&line, lineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNotFound("service line", lineID)
		}
		return errOperationFailed(err)
	}

	if err := db.Delete(&models.BookingServiceLine{}, lineID).Error; err != nil {
		return errOperationFailed(err)
	}

	topic := BookingTopic(line.BookingID)
	e.publish(topic, NewEvent(topic, EventServiceLineRemoved, line.BookingID, lineID))

	return nil
}

// PendingRequests returns pending requests oldest-first, so the admin queue
// drains FIFO and no request starves
func (e *AddonEngine) PendingRequests(ctx context.Context) ([]models.AddonRequest, error) {
	var requests []models.AddonRequest
	err := e.db.WithContext(ctx).
		Preload("Service").
		Preload("Requester").
		Where("status = ?", models.AddonPending).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, errOperationFailed(err)
	}
	return requests, nil
}

// BookingTotal returns the booking's total price, applying the legacy
// fallback when no service lines exist
func (e *AddonEngine) BookingTotal(ctx context.Context, bookingID uint) (float64, error) {
	var booking models.Booking
	err := e.db.WithContext(ctx).Preload("ServiceLines").First(&booking, bookingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errNotFound("booking", bookingID)
		}
		return 0, errOperationFailed(err)
	}
	return booking.TotalPrice(), nil
}

func (e *AddonEngine) loadRequest(ctx context.Context, requestID uint) (*models.AddonRequest, error) {
	var request models.AddonRequest
	if err := e.db.WithContext(ctx).First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("addon request", requestID)
		}
		return nil, errOperationFailed(err)
	}
	return &request, nil
}

// publishAddonChange publishes to the booking topic and the admin pending
// queue topic, so the admin banner count stays live without polling
func (e *AddonEngine) publishAddonChange(bookingID, requestID uint, eventType string) {
	topic := BookingTopic(bookingID)
	e.publish(topic, NewEvent(topic, eventType, bookingID, requestID))
	e.publish(TopicAdminPending, NewEvent(TopicAdminPending, eventType, bookingID, requestID))
}

func (e *AddonEngine) notifyCustomer(ctx context.Context, booking *models.Booking, kind string, entityID uint, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, NotificationIntent{
		Kind:        kind,
		RecipientID: booking.CustomerID,
		BookingID:   booking.ID,
		EntityID:    entityID,
		Message:     message,
	})
}

func (e *AddonEngine) notifyBookingCustomer(ctx context.Context, bookingID uint, kind string, entityID uint, message string) {
	var booking models.Booking
	if err := e.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		return
	}
	e.notifyCustomer(ctx, &booking, kind, entityID, message)
}

// wrapWorkflowErr preserves typed workflow errors surfaced from inside a
// transaction and wraps everything else as OperationFailed
func wrapWorkflowErr(err error) error {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}
	return errOperationFailed(err)
}

var addonEngineInstance *AddonEngine

// InitAddonEngine initializes the global addon engine instance
func InitAddonEngine(db *gorm.DB, broadcaster Broadcaster, notifier Notifier) *AddonEngine {
	addonEngineInstance = NewAddonEngine(db, broadcaster, notifier)
	return addonEngineInstance
}

// GetAddonEngine returns the initialized addon engine instance
func GetAddonEngine() *AddonEngine {
	return addonEngineInstance
}

// SetAddonEngine sets the addon engine instance (primarily for testing)
func SetAddonEngine(engine *AddonEngine) {
	addonEngineInstance = engine
}
