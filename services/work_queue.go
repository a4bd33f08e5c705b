package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/models"
)

// Work queue filter views
const (
	QueueViewAll        = "all"
	QueueViewUnassigned = "unassigned"
	QueueViewMine       = "mine"
)

// WorkQueueItem is the derived, non-persisted view of a booking's current
// actionable stage, enriched with booking, vehicle and customer summaries.
// Recomputed on every read, never stored.
type WorkQueueItem struct {
	StageID             uint       `json:"stage_id"`
	BookingID           uint       `json:"booking_id"`
	StageKey            string     `json:"stage_key"`
	StageName           string     `json:"stage_name"`
	StageOrder          int        `json:"stage_order"`
	RequiresPhoto       bool       `json:"requires_photo"`
	StartedAt           *time.Time `json:"started_at"`
	AssignedTo          *uint      `json:"assigned_to"`
	BookingStatus       string     `json:"booking_status"`
	Priority            string     `json:"priority"`
	CustomerName        string     `json:"customer_name"`
	VehicleLabel        string     `json:"vehicle_label"`
	ServiceTitle        string     `json:"service_title"`
	EstimatedCompletion *time.Time `json:"estimated_completion"`
}

// priorityRank orders urgent before high before normal. Unknown priorities
// sort last.
func priorityRank(priority string) int {
	switch priority {
	case models.PriorityUrgent:
		return 0
	case models.PriorityHigh:
		return 1
	case models.PriorityNormal:
		return 2
	default:
		return 3
	}
}

// WorkQueue projects all active bookings' stage state into a single
// prioritized technician task list
type WorkQueue struct {
	db          *gorm.DB
	stageEngine *StageEngine
	broadcaster Broadcaster
}

// NewWorkQueue creates a work queue projector. It reuses the stage engine's
// CurrentStage so the queue and the tracking views can never disagree about
// which stage is current.
func NewWorkQueue(db *gorm.DB, stageEngine *StageEngine, broadcaster Broadcaster) *WorkQueue {
	return &WorkQueue{db: db, stageEngine: stageEngine, broadcaster: broadcaster}
}

// Recompute derives one WorkQueueItem per active booking that still has an
// incomplete stage. Sorted by priority tier (urgent first), then by
// stage_order ascending so earlier pipeline steps surface first. The
// ordering is presentational only; it never gates which stage may be worked.
func (q *WorkQueue) Recompute(ctx context.Context) ([]WorkQueueItem, error) {
	var bookings []models.Booking
	err := q.db.WithContext(ctx).
		Preload("Customer").
		Preload("Vehicle").
		Preload("Service").
		Where("status IN ?", []string{models.BookingConfirmed, models.BookingInProgress}).
		Find(&bookings).Error
	if err != nil {
		return nil, errOperationFailed(err)
	}

	items := make([]WorkQueueItem, 0, len(bookings))
	for i := range bookings {
		booking := &bookings[i]

		stage, err := q.stageEngine.CurrentStage(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if stage == nil {
			// Fully staged out; nothing actionable
			continue
		}

		items = append(items, WorkQueueItem{
			StageID:             stage.ID,
			BookingID:           booking.ID,
			StageKey:            stage.StageKey,
			StageName:           stage.Name,
			StageOrder:          stage.StageOrder,
			RequiresPhoto:       stage.RequiresPhoto,
			StartedAt:           stage.StartedAt,
			AssignedTo:          stage.AssignedTo,
			BookingStatus:       booking.Status,
			Priority:            booking.Priority,
			CustomerName:        booking.Customer.Name,
			VehicleLabel:        booking.Vehicle.Label(),
			ServiceTitle:        booking.Service.Title,
			EstimatedCompletion: booking.EstimatedCompletion,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := priorityRank(items[i].Priority), priorityRank(items[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return items[i].StageOrder < items[j].StageOrder
	})

	return items, nil
}

// Assign sets or clears assigned_to on the underlying stage. No exclusivity:
// concurrent assignment is last-write-wins because assignment is advisory,
// not financial.
func (q *WorkQueue) Assign(ctx context.Context, stageID uint, staffID *uint, actor Actor) (*models.Stage, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("assign work queue items")
	}

	db := q.db.WithContext(ctx)

	var stage models.Stage
	if err := db.First(&stage, stageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("stage", stageID)
		}
		return nil, errOperationFailed(err)
	}

	if staffID != nil {
		var assignee models.User
		if err := db.First(&assignee, *staffID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errNotFound("user", *staffID)
			}
			return nil, errOperationFailed(err)
		}
		if assignee.Role != models.RoleStaff && assignee.Role != models.RoleAdmin {
			return nil, errUnauthorized("assign work to a non-staff user")
		}
	}

	if err := db.Model(&models.Stage{}).
		Where("id = ?", stageID).
		Update("assigned_to", staffID).Error; err != nil {
		return nil, errOperationFailed(err)
	}

	if err := db.First(&stage, stageID).Error; err != nil {
		return nil, errOperationFailed(err)
	}

	if q.broadcaster != nil {
		topic := BookingTopic(stage.BookingID)
		q.broadcaster.Publish(topic, NewEvent(topic, EventStageAssigned, stage.BookingID, stageID))
		q.broadcaster.Publish(TopicQueueGlobal, NewEvent(TopicQueueGlobal, EventStageAssigned, stage.BookingID, stageID))
	}

	return &stage, nil
}

// Filter applies a read-side view to recomputed queue items. Never mutates
// state.
func (q *WorkQueue) Filter(items []WorkQueueItem, view string, actor Actor) []WorkQueueItem {
	switch view {
	case QueueViewUnassigned:
		filtered := make([]WorkQueueItem, 0, len(items))
		for _, item := range items {
			if item.AssignedTo == nil {
				filtered = append(filtered, item)
			}
		}
		return filtered
	case QueueViewMine:
		filtered := make([]WorkQueueItem, 0, len(items))
		for _, item := range items {
			if item.AssignedTo != nil && *item.AssignedTo == actor.UserID {
				filtered = append(filtered, item)
			}
		}
		return filtered
	default:
		return items
	}
}

var workQueueInstance *WorkQueue

// InitWorkQueue initializes the global work queue instance
func InitWorkQueue(db *gorm.DB, stageEngine *StageEngine, broadcaster Broadcaster) *WorkQueue {
	workQueueInstance = NewWorkQueue(db, stageEngine, broadcaster)
	return workQueueInstance
}

// GetWorkQueue returns the initialized work queue instance
func GetWorkQueue() *WorkQueue {
	return workQueueInstance
}

// SetWorkQueue sets the work queue instance (primarily for testing)
func SetWorkQueue(queue *WorkQueue) {
	workQueueInstance = queue
}
