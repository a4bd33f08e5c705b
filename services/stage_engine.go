package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/models"
)

// StageEngine owns the ordered per-booking stage records and their
// lifecycle: not-started -> started -> completed. Completed is terminal;
// only the admin timestamp correction touches a completed stage.
type StageEngine struct {
	db          *gorm.DB
	broadcaster Broadcaster
	notifier    Notifier
}

// NewStageEngine creates a stage engine on the given database
func NewStageEngine(db *gorm.DB, broadcaster Broadcaster, notifier Notifier) *StageEngine {
	return &StageEngine{db: db, broadcaster: broadcaster, notifier: notifier}
}

func (e *StageEngine) publish(topic string, event Event) {
	if e.broadcaster != nil {
		e.broadcaster.Publish(topic, event)
	}
}

// InstantiateStages creates the booking's stage records from the process
// template matching its service category, falling back to the default
// template. Idempotent: if the booking already has stages they are returned
// unchanged.
func (e *StageEngine) InstantiateStages(ctx context.Context, bookingID uint, actor Actor) ([]models.Stage, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("instantiate stages")
	}

	db := e.db.WithContext(ctx)

	var booking models.Booking
	if err := db.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("booking", bookingID)
		}
		return nil, errOperationFailed(err)
	}

	// Re-running instantiation must not duplicate the pipeline
	var existing []models.Stage
	if err := db.Where("booking_id = ?", bookingID).Order("stage_order asc").Find(&existing).Error; err != nil {
		return nil, errOperationFailed(err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	template, err := e.resolveTemplate(ctx, booking.ServiceCategory)
	if err != nil {
		return nil, err
	}

	stages := make([]models.Stage, 0, len(template.Stages))
	for _, def := range template.Stages {
		stages = append(stages, models.Stage{
			BookingID:     bookingID,
			StageKey:      def.StageKey,
			Name:          def.Name,
			StageOrder:    def.StageOrder,
			RequiresPhoto: def.RequiresPhoto,
			EstimatedMins: def.EstimatedMins,
		})
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&stages).Error
	}); err != nil {
		return nil, errOperationFailed(err)
	}

	e.publish(BookingTopic(bookingID), NewEvent(BookingTopic(bookingID), EventStagesInstantiated, bookingID, 0))
	e.publish(TopicQueueGlobal, NewEvent(TopicQueueGlobal, EventStagesInstantiated, bookingID, 0))

	return stages, nil
}

// resolveTemplate finds the process template for a service category,
// falling back to the default template
func (e *StageEngine) resolveTemplate(ctx context.Context, category string) (*models.ProcessTemplate, error) {
	db := e.db.WithContext(ctx)

	var template models.ProcessTemplate
	err := db.Preload("Stages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("stage_order asc")
	}).Where("category = ?", category).First(&template).Error
	if err == nil {
		return &template, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errOperationFailed(err)
	}

	err = db.Preload("Stages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("stage_order asc")
	}).Where("category = ?", models.DefaultTemplateCategory).First(&template).Error
	if err == nil {
		return &template, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errTemplateMissing(category)
	}
	return nil, errOperationFailed(err)
}

// StartStage marks the stage as started. Idempotent: starting an
// already-started stage is a no-op returning the current state, so
// concurrent double-clicks neither corrupt state nor emit duplicate events.
func (e *StageEngine) StartStage(ctx context.Context, stageID uint, actor Actor) (*models.Stage, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("start a stage")
	}

	db := e.db.WithContext(ctx)

	stage, err := e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Completed {
		return nil, errStageAlreadyCompleted(stageID)
	}
	if stage.Started() {
		return stage, nil
	}

	now := time.Now()
	res := db.Model(&models.Stage{}).
		Where("id = ? AND started_at IS NULL AND completed = ?", stageID, false).
		Update("started_at", now)
	if res.Error != nil {
		return nil, errOperationFailed(res.Error)
	}

	stage, err = e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		// Lost a race: someone else started or completed it first.
		if stage.Completed {
			return nil, errStageAlreadyCompleted(stageID)
		}
		return stage, nil
	}

	// First stage work on a confirmed booking moves it into production
	if err := db.Model(&models.Booking{}).
		Where("id = ? AND status = ?", stage.BookingID, models.BookingConfirmed).
		Update("status", models.BookingInProgress).Error; err != nil {
		return nil, errOperationFailed(err)
	}

	topic := BookingTopic(stage.BookingID)
	e.publish(topic, NewEvent(topic, EventStageStarted, stage.BookingID, stageID))
	e.publish(TopicQueueGlobal, NewEvent(TopicQueueGlobal, EventStageStarted, stage.BookingID, stageID))

	return stage, nil
}

// CompleteStage marks a started stage as completed and stores the
// technician's notes. Stages whose template entry requires a photo cannot be
// completed until at least one image is attached. Idempotent on an
// already-completed stage.
func (e *StageEngine) CompleteStage(ctx context.Context, stageID uint, notes string, actor Actor) (*models.Stage, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("complete a stage")
	}

	db := e.db.WithContext(ctx)

	stage, err := e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Completed {
		return stage, nil
	}
	if !stage.Started() {
		return nil, errStageNotStarted(stageID)
	}

	if stage.RequiresPhoto {
		var imageCount int64
		if err := db.Model(&models.StageImage{}).Where("stage_id = ?", stageID).Count(&imageCount).Error; err != nil {
			return nil, errOperationFailed(err)
		}
		if imageCount == 0 {
			return nil, errPhotoRequired(stageID)
		}
	}

	now := time.Now()
	var raced bool
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Stage{}).
			Where("id = ? AND completed = ?", stageID, false).
			Updates(map[string]interface{}{
				"completed":    true,
				"completed_at": now,
				"notes":        notes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already completed by a concurrent caller; the booking
			// roll-forward below already happened there.
			raced = true
			return nil
		}

		// Completing the final stage finishes the booking
		var remaining int64
		if err := tx.Model(&models.Stage{}).
			Where("booking_id = ? AND completed = ?", stage.BookingID, false).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Model(&models.Booking{}).
				Where("id = ? AND status IN ?", stage.BookingID,
					[]string{models.BookingConfirmed, models.BookingInProgress}).
				Update("status", models.BookingCompleted).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errOperationFailed(err)
	}

	stage, err = e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if raced {
		return stage, nil
	}

	topic := BookingTopic(stage.BookingID)
	e.publish(topic, NewEvent(topic, EventStageCompleted, stage.BookingID, stageID))
	e.publish(TopicQueueGlobal, NewEvent(TopicQueueGlobal, EventStageCompleted, stage.BookingID, stageID))

	e.notifyCustomer(ctx, stage.BookingID, NotifyStageCompleted, stageID,
		fmt.Sprintf("Stage %q on your booking is complete.", stage.Name))

	return stage, nil
}

// AttachImage uploads a progress photo and appends it to the stage. Photos
// only attach during the stage's active window; admins are exempt so they
// can backfill corrections on closed stages.
func (e *StageEngine) AttachImage(ctx context.Context, stageID uint, fileHeader *multipart.FileHeader, actor Actor) (*models.StageImage, error) {
	if !actor.IsStaff() {
		return nil, errUnauthorized("attach a stage image")
	}

	stage, err := e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Completed && !actor.IsAdmin() {
		return nil, errStageAlreadyCompleted(stageID)
	}

	imageService := GetImageService()
	if imageService == nil {
		return nil, errOperationFailed(errors.New("image service not initialized"))
	}

	imageKey, err := imageService.UploadImage(fileHeader)
	if err != nil {
		return nil, err
	}

	image := models.StageImage{
		StageID:    stageID,
		ImageKey:   imageKey,
		UploadedBy: actor.UserID,
	}
	if err := e.db.WithContext(ctx).Create(&image).Error; err != nil {
		// Keep storage and records consistent: remove the orphaned upload
		if delErr := imageService.DeleteImage(imageKey); delErr != nil {
			return nil, errOperationFailed(fmt.Errorf("%v (cleanup failed: %v)", err, delErr))
		}
		return nil, errOperationFailed(err)
	}

	if url, urlErr := imageService.GetImageURL(imageKey); urlErr == nil {
		image.ImageURL = url
	}

	topic := BookingTopic(stage.BookingID)
	e.publish(topic, NewEvent(topic, EventStageImageAdded, stage.BookingID, stageID))

	return &image, nil
}

// AdjustStartedAt overwrites a stage's started_at timestamp. Admin-only
// correction path for technician entry errors; does not change the stage's
// state or re-validate photo and notes requirements.
func (e *StageEngine) AdjustStartedAt(ctx context.Context, stageID uint, newTimestamp time.Time, actor Actor) (*models.Stage, error) {
	if !actor.IsAdmin() {
		return nil, errUnauthorized("adjust stage timestamps")
	}

	stage, err := e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}

	if err := e.db.WithContext(ctx).Model(&models.Stage{}).
		Where("id = ?", stageID).
		Update("started_at", newTimestamp).Error; err != nil {
		return nil, errOperationFailed(err)
	}

	stage, err = e.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}

	topic := BookingTopic(stage.BookingID)
	e.publish(topic, NewEvent(topic, EventStageAdjusted, stage.BookingID, stageID))

	return stage, nil
}

// CurrentStage returns the booking's lowest-order incomplete stage, or nil
// if every stage is complete. The work queue projector reuses this so the
// two can never disagree about what "current" means.
func (e *StageEngine) CurrentStage(ctx context.Context, bookingID uint) (*models.Stage, error) {
	var stage models.Stage
	err := e.db.WithContext(ctx).
		Where("booking_id = ? AND completed = ?", bookingID, false).
		Order("stage_order asc").
		First(&stage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errOperationFailed(err)
	}
	return &stage, nil
}

// ListStages returns the booking's stages in pipeline order with images
// loaded
func (e *StageEngine) ListStages(ctx context.Context, bookingID uint) ([]models.Stage, error) {
	var stages []models.Stage
	err := e.db.WithContext(ctx).
		Preload("Images").
		Where("booking_id = ?", bookingID).
		Order("stage_order asc").
		Find(&stages).Error
	if err != nil {
		return nil, errOperationFailed(err)
	}
	return stages, nil
}

func (e *StageEngine) loadStage(ctx context.Context, stageID uint) (*models.Stage, error) {
	var stage models.Stage
	if err := e.db.WithContext(ctx).First(&stage, stageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("stage", stageID)
		}
		return nil, errOperationFailed(err)
	}
	return &stage, nil
}

// notifyCustomer emits a notification intent to the booking's customer.
// Failures are logged by the notifier itself; they never fail the mutation.
func (e *StageEngine) notifyCustomer(ctx context.Context, bookingID uint, kind string, entityID uint, message string) {
	if e.notifier == nil {
		return
	}

	var booking models.Booking
	if err := e.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		return
	}

	_ = e.notifier.Notify(ctx, NotificationIntent{
		Kind:        kind,
		RecipientID: booking.CustomerID,
		BookingID:   bookingID,
		EntityID:    entityID,
		Message:     message,
	})
}

var stageEngineInstance *StageEngine

// InitStageEngine initializes the global stage engine instance
func InitStageEngine(db *gorm.DB, broadcaster Broadcaster, notifier Notifier) *StageEngine {
	stageEngineInstance = NewStageEngine(db, broadcaster, notifier)
	return stageEngineInstance
}

// GetStageEngine returns the initialized stage engine instance
func GetStageEngine() *StageEngine {
	return stageEngineInstance
}

// SetStageEngine sets the stage engine instance (primarily for testing)
func SetStageEngine(engine *StageEngine) {
	stageEngineInstance = engine
}
