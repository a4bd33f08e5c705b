package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
)

// CompleteStageRequest represents the request body for completing a stage
type CompleteStageRequest struct {
	Notes string `json:"notes"`
}

// AdjustStartedAtRequest represents the request body for the admin
// started_at correction
type AdjustStartedAtRequest struct {
	StartedAt time.Time `json:"started_at" binding:"required"`
}

// InstantiateStages handles POST /api/v1/bookings/:id/stages - creates the
// booking's stage pipeline from its process template (staff/admin only)
func InstantiateStages(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	stages, err := services.GetStageEngine().InstantiateStages(c.Request.Context(), bookingID, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    stages,
	})
}

// ListStages handles GET /api/v1/bookings/:id/stages - returns the booking's
// stages in pipeline order, with presigned image URLs and the current stage
func ListStages(c *gin.Context) {
	actor, user, ok := currentActor(c)
	if !ok {
		return
	}

	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	// Clients may only track their own bookings
	if !actor.IsStaff() {
		var count int64
		if err := config.GetDB().Model(&models.Booking{}).
			Where("id = ? AND customer_id = ?", bookingID, user.ID).
			Count(&count).Error; err != nil || count == 0 {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "You can only view your own bookings",
				},
			})
			return
		}
	}

	stages, err := services.GetStageEngine().ListStages(c.Request.Context(), bookingID)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	// Resolve presigned URLs for attached photos
	if imageService := services.GetImageService(); imageService != nil {
		for i := range stages {
			for j := range stages[i].Images {
				if url, err := imageService.GetImageURL(stages[i].Images[j].ImageKey); err == nil {
					stages[i].Images[j].ImageURL = url
				}
			}
		}
	}

	current, err := services.GetStageEngine().CurrentStage(c.Request.Context(), bookingID)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	var currentID *uint
	if current != nil {
		currentID = &current.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"stages":           stages,
			"current_stage_id": currentID,
		},
	})
}

// StartStage handles POST /api/v1/stages/:id/start (staff/admin only)
func StartStage(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	stageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	stage, err := services.GetStageEngine().StartStage(c.Request.Context(), stageID, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stage,
	})
}

// CompleteStage handles POST /api/v1/stages/:id/complete (staff/admin only)
func CompleteStage(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	stageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req CompleteStageRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	stage, err := services.GetStageEngine().CompleteStage(c.Request.Context(), stageID, req.Notes, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stage,
	})
}

// AttachStageImage handles POST /api/v1/stages/:id/images - uploads a
// progress photo for the stage (staff/admin only)
func AttachStageImage(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	stageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Image file is required",
			},
		})
		return
	}

	image, err := services.GetStageEngine().AttachImage(c.Request.Context(), stageID, fileHeader, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    image,
	})
}

// AdjustStartedAt handles PATCH /api/v1/stages/:id/started-at - admin-only
// timestamp correction
func AdjustStartedAt(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	stageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req AdjustStartedAtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	stage, err := services.GetStageEngine().AdjustStartedAt(c.Request.Context(), stageID, req.StartedAt, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stage,
	})
}
