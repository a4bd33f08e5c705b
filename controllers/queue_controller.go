package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/services"
)

// AssignStageRequest represents the request body for assigning a work queue
// item. A null staff_id unassigns.
type AssignStageRequest struct {
	StaffID *uint `json:"staff_id"`
}

// GetWorkQueue handles GET /api/v1/work-queue?view=all|unassigned|mine -
// the prioritized technician task list (staff/admin only)
func GetWorkQueue(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	if !actor.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can view the work queue",
			},
		})
		return
	}

	queue := services.GetWorkQueue()

	items, err := queue.Recompute(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	view := c.DefaultQuery("view", services.QueueViewAll)
	items = queue.Filter(items, view, actor)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"items": items,
			"view":  view,
			"count": len(items),
		},
	})
}

// AssignStage handles PUT /api/v1/stages/:id/assign - sets or clears the
// stage's assignee. Last write wins under concurrent assignment.
func AssignStage(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	stageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req AssignStageRequest
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

	stage, err := services.GetWorkQueue().Assign(c.Request.Context(), stageID, req.StaffID, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stage,
	})
}
