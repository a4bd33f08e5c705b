package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/services"
)

// SubmitAddonRequestBody represents the request body for submitting an addon
// request
type SubmitAddonRequestBody struct {
	ServiceID uint    `json:"service_id" binding:"required"`
	Price     float64 `json:"price" binding:"required,gt=0"`
}

// RejectAddonRequestBody represents the request body for rejecting an addon
// request
type RejectAddonRequestBody struct {
	Reason string `json:"reason"`
}

// SubmitAddon handles POST /api/v1/bookings/:id/addon-requests - staff
// submit for review, admin submissions are applied immediately
func SubmitAddon(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req SubmitAddonRequestBody
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

	request, err := services.GetAddonEngine().SubmitRequest(c.Request.Context(), bookingID, req.ServiceID, req.Price, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    request,
	})
}

// ListPendingAddons handles GET /api/v1/addon-requests/pending - the admin
// review queue, oldest first
func ListPendingAddons(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	if !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only admins can view the pending request queue",
			},
		})
		return
	}

	requests, err := services.GetAddonEngine().PendingRequests(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"requests": requests,
			"count":    len(requests),
		},
	})
}

// ApproveAddon handles POST /api/v1/addon-requests/:id/approve (admin only)
func ApproveAddon(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}

	request, err := services.GetAddonEngine().Approve(c.Request.Context(), requestID, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    request,
	})
}

// RejectAddon handles POST /api/v1/addon-requests/:id/reject (admin only)
func RejectAddon(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req RejectAddonRequestBody
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

	request, err := services.GetAddonEngine().Reject(c.Request.Context(), requestID, req.Reason, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    request,
	})
}

// RemoveServiceLine handles DELETE /api/v1/service-lines/:id - manual
// correction path for billable line items (staff/admin)
func RemoveServiceLine(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	lineID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := services.GetAddonEngine().RemoveServiceLine(c.Request.Context(), lineID, actor); err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Service line removed",
	})
}
