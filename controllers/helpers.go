package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/middleware"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
)

// currentActor resolves the authenticated user into a workflow Actor. It
// writes the error response and returns ok=false when the token is missing
// or no profile exists for the Auth0 identity.
func currentActor(c *gin.Context) (services.Actor, *models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return services.Actor{}, nil, false
	}

	db := config.GetDB()
	var user models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found. Please create a profile first.",
			},
		})
		return services.Actor{}, nil, false
	}

	return services.ActorFromUser(&user), &user, true
}

// idParam parses a numeric path parameter. Writes the error response and
// returns ok=false on a malformed value.
func idParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid " + name + " parameter",
			},
		})
		return 0, false
	}
	return uint(value), true
}

// workflowErrorStatus maps workflow error codes to HTTP status codes
func workflowErrorStatus(code string) int {
	switch code {
	case services.CodeUnauthorized:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeTemplateMissing:
		return http.StatusUnprocessableEntity
	case services.CodeStageNotStarted,
		services.CodeStageAlreadyCompleted,
		services.CodePhotoRequired,
		services.CodeDuplicateActiveRequest,
		services.CodeAlreadyReviewed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWorkflowError translates an engine error into the standard error
// envelope
func respondWorkflowError(c *gin.Context, err error) {
	code := services.ErrorCode(err)
	if code == "" {
		code = services.CodeOperationFailed
	}

	c.JSON(workflowErrorStatus(code), gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}
