package controllers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
)

// StreamEvents handles GET /api/v1/events?topic=... - a server-sent event
// stream of workflow change notifications for the topic. Events are change
// signals, not deltas: clients re-fetch the affected entity on receipt.
func StreamEvents(c *gin.Context) {
	actor, user, ok := currentActor(c)
	if !ok {
		return
	}

	topic := c.Query("topic")
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "topic query parameter is required",
			},
		})
		return
	}

	if !topicAllowed(topic, actor, user) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You are not allowed to subscribe to this topic",
			},
		})
		return
	}

	broadcaster := services.GetBroadcaster()
	if broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "EVENTS_UNAVAILABLE",
				"message": "Event streaming is not available",
			},
		})
		return
	}

	events, cancel := broadcaster.Subscribe(topic)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// topicAllowed checks whether the actor may subscribe to a topic. Staff see
// everything except the admin pending queue; clients only their own
// bookings.
func topicAllowed(topic string, actor services.Actor, user *models.User) bool {
	switch {
	case topic == services.TopicAdminPending:
		return actor.IsAdmin()
	case topic == services.TopicQueueGlobal:
		return actor.IsStaff()
	case strings.HasPrefix(topic, "booking:"):
		if actor.IsStaff() {
			return true
		}

		bookingID, err := strconv.ParseUint(strings.TrimPrefix(topic, "booking:"), 10, 32)
		if err != nil {
			return false
		}

		var count int64
		if err := config.GetDB().Model(&models.Booking{}).
			Where("id = ? AND customer_id = ?", uint(bookingID), user.ID).
			Count(&count).Error; err != nil {
			return false
		}
		return count > 0
	default:
		return false
	}
}
