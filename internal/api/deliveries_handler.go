package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// listDeliveries returns delivery logs, newest first
// GET /api/v1/deliveries?content_id=...&channel_id=...&status=...&limit=...
func (r *Router) listDeliveries(c *gin.Context) {
	filter := database.DeliveryFilter{}

	contentID, ok := parseQueryUUID(c, "content_id")
	if !ok {
		return
	}
	filter.ContentID = contentID

	channelID, ok := parseQueryUUID(c, "channel_id")
	if !ok {
		return
	}
	filter.ChannelID = channelID

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseDeliveryStatus(raw)
		if err != nil {
			respondDomainError(c, err)
			return
		}
		filter.Status = &status
	}

	limit, ok := parseLimit(c, defaultListLimit)
	if !ok {
		return
	}
	filter.Limit = limit

	deliveries, err := r.deps.Deliveries.List(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// getDelivery retrieves one delivery log
// GET /api/v1/deliveries/:id
func (r *Router) getDelivery(c *gin.Context) {
	id, ok := parseUUID(c, "id", "delivery")
	if !ok {
		return
	}

	delivery, err := r.deps.Deliveries.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// recordOpen increments the open counter of a sent, tracked delivery
// POST /api/v1/deliveries/:id/opens
func (r *Router) recordOpen(c *gin.Context) {
	id, ok := parseUUID(c, "id", "delivery")
	if !ok {
		return
	}

	if err := r.deps.Tracker.RecordOpen(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// recordClick increments the click counter of a sent, tracked delivery
// POST /api/v1/deliveries/:id/clicks
func (r *Router) recordClick(c *gin.Context) {
	id, ok := parseUUID(c, "id", "delivery")
	if !ok {
		return
	}

	if err := r.deps.Tracker.RecordClick(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
