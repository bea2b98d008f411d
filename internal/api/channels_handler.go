package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// listChannels returns the channels of one template
// GET /api/v1/channels?template_id=...&active_only=true
func (r *Router) listChannels(c *gin.Context) {
	templateID, ok := parseQueryUUID(c, "template_id")
	if !ok {
		return
	}
	if templateID == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "template_id query parameter is required",
		})
		return
	}
	activeOnly := c.Query("active_only") == "true"

	channels, err := r.deps.Channels.ListByTemplate(c.Request.Context(), *templateID, activeOnly)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"count":    len(channels),
	})
}

// createChannel creates a new delivery channel
// POST /api/v1/channels
func (r *Router) createChannel(c *gin.Context) {
	var req domain.ChannelCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	channel, err := r.deps.Channels.Create(c.Request.Context(), &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, channel)
}

// getChannel retrieves a channel by ID
// GET /api/v1/channels/:id
func (r *Router) getChannel(c *gin.Context) {
	id, ok := parseUUID(c, "id", "channel")
	if !ok {
		return
	}

	channel, err := r.deps.Channels.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, channel)
}

// updateChannel applies a partial update to a channel
// PUT /api/v1/channels/:id
func (r *Router) updateChannel(c *gin.Context) {
	id, ok := parseUUID(c, "id", "channel")
	if !ok {
		return
	}

	var req domain.ChannelUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	channel, err := r.deps.Channels.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, channel)
}

// deleteChannel removes a channel
// DELETE /api/v1/channels/:id
func (r *Router) deleteChannel(c *gin.Context) {
	id, ok := parseUUID(c, "id", "channel")
	if !ok {
		return
	}

	if err := r.deps.Channels.Delete(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
