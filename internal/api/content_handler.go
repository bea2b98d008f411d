package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// listContent returns generated content, newest first
// GET /api/v1/content?template_id=...&status=...&limit=...
func (r *Router) listContent(c *gin.Context) {
	filter := database.ContentFilter{}

	templateID, ok := parseQueryUUID(c, "template_id")
	if !ok {
		return
	}
	filter.TemplateID = templateID

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseContentStatus(raw)
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

	content, err := r.deps.Content.List(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
		"count":   len(content),
	})
}

// getContent retrieves one content item
// GET /api/v1/content/:id
func (r *Router) getContent(c *gin.Context) {
	id, ok := parseUUID(c, "id", "content")
	if !ok {
		return
	}

	content, err := r.deps.Content.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, content)
}

type dispatchRequest struct {
	ChannelIDs []uuid.UUID `json:"channel_ids"`
}

// dispatchContent fans the content out to its channels
// POST /api/v1/content/:id/dispatch
func (r *Router) dispatchContent(c *gin.Context) {
	id, ok := parseUUID(c, "id", "content")
	if !ok {
		return
	}

	var req dispatchRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	summaries, err := r.deps.Engine.Dispatch(c.Request.Context(), id, req.ChannelIDs)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"content_id": id,
		"deliveries": summaries,
		"count":      len(summaries),
	})
}

type statusUpdateRequest struct {
	Status string `binding:"required" json:"status"`
}

// updateContentStatus transitions the content lifecycle status
// PUT /api/v1/content/:id/status
func (r *Router) updateContentStatus(c *gin.Context) {
	id, ok := parseUUID(c, "id", "content")
	if !ok {
		return
	}

	var req statusUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	to, err := domain.ParseContentStatus(req.Status)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	content, err := r.deps.Content.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := r.deps.Content.TransitionStatus(c.Request.Context(), id, content.Status, to); err != nil {
		respondDomainError(c, err)
		return
	}

	updated, err := r.deps.Content.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
