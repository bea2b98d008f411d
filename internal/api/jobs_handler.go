package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// listJobs returns generation jobs, newest first
// GET /api/v1/jobs?template_id=...&status=...&triggered_by=...&limit=...
func (r *Router) listJobs(c *gin.Context) {
	filter := database.JobFilter{}

	templateID, ok := parseQueryUUID(c, "template_id")
	if !ok {
		return
	}
	filter.TemplateID = templateID

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseJobStatus(raw)
		if err != nil {
			respondDomainError(c, err)
			return
		}
		filter.Status = &status
	}

	if raw := c.Query("triggered_by"); raw != "" {
		trigger, err := domain.ParseTriggerSource(raw)
		if err != nil {
			respondDomainError(c, err)
			return
		}
		filter.TriggeredBy = &trigger
	}

	limit, ok := parseLimit(c, defaultListLimit)
	if !ok {
		return
	}
	filter.Limit = limit

	jobs, err := r.deps.Jobs.List(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// getJob retrieves one generation job
// GET /api/v1/jobs/:id
func (r *Router) getJob(c *gin.Context) {
	id, ok := parseUUID(c, "id", "job")
	if !ok {
		return
	}

	job, err := r.deps.Jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// cancelJob requests cancellation of a pending or running job. Pending jobs
// fail immediately; running jobs are cancelled cooperatively at the next
// checkpoint.
// POST /api/v1/jobs/:id/cancel
func (r *Router) cancelJob(c *gin.Context) {
	id, ok := parseUUID(c, "id", "job")
	if !ok {
		return
	}

	if err := r.deps.Jobs.RequestCancel(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}

	job, err := r.deps.Jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}
