package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qtbui/notification-dispatch/internal/api/dto"
	"github.com/qtbui/notification-dispatch/internal/queue"
)

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	job, err := h.dispatcher.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// RemoveJob handles DELETE /api/v1/jobs/:job_id
// Cancels a not-yet-active job; removing an unknown id succeeds
func (h *JobHandler) RemoveJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	if err := h.dispatcher.RemoveJob(c.Request.Context(), jobID); err != nil {
		h.logger.Error("Failed to remove job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to remove job",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveJobs handles POST /api/v1/jobs/remove
func (h *JobHandler) RemoveJobs(c *gin.Context) {
	var req dto.RemoveJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.dispatcher.RemoveJobsBulk(c.Request.Context(), req.JobIDs); err != nil {
		h.logger.Error("Failed to remove jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to remove jobs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed": len(req.JobIDs),
	})
}

// ChangeJobDelay handles POST /api/v1/jobs/:job_id/delay
// Re-schedules a waiting job relative to now
func (h *JobHandler) ChangeJobDelay(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	var req dto.ChangeJobDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	delay := time.Duration(req.DelaySeconds) * time.Second
	if err := h.dispatcher.ChangeJobDelay(c.Request.Context(), jobID, delay); err != nil {
		h.logger.Error("Failed to change job delay", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to change job delay",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"delay":  delay.String(),
	})
}

func toJobDTO(job *queue.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:        job.ID,
		Queue:        job.Queue,
		Name:         job.Name,
		State:        job.State(time.Now()),
		Priority:     job.Priority,
		AttemptsMade: job.AttemptsMade,
		ScheduledAt:  job.ScheduledAt.Format(time.RFC3339),
		LastError:    job.LastError,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}
