package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qtbui/notification-dispatch/internal/api/dto"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

// CreateTemplate handles POST /api/v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	channel := domain.Channel(req.Channel)
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "channel must be email or sms",
		})
		return
	}

	now := time.Now()
	tpl := &domain.Template{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Subject:       req.Subject,
		Body:          req.Body,
		Channel:       channel,
		CreatedByType: domain.CreatedByUser,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.templates.Create(c.Request.Context(), tpl); err != nil {
		if errors.Is(err, domain.ErrTemplateExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Template name already exists",
			})
			return
		}
		h.logger.Error("Failed to create template", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create template",
		})
		return
	}

	c.JSON(http.StatusCreated, toTemplateDTO(tpl))
}

// GetTemplate handles GET /api/v1/templates/:template_id
// The path segment is a template id, or a template name when it does not
// parse as a UUID.
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	key := c.Param("template_id")

	var tpl *domain.Template
	var err error
	if _, parseErr := uuid.Parse(key); parseErr == nil {
		tpl, err = h.templates.GetByID(c.Request.Context(), key)
	} else {
		tpl, err = h.templates.FindByName(c.Request.Context(), key)
		if err == nil && tpl == nil {
			err = domain.ErrTemplateNotFound
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Template not found",
			})
			return
		}
		h.logger.Error("Failed to get template", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get template",
		})
		return
	}

	c.JSON(http.StatusOK, toTemplateDTO(tpl))
}

// ListTemplates handles GET /api/v1/templates
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	var req dto.ListTemplatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	templates, err := h.templates.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list templates", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list templates",
		})
		return
	}

	response := make([]dto.TemplateDTO, len(templates))
	for i := range templates {
		response[i] = toTemplateDTO(&templates[i])
	}

	c.JSON(http.StatusOK, dto.ListTemplatesResponse{
		Templates: response,
	})
}

// UpdateTemplate handles PUT /api/v1/templates/:template_id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id := c.Param("template_id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "template_id must be a valid UUID",
		})
		return
	}

	var req dto.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	channel := domain.Channel(req.Channel)
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "channel must be email or sms",
		})
		return
	}

	tpl := &domain.Template{
		ID:        id,
		Subject:   req.Subject,
		Body:      req.Body,
		Channel:   channel,
		UpdatedBy: req.UpdatedBy,
		UpdatedAt: time.Now(),
	}

	if err := h.templates.Update(c.Request.Context(), tpl); err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Template not found",
			})
			return
		}
		h.logger.Error("Failed to update template", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update template",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"template_id": id,
		"status":      "updated",
	})
}

// DeleteTemplate handles DELETE /api/v1/templates/:template_id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id := c.Param("template_id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "template_id must be a valid UUID",
		})
		return
	}

	if err := h.templates.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Template not found",
			})
			return
		}
		h.logger.Error("Failed to delete template", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete template",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

func toTemplateDTO(tpl *domain.Template) dto.TemplateDTO {
	return dto.TemplateDTO{
		TemplateID:    tpl.ID,
		Name:          tpl.Name,
		Subject:       tpl.Subject,
		Body:          tpl.Body,
		Channel:       string(tpl.Channel),
		CreatedByType: tpl.CreatedByType,
		CreatedBy:     tpl.CreatedBy,
		UpdatedBy:     tpl.UpdatedBy,
		CreatedAt:     tpl.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     tpl.UpdatedAt.Format(time.RFC3339),
	}
}
