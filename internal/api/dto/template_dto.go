package dto

type CreateTemplateRequest struct {
	Name      string `json:"name" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body" binding:"required"`
	Channel   string `json:"channel" binding:"required"`
	CreatedBy string `json:"created_by"`
}

type UpdateTemplateRequest struct {
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body" binding:"required"`
	Channel   string `json:"channel" binding:"required"`
	UpdatedBy string `json:"updated_by"`
}

type TemplateDTO struct {
	TemplateID    string `json:"template_id"`
	Name          string `json:"name"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	Channel       string `json:"channel"`
	CreatedByType string `json:"created_by_type"`
	CreatedBy     string `json:"created_by"`
	UpdatedBy     string `json:"updated_by,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ListTemplatesRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type ListTemplatesResponse struct {
	Templates []TemplateDTO `json:"templates"`
}
