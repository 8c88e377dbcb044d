package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	"github.com/skilltrack/competency-api/internal/service"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
	"github.com/skilltrack/competency-api/pkg/response"
)

// VPAHandler exposes the validation project approval endpoints.
type VPAHandler struct {
	approvals *service.VPAService
}

// NewVPAHandler constructs VPAHandler.
func NewVPAHandler(approvals *service.VPAService) *VPAHandler {
	return &VPAHandler{approvals: approvals}
}

// Submit godoc
// @Summary Submit or resubmit a validation project
// @Tags ValidationApprovals
// @Accept json
// @Produce json
// @Param payload body dto.SubmitProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /validation-approvals [post]
func (h *VPAHandler) Submit(c *gin.Context) {
	var req dto.SubmitProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vpa, err := h.approvals.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, vpa)
}

// List godoc
// @Summary List project approvals
// @Tags ValidationApprovals
// @Produce json
// @Param learnerId query string false "Filter by learner"
// @Param levelId query string false "Filter by competency level"
// @Param status query int false "Filter by status code"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /validation-approvals [get]
func (h *VPAHandler) List(c *gin.Context) {
	var filter models.ValidationFilter
	filter.LearnerUserID = c.Query("learnerId")
	filter.CompetencyLevelID = c.Query("levelId")
	if status := c.Query("status"); status != "" {
		code := queryInt(c, "status", -1)
		filter.Status = &code
	}
	filter.Page, filter.PageSize = pageParams(c)

	approvals, pagination, err := h.approvals.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, pagination)
}

// Get godoc
// @Summary Get project approval detail
// @Tags ValidationApprovals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Router /validation-approvals/{id} [get]
func (h *VPAHandler) Get(c *gin.Context) {
	vpa, err := h.approvals.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vpa, nil)
}

// Review godoc
// @Summary Review a submitted project
// @Tags ValidationApprovals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.ReviewProjectRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /validation-approvals/{id}/review [post]
func (h *VPAHandler) Review(c *gin.Context) {
	var req dto.ReviewProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vpa, err := h.approvals.Review(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vpa, nil)
}

// Logs godoc
// @Summary Submission and review history
// @Tags ValidationApprovals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Router /validation-approvals/{id}/logs [get]
func (h *VPAHandler) Logs(c *gin.Context) {
	logs, err := h.approvals.Logs(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
