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

// VSRHandler exposes the validation schedule request endpoints.
type VSRHandler struct {
	schedules *service.VSRService
}

// NewVSRHandler constructs VSRHandler.
func NewVSRHandler(schedules *service.VSRService) *VSRHandler {
	return &VSRHandler{schedules: schedules}
}

// List godoc
// @Summary List schedule requests
// @Tags ValidationSchedules
// @Produce json
// @Param learnerId query string false "Filter by learner"
// @Param levelId query string false "Filter by competency level"
// @Param status query int false "Filter by status code"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /validation-schedules [get]
func (h *VSRHandler) List(c *gin.Context) {
	var filter models.ValidationFilter
	filter.LearnerUserID = c.Query("learnerId")
	filter.CompetencyLevelID = c.Query("levelId")
	if status := c.Query("status"); status != "" {
		code := queryInt(c, "status", -1)
		filter.Status = &code
	}
	filter.Page, filter.PageSize = pageParams(c)

	schedules, pagination, err := h.schedules.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Get godoc
// @Summary Get schedule request detail
// @Tags ValidationSchedules
// @Produce json
// @Param id path string true "Schedule request ID"
// @Success 200 {object} response.Envelope
// @Router /validation-schedules/{id} [get]
func (h *VSRHandler) Get(c *gin.Context) {
	vsr, err := h.schedules.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vsr, nil)
}

// Schedule godoc
// @Summary Schedule the validation session
// @Tags ValidationSchedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule request ID"
// @Param payload body dto.ScheduleValidationRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /validation-schedules/{id}/schedule [post]
func (h *VSRHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vsr, err := h.schedules.Schedule(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vsr, nil)
}

// Outcome godoc
// @Summary Record the validation outcome
// @Tags ValidationSchedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule request ID"
// @Param payload body dto.ValidationOutcomeRequest true "Outcome payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /validation-schedules/{id}/outcome [post]
func (h *VSRHandler) Outcome(c *gin.Context) {
	var req dto.ValidationOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vsr, err := h.schedules.Outcome(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vsr, nil)
}

// Logs godoc
// @Summary Scheduling and outcome history
// @Tags ValidationSchedules
// @Produce json
// @Param id path string true "Schedule request ID"
// @Success 200 {object} response.Envelope
// @Router /validation-schedules/{id}/logs [get]
func (h *VSRHandler) Logs(c *gin.Context) {
	logs, err := h.schedules.Logs(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
