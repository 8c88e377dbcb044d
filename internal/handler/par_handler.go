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

// PARHandler exposes the project assignment request endpoints.
type PARHandler struct {
	assignments *service.PARService
}

// NewPARHandler constructs PARHandler.
func NewPARHandler(assignments *service.PARService) *PARHandler {
	return &PARHandler{assignments: assignments}
}

// Create godoc
// @Summary Open a project assignment negotiation
// @Tags ProjectAssignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /project-assignments [post]
func (h *PARHandler) Create(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	row, err := h.assignments.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// List godoc
// @Summary List assignment requests with due classification
// @Tags ProjectAssignments
// @Produce json
// @Param learnerId query string false "Filter by learner"
// @Param assignedTo query string false "Filter by assignee"
// @Param status query int false "Filter by status code"
// @Param pending query bool false "Only open requests"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /project-assignments [get]
func (h *PARHandler) List(c *gin.Context) {
	var filter models.PARFilter
	filter.LearnerUserID = c.Query("learnerId")
	filter.AssignedTo = c.Query("assignedTo")
	if status := c.Query("status"); status != "" {
		code := models.PARStatus(queryInt(c, "status", -1))
		if code.Valid() {
			filter.Status = &code
		}
	}
	filter.PendingOnly = c.Query("pending") == "true"
	filter.Page, filter.PageSize = pageParams(c)

	rows, pagination, err := h.assignments.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get assignment request detail
// @Tags ProjectAssignments
// @Produce json
// @Param id path string true "Assignment request ID"
// @Success 200 {object} response.Envelope
// @Router /project-assignments/{id} [get]
func (h *PARHandler) Get(c *gin.Context) {
	row, err := h.assignments.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Update godoc
// @Summary Update an assignment request
// @Tags ProjectAssignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment request ID"
// @Param payload body dto.UpdateAssignmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /project-assignments/{id} [put]
func (h *PARHandler) Update(c *gin.Context) {
	var req dto.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	row, err := h.assignments.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}
