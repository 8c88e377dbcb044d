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

// TrainingRequestHandler exposes the training request workflow endpoints.
type TrainingRequestHandler struct {
	requests *service.TrainingRequestService
}

// NewTrainingRequestHandler constructs TrainingRequestHandler.
func NewTrainingRequestHandler(requests *service.TrainingRequestService) *TrainingRequestHandler {
	return &TrainingRequestHandler{requests: requests}
}

// Create godoc
// @Summary Apply for a competency level
// @Tags TrainingRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateTrainingRequestRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /training-requests [post]
func (h *TrainingRequestHandler) Create(c *gin.Context) {
	var req dto.CreateTrainingRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.requests.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List training requests with due classification
// @Tags TrainingRequests
// @Produce json
// @Param learnerId query string false "Filter by learner"
// @Param levelId query string false "Filter by competency level"
// @Param assignedTo query string false "Filter by assignee"
// @Param status query int false "Filter by status code"
// @Param pending query bool false "Only unanswered, active requests"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /training-requests [get]
func (h *TrainingRequestHandler) List(c *gin.Context) {
	var filter models.TrainingRequestFilter
	filter.LearnerUserID = c.Query("learnerId")
	filter.CompetencyLevelID = c.Query("levelId")
	filter.AssignedTo = c.Query("assignedTo")
	if status := c.Query("status"); status != "" {
		code := models.TrainingRequestStatus(queryInt(c, "status", -1))
		if code.Valid() {
			filter.Status = &code
		}
	}
	filter.PendingOnly = c.Query("pending") == "true"
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	rows, pagination, err := h.requests.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get training request detail
// @Tags TrainingRequests
// @Produce json
// @Param id path string true "Training request ID"
// @Success 200 {object} response.Envelope
// @Router /training-requests/{id} [get]
func (h *TrainingRequestHandler) Get(c *gin.Context) {
	row, err := h.requests.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Update godoc
// @Summary Move a training request through its state machine
// @Tags TrainingRequests
// @Accept json
// @Produce json
// @Param id path string true "Training request ID"
// @Param payload body dto.UpdateTrainingRequestRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /training-requests/{id} [put]
func (h *TrainingRequestHandler) Update(c *gin.Context) {
	var req dto.UpdateTrainingRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	row, err := h.requests.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}
