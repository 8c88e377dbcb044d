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

// BatchHandler exposes training batch endpoints, including homework
// and attendance tracking.
type BatchHandler struct {
	batches *service.BatchService
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches *service.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// Create godoc
// @Summary Create a training batch with its session plan
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.batches.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List training batches
// @Tags Batches
// @Produce json
// @Param trainerId query string false "Filter by trainer"
// @Param levelId query string false "Filter by competency level"
// @Param trainingRequestId query string false "Batches whose roster contains this request"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{
		TrainerID:         c.Query("trainerId"),
		CompetencyLevelID: c.Query("levelId"),
		TrainingRequestID: c.Query("trainingRequestId"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	rows, pagination, err := h.batches.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get batch detail with sessions and roster
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	detail, err := h.batches.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AddLearner godoc
// @Summary Enroll a training request into a batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.AddBatchLearnerRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id}/learners [post]
func (h *BatchHandler) AddLearner(c *gin.Context) {
	var req dto.AddBatchLearnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	learner, err := h.batches.AddLearner(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, learner)
}

// SubmitHomework godoc
// @Summary Submit or resubmit homework for a session
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.SubmitHomeworkRequest true "Homework payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id}/homework [post]
func (h *BatchHandler) SubmitHomework(c *gin.Context) {
	var req dto.SubmitHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.batches.SubmitHomework(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ReviewHomework godoc
// @Summary Mark homework as reviewed by the batch trainer
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.ReviewHomeworkRequest true "Review payload"
// @Success 204 "No Content"
// @Failure 403 {object} response.Envelope
// @Router /batches/{id}/homework/review [post]
func (h *BatchHandler) ReviewHomework(c *gin.Context) {
	var req dto.ReviewHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.batches.ReviewHomework(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecordAttendance godoc
// @Summary Record attendance for a batch session
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.RecordAttendanceRequest true "Attendance payload"
// @Success 204 "No Content"
// @Router /batches/{id}/attendance [post]
func (h *BatchHandler) RecordAttendance(c *gin.Context) {
	var req dto.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.batches.RecordAttendance(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CountByCompetencyLevel godoc
// @Summary Count batches grouped by competency level
// @Tags Batches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batches/count-by-competency-level [get]
func (h *BatchHandler) CountByCompetencyLevel(c *gin.Context) {
	counts, fromCache, err := h.batches.CountByCompetencyLevel(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil, map[string]interface{}{"from_cache": fromCache})
}
