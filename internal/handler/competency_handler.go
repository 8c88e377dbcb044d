package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	"github.com/skilltrack/competency-api/internal/service"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
	"github.com/skilltrack/competency-api/pkg/response"
)

// CompetencyHandler exposes the competency catalog endpoints.
type CompetencyHandler struct {
	competencies *service.CompetencyService
}

// NewCompetencyHandler constructs CompetencyHandler.
func NewCompetencyHandler(competencies *service.CompetencyService) *CompetencyHandler {
	return &CompetencyHandler{competencies: competencies}
}

// List godoc
// @Summary List competencies
// @Tags Competencies
// @Produce json
// @Param status query string false "Filter by status (draft, published)"
// @Param search query string false "Search by name"
// @Param includeDeleted query bool false "Include soft-deleted entries"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /competencies [get]
func (h *CompetencyHandler) List(c *gin.Context) {
	var filter models.CompetencyFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if status := c.Query("status"); status != "" {
		s := models.CompetencyStatus(status)
		filter.Status = &s
	}
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	competencies, pagination, err := h.competencies.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, competencies, pagination)
}

// Get godoc
// @Summary Get competency with levels and requirements
// @Tags Competencies
// @Produce json
// @Param id path string true "Competency ID"
// @Success 200 {object} response.Envelope
// @Router /competencies/{id} [get]
func (h *CompetencyHandler) Get(c *gin.Context) {
	detail, err := h.competencies.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create competency
// @Tags Competencies
// @Accept json
// @Produce json
// @Param payload body dto.CreateCompetencyRequest true "Competency payload"
// @Success 201 {object} response.Envelope
// @Router /competencies [post]
func (h *CompetencyHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateCompetencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.competencies.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update competency and level content
// @Tags Competencies
// @Accept json
// @Produce json
// @Param id path string true "Competency ID"
// @Param payload body dto.UpdateCompetencyRequest true "Competency payload"
// @Success 200 {object} response.Envelope
// @Router /competencies/{id} [put]
func (h *CompetencyHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateCompetencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.competencies.Update(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Soft-delete competency
// @Tags Competencies
// @Produce json
// @Param id path string true "Competency ID"
// @Success 204
// @Router /competencies/{id} [delete]
func (h *CompetencyHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.competencies.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddRequirement godoc
// @Summary Declare cross-competency prerequisite
// @Tags Competencies
// @Accept json
// @Produce json
// @Param id path string true "Competency ID"
// @Param payload body dto.AddRequirementRequest true "Requirement payload"
// @Success 201 {object} response.Envelope
// @Router /competencies/{id}/requirements [post]
func (h *CompetencyHandler) AddRequirement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddRequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	requirement, err := h.competencies.AddRequirement(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, requirement)
}

// RemoveRequirement godoc
// @Summary Remove cross-competency prerequisite
// @Tags Competencies
// @Produce json
// @Param id path string true "Competency ID"
// @Param requirementId path string true "Requirement ID"
// @Success 204
// @Router /competencies/{id}/requirements/{requirementId} [delete]
func (h *CompetencyHandler) RemoveRequirement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.competencies.RemoveRequirement(c.Request.Context(), c.Param("id"), c.Param("requirementId"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Applicability godoc
// @Summary Per-level applicability for the current learner
// @Tags Competencies
// @Produce json
// @Param id path string true "Competency ID"
// @Success 200 {object} response.Envelope
// @Router /competencies/{id}/applicability [get]
func (h *CompetencyHandler) Applicability(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	learnerID := claims.UserID
	if target := c.Query("learnerId"); target != "" && claims.Role != models.RoleLearner {
		learnerID = target
	}
	result, err := h.competencies.Applicability(c.Request.Context(), c.Param("id"), learnerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
