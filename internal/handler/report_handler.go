package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	"github.com/skilltrack/competency-api/internal/service"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
	"github.com/skilltrack/competency-api/pkg/response"
	"github.com/skilltrack/competency-api/pkg/storage"
)

// ReportHandler exposes waitlist reporting, the activity log and the
// async export pipeline.
type ReportHandler struct {
	reports *service.ReportService
	files   *storage.LocalStorage
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, files *storage.LocalStorage) *ReportHandler {
	return &ReportHandler{reports: reports, files: files}
}

// TrainingWaitlist godoc
// @Summary List training requests still waiting for a trainer or batch
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/training-waitlist [get]
func (h *ReportHandler) TrainingWaitlist(c *gin.Context) {
	rows, err := h.reports.TrainingWaitlist(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// AssignmentWaitlist godoc
// @Summary List open project assignment requests
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/assignment-waitlist [get]
func (h *ReportHandler) AssignmentWaitlist(c *gin.Context) {
	rows, err := h.reports.AssignmentWaitlist(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// OverdueSummary godoc
// @Summary Aggregate due-state counts across both waitlists
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/overdue-summary [get]
func (h *ReportHandler) OverdueSummary(c *gin.Context) {
	summary, err := h.reports.OverdueSummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ActivityLog godoc
// @Summary Browse the audit trail
// @Tags Reports
// @Produce json
// @Param userId query string false "Filter by acting user"
// @Param action query string false "Filter by action"
// @Param resource query string false "Filter by resource"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity-log [get]
func (h *ReportHandler) ActivityLog(c *gin.Context) {
	filter := models.AuditFilter{
		UserID:   c.Query("userId"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid from timestamp"))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid to timestamp"))
			return
		}
		filter.To = &to
	}
	filter.Page, filter.PageSize = pageParams(c)

	logs, pagination, err := h.reports.ActivityLog(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// QueueExport godoc
// @Summary Queue an async waitlist export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Router /reports/exports [post]
func (h *ReportHandler) QueueExport(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.QueueExport(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.ExportJobResponse{ID: job.ID, Status: string(job.Status)}, nil)
}

// ListExports godoc
// @Summary List the caller's export jobs
// @Tags Reports
// @Produce json
// @Param limit query int false "Max jobs returned"
// @Success 200 {object} response.Envelope
// @Router /reports/exports [get]
func (h *ReportHandler) ListExports(c *gin.Context) {
	jobsList, err := h.reports.ListJobs(c.Request.Context(), claimsFromContext(c), queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobsList, nil)
}

// ExportDownloadToken godoc
// @Summary Issue a short-lived download token for a finished export
// @Tags Reports
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/exports/{id}/download [get]
func (h *ReportHandler) ExportDownloadToken(c *gin.Context) {
	token, err := h.reports.Download(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// DownloadExport streams a stored export file. The token carries its own
// authorization, so this route sits outside the JWT middleware.
//
// DownloadExport godoc
// @Summary Stream an export file using a signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /reports/download [get]
func (h *ReportHandler) DownloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing download token"))
		return
	}
	relPath, err := h.reports.ResolveDownloadToken(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, http.StatusNotFound, "export file is no longer available"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(relPath) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)),
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, headers)
}
