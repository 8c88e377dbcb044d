package models

import "time"

// ReportFormat selects the export rendering.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportType selects the dataset behind an export.
type ReportType string

const (
	ReportTypeTrainingWaitlist   ReportType = "training_waitlist"
	ReportTypeAssignmentWaitlist ReportType = "assignment_waitlist"
)

// ReportStatus tracks the export job lifecycle.
type ReportStatus string

const (
	ReportStatusQueued    ReportStatus = "QUEUED"
	ReportStatusRunning   ReportStatus = "RUNNING"
	ReportStatusCompleted ReportStatus = "COMPLETED"
	ReportStatusFailed    ReportStatus = "FAILED"
)

// ReportJob is a persisted asynchronous export of a waitlist dataset.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	Type         ReportType   `db:"type" json:"type"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	FilePath     *string      `db:"file_path" json:"-"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}

// OverdueSummary aggregates pending workflow rows by due classification.
type OverdueSummary struct {
	TrainingPending   int       `json:"training_pending"`
	TrainingOverdue   int       `json:"training_overdue"`
	TrainingDueIn3d   int       `json:"training_due_in_3d"`
	AssignmentPending int       `json:"assignment_pending"`
	AssignmentOverdue int       `json:"assignment_overdue"`
	GeneratedAt       time.Time `json:"generated_at"`
}
