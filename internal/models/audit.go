package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"

	AuditActionCompetencyCreate = "COMPETENCY_CREATE"
	AuditActionCompetencyUpdate = "COMPETENCY_UPDATE"
	AuditActionCompetencyDelete = "COMPETENCY_DELETE"

	AuditActionTrainingRequestCreate = "TRAINING_REQUEST_CREATE"
	AuditActionTrainingRequestUpdate = "TRAINING_REQUEST_UPDATE"

	AuditActionProjectSubmit   = "PROJECT_SUBMIT"
	AuditActionProjectReview   = "PROJECT_REVIEW"
	AuditActionScheduleSet     = "VALIDATION_SCHEDULE_SET"
	AuditActionScheduleOutcome = "VALIDATION_OUTCOME"

	AuditActionAssignmentCreate = "PROJECT_ASSIGNMENT_CREATE"
	AuditActionAssignmentUpdate = "PROJECT_ASSIGNMENT_UPDATE"

	AuditActionBatchCreate      = "BATCH_CREATE"
	AuditActionBatchAddLearner  = "BATCH_ADD_LEARNER"
	AuditActionHomeworkSubmit   = "HOMEWORK_SUBMIT"
	AuditActionHomeworkReview   = "HOMEWORK_REVIEW"
	AuditActionAttendanceRecord = "ATTENDANCE_RECORD"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter constrains activity log listings.
type AuditFilter struct {
	UserID   string
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
