package dto

import "time"

// BatchSessionInput describes one session when creating a batch.
type BatchSessionInput struct {
	SessionNumber int        `json:"session_number" validate:"required,min=1"`
	Topic         string     `json:"topic" validate:"required"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
}

// CreateBatchRequest creates a batch with its ordered sessions.
type CreateBatchRequest struct {
	Name              string              `json:"name" validate:"required"`
	TrainerID         string              `json:"trainer_id" validate:"required"`
	CompetencyLevelID string              `json:"competency_level_id" validate:"required"`
	StartDate         *time.Time          `json:"start_date,omitempty"`
	Sessions          []BatchSessionInput `json:"sessions" validate:"required,min=1,dive"`
}

// AddBatchLearnerRequest attaches a learner through their training request.
type AddBatchLearnerRequest struct {
	TrainingRequestID string `json:"training_request_id" validate:"required"`
}

// SubmitHomeworkRequest is the learner's homework upsert payload.
type SubmitHomeworkRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	URL       string `json:"url" validate:"required,url"`
}

// ReviewHomeworkRequest is the trainer-side completion toggle.
type ReviewHomeworkRequest struct {
	LearnerUserID string `json:"learner_user_id" validate:"required"`
	SessionID     string `json:"session_id" validate:"required"`
	Completed     bool   `json:"completed"`
}

// RecordAttendanceRequest upserts an attendance mark.
type RecordAttendanceRequest struct {
	LearnerUserID string `json:"learner_user_id" validate:"required"`
	SessionID     string `json:"session_id" validate:"required"`
	Present       bool   `json:"present"`
}
