package models

import "time"

// TrainingBatch groups learners under one trainer for one competency level.
type TrainingBatch struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	TrainerID         string     `db:"trainer_id" json:"trainer_id"`
	CompetencyLevelID string     `db:"competency_level_id" json:"competency_level_id"`
	StartDate         *time.Time `db:"start_date" json:"start_date,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// TrainingBatchSession is one ordered session within a batch. The session
// number is unique per batch.
type TrainingBatchSession struct {
	ID            string     `db:"id" json:"id"`
	BatchID       string     `db:"batch_id" json:"batch_id"`
	SessionNumber int        `db:"session_number" json:"session_number"`
	Topic         string     `db:"topic" json:"topic"`
	ScheduledAt   *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// TrainingBatchLearner links a learner into a batch through their training
// request, which also routes homework submissions.
type TrainingBatchLearner struct {
	ID                string    `db:"id" json:"id"`
	BatchID           string    `db:"batch_id" json:"batch_id"`
	TrainingRequestID string    `db:"training_request_id" json:"training_request_id"`
	LearnerUserID     string    `db:"learner_user_id" json:"learner_user_id"`
	JoinedAt          time.Time `db:"joined_at" json:"joined_at"`
}

// HomeworkSession is the per-(batch, learner, session) homework record.
// Completed is exclusively trainer-controlled.
type HomeworkSession struct {
	ID            string     `db:"id" json:"id"`
	BatchID       string     `db:"batch_id" json:"batch_id"`
	LearnerUserID string     `db:"learner_user_id" json:"learner_user_id"`
	SessionID     string     `db:"session_id" json:"session_id"`
	URL           string     `db:"url" json:"url"`
	Completed     bool       `db:"completed" json:"completed"`
	SubmittedAt   time.Time  `db:"submitted_at" json:"submitted_at"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// AttendanceSession is the per-(batch, learner, session) attendance record,
// independent of homework.
type AttendanceSession struct {
	ID            string    `db:"id" json:"id"`
	BatchID       string    `db:"batch_id" json:"batch_id"`
	LearnerUserID string    `db:"learner_user_id" json:"learner_user_id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	Present       bool      `db:"present" json:"present"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TrainingBatchDetail bundles a batch with its sessions, learners and
// homework records.
type TrainingBatchDetail struct {
	TrainingBatch
	Sessions []TrainingBatchSession `json:"sessions"`
	Learners []TrainingBatchLearner `json:"learners"`
	Homework []HomeworkSession      `json:"homework"`
}

// BatchFilter constrains batch listings.
type BatchFilter struct {
	TrainerID         string
	CompetencyLevelID string
	TrainingRequestID string
	Page              int
	PageSize          int
}

// LevelBatchCount aggregates batches per competency level.
type LevelBatchCount struct {
	CompetencyLevelID string    `db:"competency_level_id" json:"competency_level_id"`
	CompetencyName    string    `db:"competency_name" json:"competency_name"`
	LevelName         LevelName `db:"level_name" json:"level_name"`
	BatchCount        int       `db:"batch_count" json:"batch_count"`
}
