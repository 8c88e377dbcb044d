package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

// BatchRepository handles persistence of training batches, sessions,
// rosters, homework and attendance.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create persists a batch together with its sessions in one transaction.
func (r *BatchRepository) Create(ctx context.Context, batch *models.TrainingBatch, sessions []models.TrainingBatchSession) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertBatch = `INSERT INTO training_batches (id, name, trainer_id, competency_level_id, start_date, created_at, updated_at)
        VALUES (:id, :name, :trainer_id, :competency_level_id, :start_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertBatch, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	const insertSession = `INSERT INTO training_batch_sessions (id, batch_id, session_number, topic, scheduled_at, created_at)
        VALUES (:id, :batch_id, :session_number, :topic, :scheduled_at, :created_at)`
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
		sessions[i].BatchID = batch.ID
		sessions[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertSession, sessions[i]); err != nil {
			return fmt.Errorf("create batch session %d: %w", sessions[i].SessionNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create batch: %w", err)
	}
	return nil
}

// FindByID returns a batch.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.TrainingBatch, error) {
	const query = `SELECT id, name, trainer_id, competency_level_id, start_date, created_at, updated_at
        FROM training_batches WHERE id = $1`
	var batch models.TrainingBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindDetailByID returns a batch with its sessions, roster and homework.
func (r *BatchRepository) FindDetailByID(ctx context.Context, id string) (*models.TrainingBatchDetail, error) {
	batch, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var sessions []models.TrainingBatchSession
	const sessionQuery = `SELECT id, batch_id, session_number, topic, scheduled_at, created_at
        FROM training_batch_sessions WHERE batch_id = $1 ORDER BY session_number ASC`
	if err := r.db.SelectContext(ctx, &sessions, sessionQuery, id); err != nil {
		return nil, fmt.Errorf("list batch sessions: %w", err)
	}

	var learners []models.TrainingBatchLearner
	const learnerQuery = `SELECT id, batch_id, training_request_id, learner_user_id, joined_at
        FROM training_batch_learners WHERE batch_id = $1 ORDER BY joined_at ASC`
	if err := r.db.SelectContext(ctx, &learners, learnerQuery, id); err != nil {
		return nil, fmt.Errorf("list batch learners: %w", err)
	}

	var homework []models.HomeworkSession
	const homeworkQuery = `SELECT id, batch_id, learner_user_id, session_id, url, completed, submitted_at, reviewed_at, reviewed_by
        FROM homework_sessions WHERE batch_id = $1 ORDER BY submitted_at ASC`
	if err := r.db.SelectContext(ctx, &homework, homeworkQuery, id); err != nil {
		return nil, fmt.Errorf("list batch homework: %w", err)
	}

	return &models.TrainingBatchDetail{
		TrainingBatch: *batch,
		Sessions:      sessions,
		Learners:      learners,
		Homework:      homework,
	}, nil
}

// List returns batches matching the filter with a total count. Filtering by
// training request joins through the roster.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.TrainingBatch, int, error) {
	base := "FROM training_batches b WHERE 1=1"
	var args []interface{}

	if filter.TrainerID != "" {
		args = append(args, filter.TrainerID)
		base += fmt.Sprintf(" AND b.trainer_id = $%d", len(args))
	}
	if filter.CompetencyLevelID != "" {
		args = append(args, filter.CompetencyLevelID)
		base += fmt.Sprintf(" AND b.competency_level_id = $%d", len(args))
	}
	if filter.TrainingRequestID != "" {
		args = append(args, filter.TrainingRequestID)
		base += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM training_batch_learners bl WHERE bl.batch_id = b.id AND bl.training_request_id = $%d)", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT b.id, b.name, b.trainer_id, b.competency_level_id, b.start_date, b.created_at, b.updated_at
        %s ORDER BY b.created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var batches []models.TrainingBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// AddLearner joins a learner into the batch roster.
func (r *BatchRepository) AddLearner(ctx context.Context, learner *models.TrainingBatchLearner) error {
	if learner.ID == "" {
		learner.ID = uuid.NewString()
	}
	if learner.JoinedAt.IsZero() {
		learner.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO training_batch_learners (id, batch_id, training_request_id, learner_user_id, joined_at)
        VALUES (:id, :batch_id, :training_request_id, :learner_user_id, :joined_at)`
	if _, err := r.db.NamedExecContext(ctx, query, learner); err != nil {
		return fmt.Errorf("add batch learner: %w", err)
	}
	return nil
}

// FindLearner returns the roster entry for a learner in a batch, if any.
func (r *BatchRepository) FindLearner(ctx context.Context, batchID, learnerUserID string) (*models.TrainingBatchLearner, error) {
	const query = `SELECT id, batch_id, training_request_id, learner_user_id, joined_at
        FROM training_batch_learners WHERE batch_id = $1 AND learner_user_id = $2`
	var learner models.TrainingBatchLearner
	if err := r.db.GetContext(ctx, &learner, query, batchID, learnerUserID); err != nil {
		return nil, err
	}
	return &learner, nil
}

// FindSession returns a session of a batch.
func (r *BatchRepository) FindSession(ctx context.Context, batchID, sessionID string) (*models.TrainingBatchSession, error) {
	const query = `SELECT id, batch_id, session_number, topic, scheduled_at, created_at
        FROM training_batch_sessions WHERE batch_id = $1 AND id = $2`
	var session models.TrainingBatchSession
	if err := r.db.GetContext(ctx, &session, query, batchID, sessionID); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindHomework returns the homework record for a (batch, learner, session)
// triple, if any.
func (r *BatchRepository) FindHomework(ctx context.Context, batchID, learnerUserID, sessionID string) (*models.HomeworkSession, error) {
	const query = `SELECT id, batch_id, learner_user_id, session_id, url, completed, submitted_at, reviewed_at, reviewed_by
        FROM homework_sessions WHERE batch_id = $1 AND learner_user_id = $2 AND session_id = $3`
	var homework models.HomeworkSession
	if err := r.db.GetContext(ctx, &homework, query, batchID, learnerUserID, sessionID); err != nil {
		return nil, err
	}
	return &homework, nil
}

// UpsertHomework inserts or replaces the homework URL for a triple. The
// completed flag is never touched here; only SetHomeworkCompleted moves it.
func (r *BatchRepository) UpsertHomework(ctx context.Context, homework *models.HomeworkSession) error {
	if homework.ID == "" {
		homework.ID = uuid.NewString()
	}
	if homework.SubmittedAt.IsZero() {
		homework.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO homework_sessions (id, batch_id, learner_user_id, session_id, url, completed, submitted_at)
        VALUES (:id, :batch_id, :learner_user_id, :session_id, :url, FALSE, :submitted_at)
        ON CONFLICT (batch_id, learner_user_id, session_id)
        DO UPDATE SET url = EXCLUDED.url, submitted_at = EXCLUDED.submitted_at`
	if _, err := r.db.NamedExecContext(ctx, query, homework); err != nil {
		return fmt.Errorf("upsert homework: %w", err)
	}
	return nil
}

// SetHomeworkCompleted marks a homework record reviewed by a trainer.
func (r *BatchRepository) SetHomeworkCompleted(ctx context.Context, batchID, learnerUserID, sessionID string, completed bool, reviewedBy string) error {
	const query = `UPDATE homework_sessions SET completed = $1, reviewed_at = NOW(), reviewed_by = $2
        WHERE batch_id = $3 AND learner_user_id = $4 AND session_id = $5`
	if _, err := r.db.ExecContext(ctx, query, completed, reviewedBy, batchID, learnerUserID, sessionID); err != nil {
		return fmt.Errorf("set homework completed: %w", err)
	}
	return nil
}

// UpsertAttendance records presence for a (batch, learner, session) triple;
// re-recording overwrites the prior mark.
func (r *BatchRepository) UpsertAttendance(ctx context.Context, attendance *models.AttendanceSession) error {
	if attendance.ID == "" {
		attendance.ID = uuid.NewString()
	}
	if attendance.CreatedAt.IsZero() {
		attendance.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_sessions (id, batch_id, learner_user_id, session_id, present, recorded_by, created_at)
        VALUES (:id, :batch_id, :learner_user_id, :session_id, :present, :recorded_by, :created_at)
        ON CONFLICT (batch_id, learner_user_id, session_id)
        DO UPDATE SET present = EXCLUDED.present, recorded_by = EXCLUDED.recorded_by`
	if _, err := r.db.NamedExecContext(ctx, query, attendance); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// ListAttendance returns the attendance records of a batch.
func (r *BatchRepository) ListAttendance(ctx context.Context, batchID string) ([]models.AttendanceSession, error) {
	const query = `SELECT id, batch_id, learner_user_id, session_id, present, recorded_by, created_at
        FROM attendance_sessions WHERE batch_id = $1 ORDER BY created_at ASC`
	var records []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &records, query, batchID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// CountByCompetencyLevel aggregates batch counts per level across the
// published catalog.
func (r *BatchRepository) CountByCompetencyLevel(ctx context.Context) ([]models.LevelBatchCount, error) {
	const query = `SELECT l.id AS competency_level_id, c.name AS competency_name, l.name AS level_name,
        COUNT(b.id) AS batch_count
        FROM competency_levels l
        JOIN competencies c ON c.id = l.competency_id AND c.is_deleted = FALSE
        LEFT JOIN training_batches b ON b.competency_level_id = l.id
        GROUP BY l.id, c.name, l.name
        ORDER BY c.name, l.name`
	var counts []models.LevelBatchCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count batches by level: %w", err)
	}
	return counts, nil
}
