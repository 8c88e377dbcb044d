package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/skilltrack/competency-api/internal/models"
)

func newBatchRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBatchRepositoryCreateWithSessions(t *testing.T) {
	db, mock, cleanup := newBatchRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO training_batches")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO training_batch_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO training_batch_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch := &models.TrainingBatch{
		Name:              "Go Basic #1",
		TrainerID:         "trainer-1",
		CompetencyLevelID: "level-1",
	}
	sessions := []models.TrainingBatchSession{
		{SessionNumber: 1, Topic: "Syntax"},
		{SessionNumber: 2, Topic: "Concurrency"},
	}
	require.NoError(t, repo.Create(context.Background(), batch, sessions))
	require.NotEmpty(t, batch.ID)
	require.Equal(t, batch.ID, sessions[0].BatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryUpsertHomework(t *testing.T) {
	db, mock, cleanup := newBatchRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO homework_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	homework := &models.HomeworkSession{
		BatchID:       "batch-1",
		LearnerUserID: "learner-1",
		SessionID:     "session-1",
		URL:           "https://github.com/learner/homework-1",
	}
	require.NoError(t, repo.UpsertHomework(context.Background(), homework))
	require.False(t, homework.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositorySetHomeworkCompleted(t *testing.T) {
	db, mock, cleanup := newBatchRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE homework_sessions SET completed")).
		WithArgs(true, "trainer-1", "batch-1", "learner-1", "session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetHomeworkCompleted(context.Background(), "batch-1", "learner-1", "session-1", true, "trainer-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryCountByCompetencyLevel(t *testing.T) {
	db, mock, cleanup := newBatchRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	rows := sqlmock.NewRows([]string{"competency_level_id", "competency_name", "level_name", "batch_count"}).
		AddRow("level-1", "Go Services", "Basic", 2).
		AddRow("level-2", "Go Services", "Competent", 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT l.id AS competency_level_id")).
		WillReturnRows(rows)

	counts, err := repo.CountByCompetencyLevel(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, 2, counts[0].BatchCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryUpsertAttendance(t *testing.T) {
	db, mock, cleanup := newBatchRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	attendance := &models.AttendanceSession{
		BatchID:       "batch-1",
		LearnerUserID: "learner-1",
		SessionID:     "session-1",
		Present:       true,
		RecordedBy:    "trainer-1",
		CreatedAt:     time.Now(),
	}
	require.NoError(t, repo.UpsertAttendance(context.Background(), attendance))
	require.NoError(t, mock.ExpectationsWereMet())
}
