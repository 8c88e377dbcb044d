package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/skilltrack/competency-api/internal/models"
)

func newNumberingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNumberingRepositoryReserveSequential(t *testing.T) {
	db, mock, cleanup := newNumberingRepoMock(t)
	defer cleanup()

	repo := NewNumberingRepository(db)
	for _, want := range []int{1, 2, 3} {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO custom_numbering")).
			WithArgs(string(models.NumberingTrainingRequest)).
			WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(want))

		got, err := repo.Reserve(context.Background(), models.NumberingTrainingRequest)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNumberingRepositoryNextCode(t *testing.T) {
	db, mock, cleanup := newNumberingRepoMock(t)
	defer cleanup()

	repo := NewNumberingRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO custom_numbering")).
		WithArgs(string(models.NumberingProjectApproval)).
		WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(7))

	code, err := repo.NextCode(context.Background(), models.NumberingProjectApproval)
	require.NoError(t, err)
	require.Equal(t, "VPA07", code)
	require.NoError(t, mock.ExpectationsWereMet())
}
