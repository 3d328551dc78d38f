package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-api/internal/models"
)

func TestApplicationRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_user_process_key"})

	err := repo.Create(context.Background(), &models.Application{UserID: "user-1", ProcessID: "proc-1", Active: true})
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{UserID: "user-1", ProcessID: "proc-1", Active: true}
	require.NoError(t, repo.Create(context.Background(), app))
	require.NotEmpty(t, app.ID)
	require.Equal(t, app.CreatedAt, app.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGetWithProcess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"application.id", "application.user_id", "application.process_id", "application.active",
		"application.application_filled", "application.status", "application.reason_for_rejection",
		"application.reviewed_by", "application.reviewed_at", "application.created_at", "application.updated_at",
		"process.id", "process.name", "process.description", "process.start_date", "process.end_date",
		"process.doctorate_vacancies", "process.regular_master_vacancies", "process.special_master_vacancies",
		"process.status", "process.results_announced", "process.active", "process.created_at", "process.updated_at",
	}).AddRow(
		"app-1", "user-1", "proc-1", true, false, nil, nil, nil, nil, now, now,
		"proc-1", "PPG 2026", "", now.Add(-time.Hour), now.Add(time.Hour), 2, 3, 1,
		"ACTIVE", false, true, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications a")).
		WithArgs("app-1").
		WillReturnRows(rows)

	record, err := repo.GetWithProcess(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, "app-1", record.Application.ID)
	require.Equal(t, "proc-1", record.Process.ID)
	require.Equal(t, models.ProcessStatusActive, record.Process.Status)
	require.Nil(t, record.Application.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	filled := true
	rows := sqlmock.NewRows([]string{"id", "user_id", "process_id", "active", "application_filled", "status",
		"reason_for_rejection", "reviewed_by", "reviewed_at", "created_at", "updated_at"}).
		AddRow("app-1", "user-1", "proc-1", true, true, nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = TRUE AND process_id = $1 AND application_filled = $2 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("proc-1", true).
		WillReturnRows(rows)

	apps, err := repo.List(context.Background(), models.ApplicationFilter{ProcessID: "proc-1", Filled: &filled})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryMarkFilledNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET application_filled = TRUE")).
		WithArgs("app-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFilled(context.Background(), "app-1", at)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryReview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND active AND application_filled AND status IS NULL")).
		WithArgs("app-1", models.ApplicationApproved, nil, "admin-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Review(context.Background(), "app-1", models.ApplicationApproved, nil, "admin-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySweepExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "process_id"}).
		AddRow("app-1", "user-1", "proc-1").
		AddRow("app-2", "user-2", "proc-1")
	mock.ExpectQuery(regexp.QuoteMeta("AND p.end_date < $1")).
		WithArgs(now, models.MissedDeadlineReason, models.ApplicationRejected).
		WillReturnRows(rows)

	swept, err := repo.SweepExpired(context.Background(), now, models.MissedDeadlineReason)
	require.NoError(t, err)
	require.Len(t, swept, 2)
	require.Equal(t, "proc-1", swept[1].ProcessID)
	require.NoError(t, mock.ExpectationsWereMet())
}
