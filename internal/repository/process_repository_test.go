package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-api/internal/models"
)

func TestProcessRepositoryListDocuments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProcessRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "step", "required", "modalities", "vacancy_types",
		"score", "maximum_score", "created_at", "process_id", "linked_at"}).
		AddRow("doc-1", "Diploma", "", "ACADEMIC_DATA", true, "{DOCTORATE,REGULAR_MASTER}", "{BROAD_COMPETITION}", nil, nil, now, "proc-1", now).
		AddRow("doc-2", "Article", "", "CURRICULUM", false, "{DOCTORATE}", "{BROAD_COMPETITION,RACIAL_QUOTA}", "2.5", "10", now, "proc-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM process_documents pd")).
		WithArgs("proc-1").
		WillReturnRows(rows)

	docs, err := repo.ListDocuments(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.True(t, docs[0].Modalities.Contains(models.DocumentModalityRegularMaster))
	require.False(t, docs[0].Modalities.Contains(models.DocumentModalitySpecialMaster))
	require.True(t, docs[1].VacancyTypes.Contains(models.VacancyRacialQuota))
	require.NotNil(t, docs[1].Score)
	require.InDelta(t, 2.5, *docs[1].Score, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProcessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM processes WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProcessRepositoryGetResearchLineLoadsTutors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProcessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM process_research_lines prl")).
		WithArgs("proc-1", "line-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "process_id", "name"}).AddRow("line-1", "proc-1", "Distributed Systems"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tutors WHERE research_line_id = $1")).
		WithArgs("line-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "research_line_id", "name"}).
			AddRow("tutor-1", "line-1", "Ada").
			AddRow("tutor-2", "line-1", "Alan"))

	line, err := repo.GetResearchLine(context.Background(), "proc-1", "line-1")
	require.NoError(t, err)
	require.Len(t, line.Tutors, 2)
	require.True(t, line.HasTutor("tutor-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}
