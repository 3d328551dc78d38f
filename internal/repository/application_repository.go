package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admissions-api/internal/models"
)

// ApplicationRepository persists applications and their lifecycle flags.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, user_id, process_id, active, application_filled, status, reason_for_rejection,
       reviewed_by, reviewed_at, created_at, updated_at`

// Create inserts a new application. A second application for the same user and
// process yields ErrDuplicate.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	const query = `INSERT INTO applications
	(id, user_id, process_id, active, application_filled, status, reason_for_rejection, reviewed_by, reviewed_at, created_at, updated_at)
	VALUES (:id, :user_id, :process_id, :active, :application_filled, :status, :reason_for_rejection, :reviewed_by, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID fetches one application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// GetWithProcess loads an application together with its process in one round trip.
func (r *ApplicationRepository) GetWithProcess(ctx context.Context, id string) (*models.ApplicationWithProcess, error) {
	const query = `SELECT
       a.id AS "application.id", a.user_id AS "application.user_id", a.process_id AS "application.process_id",
       a.active AS "application.active", a.application_filled AS "application.application_filled",
       a.status AS "application.status", a.reason_for_rejection AS "application.reason_for_rejection",
       a.reviewed_by AS "application.reviewed_by", a.reviewed_at AS "application.reviewed_at",
       a.created_at AS "application.created_at", a.updated_at AS "application.updated_at",
       p.id AS "process.id", p.name AS "process.name", p.description AS "process.description",
       p.start_date AS "process.start_date", p.end_date AS "process.end_date",
       p.doctorate_vacancies AS "process.doctorate_vacancies",
       p.regular_master_vacancies AS "process.regular_master_vacancies",
       p.special_master_vacancies AS "process.special_master_vacancies",
       p.status AS "process.status", p.results_announced AS "process.results_announced",
       p.active AS "process.active", p.created_at AS "process.created_at", p.updated_at AS "process.updated_at"
	FROM applications a
	JOIN processes p ON p.id = a.process_id
	WHERE a.id = $1`
	var record models.ApplicationWithProcess
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application with process: %w", err)
	}
	return &record, nil
}

// List returns applications matching the filter, newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + applicationColumns + ` FROM applications`)
	args := make([]interface{}, 0, 4)
	conditions := []string{"active = TRUE"}

	if filter.ProcessID != "" {
		args = append(args, filter.ProcessID)
		conditions = append(conditions, fmt.Sprintf("process_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Filled != nil {
		args = append(args, *filter.Filled)
		conditions = append(conditions, fmt.Sprintf("application_filled = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// MarkFilled flips application_filled for an unreviewed application. It returns
// sql.ErrNoRows when the row is missing or already filled.
func (r *ApplicationRepository) MarkFilled(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE applications SET application_filled = TRUE, updated_at = $2
	WHERE id = $1 AND active AND NOT application_filled AND status IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark application filled: %w", err)
	}
	return expectAffected(res, "mark application filled")
}

// Review records the final decision. Only filled, undecided applications are updated.
func (r *ApplicationRepository) Review(ctx context.Context, id string, status models.ApplicationStatus, reason *string, reviewer string, at time.Time) error {
	const query = `UPDATE applications
	SET status = $2, reason_for_rejection = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
	WHERE id = $1 AND active AND application_filled AND status IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, reviewer, at)
	if err != nil {
		return fmt.Errorf("review application: %w", err)
	}
	return expectAffected(res, "review application")
}

// SweepExpired rejects every active, unfilled application whose process ended
// before now. It is a single statement and safe to run concurrently.
func (r *ApplicationRepository) SweepExpired(ctx context.Context, now time.Time, reason string) ([]models.Application, error) {
	const query = `UPDATE applications a
	SET application_filled = TRUE, status = $3, reason_for_rejection = $2, updated_at = $1
	FROM processes p
	WHERE a.process_id = p.id
	  AND a.active
	  AND NOT a.application_filled
	  AND a.status IS NULL
	  AND p.end_date < $1
	RETURNING a.id, a.user_id, a.process_id`
	var swept []models.Application
	if err := r.db.SelectContext(ctx, &swept, query, now, reason, models.ApplicationRejected); err != nil {
		return nil, fmt.Errorf("sweep expired applications: %w", err)
	}
	return swept, nil
}

func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
