package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admissions-api/internal/models"
)

// StepRepository stores the per-step records attached 1:1 to an application.
// Each table carries a unique application_id so FindOrCreate never yields two rows.
type StepRepository struct {
	db *sqlx.DB
}

// NewStepRepository constructs the repository.
func NewStepRepository(db *sqlx.DB) *StepRepository {
	return &StepRepository{db: db}
}

const (
	personalColumns = `id, application_id, step_completed, full_name, social_name, document_id, birth_date, nationality,
       email, phone, address, city, state, postal_code, created_at, updated_at`
	registrationColumns = `id, application_id, step_completed, modality, modality_type, vacancy_type, research_line_id,
       tutor_preferences, created_at, updated_at`
	academicColumns = `id, application_id, step_completed, course, area, institution, conclusion_year, created_at, updated_at`
)

func (r *StepRepository) ensure(ctx context.Context, table, applicationID string) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (id, application_id, step_completed, created_at, updated_at)
	VALUES ($1, $2, FALSE, $3, $3) ON CONFLICT (application_id) DO NOTHING`, table)
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), applicationID, now); err != nil {
		return fmt.Errorf("ensure %s: %w", table, err)
	}
	return nil
}

func (r *StepRepository) get(ctx context.Context, dest interface{}, table, columns, applicationID string) error {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE application_id = $1`, columns, table)
	if err := r.db.GetContext(ctx, dest, query, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("get %s: %w", table, err)
	}
	return nil
}

// FindPersonal returns the personal data record or sql.ErrNoRows.
func (r *StepRepository) FindPersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error) {
	var rec models.PersonalDataApplication
	if err := r.get(ctx, &rec, "personal_data_applications", personalColumns, applicationID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOrCreatePersonal returns the personal data record, creating an empty one if needed.
func (r *StepRepository) FindOrCreatePersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error) {
	if err := r.ensure(ctx, "personal_data_applications", applicationID); err != nil {
		return nil, err
	}
	return r.FindPersonal(ctx, applicationID)
}

// SavePersonal writes every column of the record.
func (r *StepRepository) SavePersonal(ctx context.Context, rec *models.PersonalDataApplication) error {
	rec.UpdatedAt = time.Now().UTC()
	const query = `UPDATE personal_data_applications SET step_completed = :step_completed, full_name = :full_name,
	social_name = :social_name, document_id = :document_id, birth_date = :birth_date, nationality = :nationality,
	email = :email, phone = :phone, address = :address, city = :city, state = :state, postal_code = :postal_code,
	updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("save personal data: %w", err)
	}
	return nil
}

// FindRegistration returns the registration record or sql.ErrNoRows.
func (r *StepRepository) FindRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error) {
	var rec models.RegistrationDataApplication
	if err := r.get(ctx, &rec, "registration_data_applications", registrationColumns, applicationID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOrCreateRegistration returns the registration record, creating an empty one if needed.
func (r *StepRepository) FindOrCreateRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error) {
	if err := r.ensure(ctx, "registration_data_applications", applicationID); err != nil {
		return nil, err
	}
	return r.FindRegistration(ctx, applicationID)
}

// SaveRegistration writes every column of the record.
func (r *StepRepository) SaveRegistration(ctx context.Context, rec *models.RegistrationDataApplication) error {
	rec.UpdatedAt = time.Now().UTC()
	const query = `UPDATE registration_data_applications SET step_completed = :step_completed, modality = :modality,
	modality_type = :modality_type, vacancy_type = :vacancy_type, research_line_id = :research_line_id,
	tutor_preferences = :tutor_preferences, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("save registration data: %w", err)
	}
	return nil
}

// FindAcademic returns the academic record or sql.ErrNoRows.
func (r *StepRepository) FindAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error) {
	var rec models.AcademicDataApplication
	if err := r.get(ctx, &rec, "academic_data_applications", academicColumns, applicationID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOrCreateAcademic returns the academic record, creating an empty one if needed.
func (r *StepRepository) FindOrCreateAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error) {
	if err := r.ensure(ctx, "academic_data_applications", applicationID); err != nil {
		return nil, err
	}
	return r.FindAcademic(ctx, applicationID)
}

// SaveAcademic writes every column of the record.
func (r *StepRepository) SaveAcademic(ctx context.Context, rec *models.AcademicDataApplication) error {
	rec.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_data_applications SET step_completed = :step_completed, course = :course,
	area = :area, institution = :institution, conclusion_year = :conclusion_year, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("save academic data: %w", err)
	}
	return nil
}

// LoadAll returns whichever step records exist for the application.
func (r *StepRepository) LoadAll(ctx context.Context, applicationID string) (models.ApplicationSteps, error) {
	var steps models.ApplicationSteps
	personal, err := r.FindPersonal(ctx, applicationID)
	if err != nil && err != sql.ErrNoRows {
		return steps, err
	}
	steps.Personal = personal

	registration, err := r.FindRegistration(ctx, applicationID)
	if err != nil && err != sql.ErrNoRows {
		return steps, err
	}
	steps.Registration = registration

	academic, err := r.FindAcademic(ctx, applicationID)
	if err != nil && err != sql.ErrNoRows {
		return steps, err
	}
	steps.Academic = academic
	return steps, nil
}
