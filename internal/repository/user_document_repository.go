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

// UserDocumentRepository persists uploaded evidence metadata.
type UserDocumentRepository struct {
	db *sqlx.DB
}

// NewUserDocumentRepository constructs the repository.
func NewUserDocumentRepository(db *sqlx.DB) *UserDocumentRepository {
	return &UserDocumentRepository{db: db}
}

const userDocumentColumns = `id, application_id, document_id, step, storage_key, filename, quantity, status,
       reason_for_rejection, analyzed_by, analyzed_at, created_at, updated_at`

// Create inserts an upload record. A second upload for the same document slot yields ErrDuplicate.
func (r *UserDocumentRepository) Create(ctx context.Context, doc *models.UserDocumentApplication) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	const query = `INSERT INTO user_document_applications
	(id, application_id, document_id, step, storage_key, filename, quantity, status, reason_for_rejection, analyzed_by, analyzed_at, created_at, updated_at)
	VALUES (:id, :application_id, :document_id, :step, :storage_key, :filename, :quantity, :status, :reason_for_rejection, :analyzed_by, :analyzed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user document: %w", err)
	}
	return nil
}

// GetByID fetches one upload record.
func (r *UserDocumentRepository) GetByID(ctx context.Context, id string) (*models.UserDocumentApplication, error) {
	query := `SELECT ` + userDocumentColumns + ` FROM user_document_applications WHERE id = $1`
	var doc models.UserDocumentApplication
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get user document: %w", err)
	}
	return &doc, nil
}

// ListByApplication returns every upload of an application, optionally narrowed to one step.
func (r *UserDocumentRepository) ListByApplication(ctx context.Context, applicationID string, step *models.Step) ([]models.UserDocumentApplication, error) {
	query := `SELECT ` + userDocumentColumns + ` FROM user_document_applications WHERE application_id = $1`
	args := []interface{}{applicationID}
	if step != nil {
		args = append(args, *step)
		query += fmt.Sprintf(" AND step = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	var docs []models.UserDocumentApplication
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list user documents: %w", err)
	}
	return docs, nil
}

// ReplaceUpload points the record at a new object and clears any previous analysis.
func (r *UserDocumentRepository) ReplaceUpload(ctx context.Context, doc *models.UserDocumentApplication) error {
	doc.UpdatedAt = time.Now().UTC()
	doc.Status = nil
	doc.ReasonForRejection = nil
	doc.AnalyzedBy = nil
	doc.AnalyzedAt = nil
	const query = `UPDATE user_document_applications SET storage_key = :storage_key, filename = :filename,
	quantity = :quantity, status = NULL, reason_for_rejection = NULL, analyzed_by = NULL, analyzed_at = NULL,
	updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, doc)
	if err != nil {
		return fmt.Errorf("replace user document upload: %w", err)
	}
	return expectAffected(res, "replace user document upload")
}

// Analyse stores an analysis outcome, overwriting any earlier one.
func (r *UserDocumentRepository) Analyse(ctx context.Context, id string, status models.AnalysisStatus, reason *string, analyzedBy string, at time.Time) error {
	const query = `UPDATE user_document_applications
	SET status = $2, reason_for_rejection = $3, analyzed_by = $4, analyzed_at = $5, updated_at = $5
	WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, analyzedBy, at)
	if err != nil {
		return fmt.Errorf("analyse user document: %w", err)
	}
	return expectAffected(res, "analyse user document")
}

// Delete removes an upload record.
func (r *UserDocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM user_document_applications WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user document: %w", err)
	}
	return expectAffected(res, "delete user document")
}
