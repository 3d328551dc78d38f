package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admissions-api/internal/models"
)

// ProcessRepository reads the selection process catalog. Catalog writes are
// owned by the catalog management service.
type ProcessRepository struct {
	db *sqlx.DB
}

// NewProcessRepository constructs the repository.
func NewProcessRepository(db *sqlx.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

const processColumns = `id, name, description, start_date, end_date, doctorate_vacancies, regular_master_vacancies,
       special_master_vacancies, status, results_announced, active, created_at, updated_at`

// GetByID fetches a process by identifier.
func (r *ProcessRepository) GetByID(ctx context.Context, id string) (*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE id = $1`
	var process models.Process
	if err := r.db.GetContext(ctx, &process, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get process: %w", err)
	}
	return &process, nil
}

// ListDocuments returns the document catalog offered by a process, oldest first.
func (r *ProcessRepository) ListDocuments(ctx context.Context, processID string) ([]models.ProcessDocument, error) {
	const query = `SELECT d.id, d.name, d.description, d.step, d.required, d.modalities, d.vacancy_types,
       d.score, d.maximum_score, d.created_at, pd.process_id, pd.created_at AS linked_at
	FROM process_documents pd
	JOIN documents d ON d.id = pd.document_id
	WHERE pd.process_id = $1
	ORDER BY d.created_at ASC`
	var docs []models.ProcessDocument
	if err := r.db.SelectContext(ctx, &docs, query, processID); err != nil {
		return nil, fmt.Errorf("list process documents: %w", err)
	}
	return docs, nil
}

// GetResearchLine loads a research line of the process along with its tutors.
func (r *ProcessRepository) GetResearchLine(ctx context.Context, processID, researchLineID string) (*models.ResearchLine, error) {
	const lineQuery = `SELECT rl.id, prl.process_id, rl.name
	FROM process_research_lines prl
	JOIN research_lines rl ON rl.id = prl.research_line_id
	WHERE prl.process_id = $1 AND rl.id = $2`
	var line models.ResearchLine
	if err := r.db.GetContext(ctx, &line, lineQuery, processID, researchLineID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get research line: %w", err)
	}

	const tutorQuery = `SELECT id, research_line_id, name FROM tutors WHERE research_line_id = $1`
	if err := r.db.SelectContext(ctx, &line.Tutors, tutorQuery, researchLineID); err != nil {
		return nil, fmt.Errorf("list research line tutors: %w", err)
	}
	return &line, nil
}
