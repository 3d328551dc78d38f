package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

type processCatalog interface {
	GetByID(ctx context.Context, id string) (*models.Process, error)
	ListDocuments(ctx context.Context, processID string) ([]models.ProcessDocument, error)
	GetResearchLine(ctx context.Context, processID, researchLineID string) (*models.ResearchLine, error)
}

// DocumentCatalog serves the read-only process catalog, caching document lists in Redis when enabled.
type DocumentCatalog struct {
	repo   processCatalog
	cache  *CacheService
	logger *zap.Logger
}

// NewDocumentCatalog constructs the catalog reader.
func NewDocumentCatalog(repo processCatalog, cache *CacheService, logger *zap.Logger) *DocumentCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentCatalog{repo: repo, cache: cache, logger: logger}
}

func documentsCacheKey(processID string) string {
	return fmt.Sprintf("process:%s:documents", processID)
}

// Process loads a process or returns PROCESS_NOT_FOUND.
func (c *DocumentCatalog) Process(ctx context.Context, processID string) (*models.Process, error) {
	process, err := c.repo.GetByID(ctx, processID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrProcessNotFound, fmt.Sprintf("selection process %s not found", processID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection process")
	}
	if !process.Active {
		return nil, appErrors.Clone(appErrors.ErrProcessNotFound, fmt.Sprintf("selection process %s not found", processID))
	}
	return process, nil
}

// Documents returns the documents linked to a process.
func (c *DocumentCatalog) Documents(ctx context.Context, processID string) ([]models.ProcessDocument, error) {
	key := documentsCacheKey(processID)
	var cached []models.ProcessDocument
	if hit, err := c.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	docs, err := c.repo.ListDocuments(ctx, processID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document catalog")
	}
	if err := c.cache.Set(ctx, key, docs, 0); err != nil {
		c.logger.Debug("document catalog not cached", zap.String("process_id", processID), zap.Error(err))
	}
	return docs, nil
}

// Document finds one catalog document of the process.
func (c *DocumentCatalog) Document(ctx context.Context, processID, documentID string) (*models.ProcessDocument, error) {
	docs, err := c.Documents(ctx, processID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == documentID {
			return &docs[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("document %s is not part of this selection process", documentID))
}

// ResearchLine loads a research line offered by the process.
func (c *DocumentCatalog) ResearchLine(ctx context.Context, processID, researchLineID string) (*models.ResearchLine, error) {
	line, err := c.repo.GetResearchLine(ctx, processID, researchLineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("research line %s is not offered by this selection process", researchLineID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load research line")
	}
	return line, nil
}
