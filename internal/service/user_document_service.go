package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	"github.com/noah-isme/admissions-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/jobs"
	"github.com/noah-isme/admissions-api/pkg/storage"
)

// JobTypeDeleteObject removes an object superseded by a re-upload.
const JobTypeDeleteObject = "storage.delete_object"

type userDocumentStore interface {
	uploadLister
	Create(ctx context.Context, doc *models.UserDocumentApplication) error
	GetByID(ctx context.Context, id string) (*models.UserDocumentApplication, error)
	ReplaceUpload(ctx context.Context, doc *models.UserDocumentApplication) error
	Analyse(ctx context.Context, id string, status models.AnalysisStatus, reason *string, analyzedBy string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type objectStore interface {
	PresignUpload(ctx context.Context, key string) (string, time.Time, error)
	PresignDownload(ctx context.Context, key, filename string) (string, time.Time, error)
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type uploadTicketSigner interface {
	Issue(applicationID, storageKey string) (string, time.Time, error)
	Verify(ticket, applicationID, storageKey string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type cleanupRecorder interface {
	RecordCleanupFailure()
}

// UserDocumentService keeps uploaded evidence rows in lockstep with the objects
// in storage: a row is only written once its object exists, and an object is
// removed before its row.
type UserDocumentService struct {
	docs      userDocumentStore
	catalog   *DocumentCatalog
	guard     *WindowGuard
	store     objectStore
	tickets   uploadTicketSigner
	cleanup   jobEnqueuer
	audit     auditLogger
	validator *validator.Validate
	metrics   cleanupRecorder
	logger    *zap.Logger
}

// UserDocumentServiceDeps groups the collaborators of UserDocumentService.
type UserDocumentServiceDeps struct {
	Documents userDocumentStore
	Catalog   *DocumentCatalog
	Guard     *WindowGuard
	Store     objectStore
	Tickets   uploadTicketSigner
	Cleanup   jobEnqueuer
	Audit     auditLogger
	Validator *validator.Validate
	Metrics   cleanupRecorder
	Logger    *zap.Logger
}

// NewUserDocumentService constructs the service.
func NewUserDocumentService(deps UserDocumentServiceDeps) *UserDocumentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &UserDocumentService{
		docs:      deps.Documents,
		catalog:   deps.Catalog,
		guard:     deps.Guard,
		store:     deps.Store,
		tickets:   deps.Tickets,
		cleanup:   deps.Cleanup,
		audit:     deps.Audit,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// RequestUpload reserves a storage key for a catalog document and returns a
// presigned upload URL plus the ticket needed to register the upload.
func (s *UserDocumentService) RequestUpload(ctx context.Context, applicationID string, req dto.UploadHandshakeRequest, actor *models.JWTClaims) (*dto.UploadHandshakeResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	record, err := s.beginEdit(ctx, applicationID, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.Document(ctx, record.Process.ID, req.DocumentID); err != nil {
		return nil, err
	}

	key := storageKey(applicationID, req.DocumentID, req.Filename)
	url, expiresAt, err := s.store.PresignUpload(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to presign upload")
	}
	ticket, _, err := s.tickets.Issue(applicationID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue upload ticket")
	}
	return &dto.UploadHandshakeResponse{UploadURL: url, StorageKey: key, Ticket: ticket, ExpiresAt: expiresAt}, nil
}

// Create registers an uploaded object against a catalog document of the application.
func (s *UserDocumentService) Create(ctx context.Context, applicationID string, req dto.CreateUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	record, err := s.beginEdit(ctx, applicationID, actor)
	if err != nil {
		return nil, err
	}
	doc, err := s.catalog.Document(ctx, record.Process.ID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyObject(ctx, applicationID, doc.ID, req.StorageKey, req.Ticket); err != nil {
		return nil, err
	}

	upload := &models.UserDocumentApplication{
		ApplicationID: applicationID,
		DocumentID:    doc.ID,
		Step:          doc.Step,
		StorageKey:    req.StorageKey,
		Filename:      req.Filename,
		Quantity:      normalizeQuantity(req.Quantity),
	}
	if err := s.docs.Create(ctx, upload); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrDocumentUploaded, fmt.Sprintf("document %s was already uploaded for this application", doc.Name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register uploaded document")
	}

	emitAudit(ctx, s.audit, s.logger, "user-document-service", auditEntry(actor, models.AuditActionDocumentUpload, "user_document", upload.ID,
		map[string]string{"applicationId": applicationID, "documentId": doc.ID}))
	return upload, nil
}

// Update replaces the object behind an existing upload and clears its analysis.
// The superseded object is deleted in the background.
func (s *UserDocumentService) Update(ctx context.Context, applicationID, userDocumentID string, req dto.UpdateUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if _, err := s.beginEdit(ctx, applicationID, actor); err != nil {
		return nil, err
	}
	upload, err := s.ownedUpload(ctx, applicationID, userDocumentID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyObject(ctx, applicationID, upload.DocumentID, req.StorageKey, req.Ticket); err != nil {
		return nil, err
	}

	previousKey := upload.StorageKey
	upload.StorageKey = req.StorageKey
	upload.Filename = req.Filename
	upload.Quantity = normalizeQuantity(req.Quantity)
	if err := s.docs.ReplaceUpload(ctx, upload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uploaded document no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace uploaded document")
	}
	if previousKey != upload.StorageKey {
		s.scheduleDelete(previousKey)
	}

	emitAudit(ctx, s.audit, s.logger, "user-document-service", auditEntry(actor, models.AuditActionDocumentUpload, "user_document", upload.ID,
		map[string]string{"applicationId": applicationID, "replaced": previousKey}))
	return upload, nil
}

// Delete removes the stored object and then the upload row. A storage failure
// leaves the row in place and surfaces as UPSTREAM_FAILURE. Steps finalized
// with the removed upload are gated again when the application is submitted.
func (s *UserDocumentService) Delete(ctx context.Context, applicationID, userDocumentID string, actor *models.JWTClaims) error {
	if _, err := s.beginEdit(ctx, applicationID, actor); err != nil {
		return err
	}
	upload, err := s.ownedUpload(ctx, applicationID, userDocumentID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, upload.StorageKey); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to delete stored object")
	}
	if err := s.docs.Delete(ctx, upload.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "uploaded document no longer exists")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete uploaded document")
	}

	emitAudit(ctx, s.audit, s.logger, "user-document-service", auditEntry(actor, models.AuditActionDocumentDelete, "user_document", upload.ID,
		map[string]string{"applicationId": applicationID}))
	return nil
}

// DownloadLink returns a presigned URL for the owner of the application or an administrator.
func (s *UserDocumentService) DownloadLink(ctx context.Context, userDocumentID string, actor *models.JWTClaims) (*dto.DownloadLinkResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	upload, err := s.load(ctx, userDocumentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		record, err := s.guard.Load(ctx, upload.ApplicationID)
		if err != nil {
			return nil, err
		}
		if record.Application.UserID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "document belongs to another user")
		}
	}
	url, expiresAt, err := s.store.PresignDownload(ctx, upload.StorageKey, upload.Filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to presign download")
	}
	return &dto.DownloadLinkResponse{URL: url, Filename: upload.Filename, ExpiresAt: expiresAt}, nil
}

// Analyse records an administrator verdict on one upload. A later verdict
// overwrites an earlier one until the application is reviewed.
func (s *UserDocumentService) Analyse(ctx context.Context, userDocumentID string, req dto.AnalyseUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	upload, err := s.load(ctx, userDocumentID)
	if err != nil {
		return nil, err
	}
	record, err := s.guard.Load(ctx, upload.ApplicationID)
	if err != nil {
		return nil, err
	}
	if record.Application.Reviewed() {
		return nil, appErrors.Clone(appErrors.ErrApplicationReviewed, "documents of a reviewed application cannot be analysed")
	}

	reason := req.ReasonForRejection
	if req.Status == models.AnalysisApproved {
		reason = nil
	}
	now := s.guard.Now()
	if err := s.docs.Analyse(ctx, upload.ID, req.Status, reason, actor.UserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uploaded document no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record analysis")
	}

	status := req.Status
	analyst := actor.UserID
	upload.Status = &status
	upload.ReasonForRejection = reason
	upload.AnalyzedBy = &analyst
	upload.AnalyzedAt = &now
	upload.UpdatedAt = now

	emitAudit(ctx, s.audit, s.logger, "user-document-service", auditEntry(actor, models.AuditActionDocumentAnalysis, "user_document", upload.ID,
		map[string]string{"status": string(status)}))
	return upload, nil
}

// HandleCleanupJob is the jobs.Queue handler deleting superseded objects.
func (s *UserDocumentService) HandleCleanupJob(ctx context.Context, job jobs.Job) error {
	key, ok := job.Payload.(string)
	if !ok || key == "" {
		s.logger.Warn("discarding malformed cleanup job", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		if s.metrics != nil {
			s.metrics.RecordCleanupFailure()
		}
		return fmt.Errorf("delete superseded object %s: %w", key, err)
	}
	return nil
}

func (s *UserDocumentService) scheduleDelete(key string) {
	if s.cleanup == nil {
		s.logger.Warn("no cleanup queue configured, superseded object left in storage", zap.String("key", key))
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeDeleteObject, Payload: key}
	if err := s.cleanup.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue superseded object cleanup", zap.String("key", key), zap.Error(err))
	}
}

// beginEdit runs the window guard and refuses document changes once the
// application has been submitted.
func (s *UserDocumentService) beginEdit(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.ApplicationWithProcess, error) {
	record, err := s.guard.Check(ctx, applicationID, actor)
	if err != nil {
		return nil, err
	}
	if err := requireUnsubmitted(record); err != nil {
		return nil, err
	}
	return record, nil
}

// verifyObject checks that the key was handed out for this application and
// catalog document and that the object is in storage.
func (s *UserDocumentService) verifyObject(ctx context.Context, applicationID, documentID, key, ticket string) error {
	if err := s.tickets.Verify(ticket, applicationID, key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "upload ticket is invalid or expired")
	}
	if !strings.HasPrefix(key, storageKeyPrefix(applicationID, documentID)) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("storage key was not issued for document %s", documentID))
	}
	if _, err := s.store.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return appErrors.Clone(appErrors.ErrValidation, "uploaded object not found in storage")
		}
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to inspect uploaded object")
	}
	return nil
}

func (s *UserDocumentService) load(ctx context.Context, id string) (*models.UserDocumentApplication, error) {
	upload, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("uploaded document %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploaded document")
	}
	return upload, nil
}

func (s *UserDocumentService) ownedUpload(ctx context.Context, applicationID, id string) (*models.UserDocumentApplication, error) {
	upload, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.ApplicationID != applicationID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("uploaded document %s not found", id))
	}
	return upload, nil
}

func (s *UserDocumentService) validate(req interface{}) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid document payload", validationDetails(err))
	}
	return nil
}

func storageKeyPrefix(applicationID, documentID string) string {
	return fmt.Sprintf("applications/%s/%s/", applicationID, documentID)
}

func storageKey(applicationID, documentID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return storageKeyPrefix(applicationID, documentID) + uuid.NewString() + ext
}

func normalizeQuantity(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
