package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	"github.com/noah-isme/admissions-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/events"
)

type applicationStore interface {
	applicationLoader
	Create(ctx context.Context, app *models.Application) error
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	MarkFilled(ctx context.Context, id string, at time.Time) error
	Review(ctx context.Context, id string, status models.ApplicationStatus, reason *string, reviewer string, at time.Time) error
}

type stepReader interface {
	LoadAll(ctx context.Context, applicationID string) (models.ApplicationSteps, error)
	FindRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error)
}

type uploadLister interface {
	ListByApplication(ctx context.Context, applicationID string, step *models.Step) ([]models.UserDocumentApplication, error)
}

// ApplicationService drives an application from creation to review.
type ApplicationService struct {
	apps      applicationStore
	steps     stepReader
	uploads   uploadLister
	catalog   *DocumentCatalog
	guard     *WindowGuard
	publisher events.Publisher
	audit     auditLogger
	validator *validator.Validate
	metrics   gateRecorder
	logger    *zap.Logger
}

// ApplicationServiceDeps groups the collaborators of ApplicationService.
type ApplicationServiceDeps struct {
	Applications applicationStore
	Steps        stepReader
	Uploads      uploadLister
	Catalog      *DocumentCatalog
	Guard        *WindowGuard
	Publisher    events.Publisher
	Audit        auditLogger
	Validator    *validator.Validate
	Metrics      gateRecorder
	Logger       *zap.Logger
}

// NewApplicationService constructs the service.
func NewApplicationService(deps ApplicationServiceDeps) *ApplicationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &ApplicationService{
		apps:      deps.Applications,
		steps:     deps.Steps,
		uploads:   deps.Uploads,
		catalog:   deps.Catalog,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		audit:     deps.Audit,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// Apply opens a new application of the caller to an active process within its window.
func (s *ApplicationService) Apply(ctx context.Context, processID string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	process, err := s.catalog.Process(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckProcess(process); err != nil {
		return nil, err
	}

	app := &models.Application{
		UserID:    actor.UserID,
		ProcessID: process.ID,
		Active:    true,
		CreatedAt: s.guard.Now(),
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateApplication, fmt.Sprintf("user already applied to %s", process.Name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	emitAudit(ctx, s.audit, s.logger, "application-service", auditEntry(actor, models.AuditActionApplicationCreate, "application", app.ID,
		map[string]string{"processId": process.ID}))
	return app, nil
}

// List returns applications visible to the caller. Applicants only ever see
// their own; administrators may filter by process, fill state and status.
func (s *ApplicationService) List(ctx context.Context, req dto.ListApplicationsRequest, actor *models.JWTClaims) ([]models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing filter")
	}

	filter := models.ApplicationFilter{
		ProcessID: req.ProcessID,
		Filled:    req.Filled,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.Status != "" {
		status := req.Status
		filter.Status = &status
	}
	if !actor.IsAdmin() {
		filter.UserID = actor.UserID
	}

	apps, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return apps, nil
}

// Get returns the full view of an application to its owner or an administrator.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ApplicationDetail, error) {
	record, err := s.loadReadable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.LoadAll(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application steps")
	}
	uploads, err := s.uploads.ListByApplication(ctx, id, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application documents")
	}
	catalog, err := s.catalog.Documents(ctx, record.Process.ID)
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []models.UserDocumentApplication{}
	}
	return &dto.ApplicationDetail{
		Application:     record.Application,
		State:           record.Application.State(steps.Any()),
		Process:         record.Process,
		Steps:           steps,
		Documents:       uploads,
		CurriculumScore: ApplicationCurriculumScore(catalog, uploads),
	}, nil
}

// ListEligibleDocuments returns the documents of a step that apply to the applicant.
// Before registration choices are known only the step filter applies.
func (s *ApplicationService) ListEligibleDocuments(ctx context.Context, id string, step models.Step, actor *models.JWTClaims) ([]models.ProcessDocument, error) {
	if !step.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown step %q", step))
	}
	record, err := s.loadReadable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	registration, err := s.steps.FindRegistration(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration data")
	}
	modality, vacancy, err := eligibilityKey(registration)
	if err != nil {
		return nil, err
	}
	docs, err := s.catalog.Documents(ctx, record.Process.ID)
	if err != nil {
		return nil, err
	}
	return FilterDocuments(docs, step, modality, vacancy), nil
}

// FinishFill submits the application once every step is finalized and the
// curriculum documents are in place.
func (s *ApplicationService) FinishFill(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	record, err := s.guard.Check(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := requireUnsubmitted(record); err != nil {
		return nil, err
	}

	steps, err := s.steps.LoadAll(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application steps")
	}
	if err := requireFinalized(steps); err != nil {
		return nil, s.gateFailure(err)
	}

	modality, vacancy, err := eligibilityKey(steps.Registration)
	if err != nil {
		return nil, err
	}
	docs, err := s.catalog.Documents(ctx, record.Process.ID)
	if err != nil {
		return nil, err
	}
	uploads, err := s.uploads.ListByApplication(ctx, id, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploaded documents")
	}
	// Uploads may have been removed since a step was finalized, so every step
	// is gated again against the current registration choices.
	for _, step := range models.Steps() {
		if err := RequireDocuments(step, uploads, FilterDocuments(docs, step, modality, vacancy)); err != nil {
			return nil, s.gateFailure(err)
		}
	}

	now := s.guard.Now()
	if err := s.apps.MarkFilled(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application changed state while being submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}

	app := record.Application
	app.ApplicationFilled = true
	app.UpdatedAt = now

	emitAudit(ctx, s.audit, s.logger, "application-service", auditEntry(actor, models.AuditActionApplicationFill, "application", id, nil))
	publishEvent(ctx, s.publisher, s.logger, events.Event{
		Type:          events.TypeApplicationSubmitted,
		ApplicationID: id,
		ProcessID:     record.Process.ID,
		Attributes:    map[string]string{"userId": app.UserID},
		OccurredAt:    now,
	})
	return &app, nil
}

// Review records an administrator decision after the submission window closed
// and every uploaded document was analyzed.
func (s *ApplicationService) Review(ctx context.Context, id string, req dto.ReviewApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	record, err := s.guard.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	app := record.Application
	if app.Reviewed() {
		return nil, s.gateFailure(appErrors.Clone(appErrors.ErrApplicationReviewed, fmt.Sprintf("application was already reviewed as %s", *app.Status)))
	}
	if !app.ApplicationFilled {
		return nil, s.gateFailure(appErrors.Clone(appErrors.ErrApplicationNotFilled, "application has not been submitted by the applicant"))
	}
	now := s.guard.Now()
	if !record.Process.WindowClosedAt(now) {
		return nil, s.gateFailure(appErrors.Clone(appErrors.ErrWindowOpen,
			fmt.Sprintf("applications can be reviewed after %s", record.Process.EndDate.UTC().Format(time.RFC3339))))
	}

	uploads, err := s.uploads.ListByApplication(ctx, id, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application documents")
	}
	if !AllDocumentsAnalyzed(uploads) {
		pending := pendingDocumentIDs(uploads)
		return nil, s.gateFailure(appErrors.WithDetails(appErrors.ErrDocumentsPending,
			fmt.Sprintf("%d document(s) still awaiting analysis", len(pending)), pending))
	}

	reason := req.ReasonForRejection
	if req.Status == models.ApplicationApproved {
		reason = nil
	}
	if err := s.apps.Review(ctx, id, req.Status, reason, actor.UserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrApplicationReviewed, "application was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review application")
	}

	status := req.Status
	reviewer := actor.UserID
	app.Status = &status
	app.ReasonForRejection = reason
	app.ReviewedBy = &reviewer
	app.ReviewedAt = &now
	app.UpdatedAt = now

	emitAudit(ctx, s.audit, s.logger, "application-service", auditEntry(actor, models.AuditActionApplicationReview, "application", id,
		map[string]string{"status": string(status)}))
	publishEvent(ctx, s.publisher, s.logger, events.Event{
		Type:          events.TypeApplicationReviewed,
		ApplicationID: id,
		ProcessID:     record.Process.ID,
		Attributes:    map[string]string{"status": string(status), "userId": app.UserID},
		OccurredAt:    now,
	})
	return &app, nil
}

func (s *ApplicationService) loadReadable(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApplicationWithProcess, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.guard.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && record.Application.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another user")
	}
	return record, nil
}

func (s *ApplicationService) gateFailure(err error) error {
	if s.metrics != nil {
		s.metrics.RecordGateRejection(appErrors.FromError(err).Code)
	}
	return err
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

func requireFinalized(steps models.ApplicationSteps) error {
	switch {
	case steps.Personal == nil || !steps.Personal.StepCompleted:
		return stepNotFinalized(models.StepPersonalData)
	case steps.Registration == nil || !steps.Registration.StepCompleted:
		return stepNotFinalized(models.StepRegistrationData)
	case steps.Academic == nil || !steps.Academic.StepCompleted:
		return stepNotFinalized(models.StepAcademicData)
	}
	return nil
}

func stepNotFinalized(step models.Step) error {
	return appErrors.Clone(appErrors.ErrStepNotFinalized, fmt.Sprintf("step %s has not been finalized", step))
}

func eligibilityKey(registration *models.RegistrationDataApplication) (*models.DocumentModality, *models.VacancyType, error) {
	modality, vacancy, err := registration.EligibilityKey()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration modality")
	}
	return modality, vacancy, nil
}
