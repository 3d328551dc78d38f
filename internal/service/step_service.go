package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

type stepStore interface {
	stepReader
	FindPersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error)
	FindOrCreatePersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error)
	SavePersonal(ctx context.Context, rec *models.PersonalDataApplication) error
	FindOrCreateRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error)
	SaveRegistration(ctx context.Context, rec *models.RegistrationDataApplication) error
	FindAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error)
	FindOrCreateAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error)
	SaveAcademic(ctx context.Context, rec *models.AcademicDataApplication) error
}

// StepService edits and finalizes the personal, registration and academic steps.
// Editing a step reopens it; finalizing runs the completion gate for that step.
type StepService struct {
	steps     stepStore
	uploads   uploadLister
	catalog   *DocumentCatalog
	guard     *WindowGuard
	audit     auditLogger
	validator *validator.Validate
	metrics   gateRecorder
	logger    *zap.Logger
}

// NewStepService constructs the service.
func NewStepService(steps stepStore, uploads uploadLister, catalog *DocumentCatalog, guard *WindowGuard, audit auditLogger, validate *validator.Validate, metrics gateRecorder, logger *zap.Logger) *StepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StepService{
		steps:     steps,
		uploads:   uploads,
		catalog:   catalog,
		guard:     guard,
		audit:     audit,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// UpdatePersonal applies a partial personal data update.
func (s *StepService) UpdatePersonal(ctx context.Context, id string, req dto.PersonalDataRequest, actor *models.JWTClaims) (*models.PersonalDataApplication, error) {
	if _, err := s.beginEdit(ctx, id, req, actor); err != nil {
		return nil, err
	}
	rec, err := s.steps.FindOrCreatePersonal(ctx, id)
	if err != nil {
		return nil, internalStepError(err, models.StepPersonalData)
	}
	applyPersonal(rec, req)
	rec.StepCompleted = false
	if err := s.steps.SavePersonal(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepPersonalData)
	}
	return rec, nil
}

// UpdateRegistration applies a partial registration update.
func (s *StepService) UpdateRegistration(ctx context.Context, id string, req dto.RegistrationDataRequest, actor *models.JWTClaims) (*models.RegistrationDataApplication, error) {
	if _, err := s.beginEdit(ctx, id, req, actor); err != nil {
		return nil, err
	}
	rec, err := s.steps.FindOrCreateRegistration(ctx, id)
	if err != nil {
		return nil, internalStepError(err, models.StepRegistrationData)
	}
	before := choiceOf(rec)
	applyRegistration(rec, req)
	rec.StepCompleted = false
	if err := s.steps.SaveRegistration(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepRegistrationData)
	}
	if err := s.reopenAcademicIfChanged(ctx, id, before, choiceOf(rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateAcademic applies a partial academic data update.
func (s *StepService) UpdateAcademic(ctx context.Context, id string, req dto.AcademicDataRequest, actor *models.JWTClaims) (*models.AcademicDataApplication, error) {
	if _, err := s.beginEdit(ctx, id, req, actor); err != nil {
		return nil, err
	}
	rec, err := s.steps.FindOrCreateAcademic(ctx, id)
	if err != nil {
		return nil, internalStepError(err, models.StepAcademicData)
	}
	applyAcademic(rec, req)
	rec.StepCompleted = false
	if err := s.steps.SaveAcademic(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepAcademicData)
	}
	return rec, nil
}

// FinalizePersonal completes the personal data step. Its documents apply to
// every applicant, so the gate narrows by modality only once registration is known.
func (s *StepService) FinalizePersonal(ctx context.Context, id string, req *dto.PersonalDataRequest, actor *models.JWTClaims) (*models.PersonalDataApplication, error) {
	record, err := s.beginEdit(ctx, id, req, actor)
	if err != nil {
		return nil, err
	}
	rec, err := s.steps.FindPersonal(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, internalStepError(err, models.StepPersonalData)
		}
		rec = &models.PersonalDataApplication{ApplicationID: id}
	}
	if req != nil {
		applyPersonal(rec, *req)
	}
	if err := s.requireComplete(models.StepPersonalData, rec); err != nil {
		return nil, err
	}

	registration, err := s.steps.FindRegistration(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalStepError(err, models.StepRegistrationData)
	}
	if err := s.gate(ctx, record, models.StepPersonalData, registration); err != nil {
		return nil, err
	}

	if rec.ID == "" {
		created, err := s.steps.FindOrCreatePersonal(ctx, id)
		if err != nil {
			return nil, internalStepError(err, models.StepPersonalData)
		}
		rec.ID, rec.CreatedAt = created.ID, created.CreatedAt
	}
	rec.StepCompleted = true
	if err := s.steps.SavePersonal(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepPersonalData)
	}
	s.auditFinalize(ctx, actor, id, models.StepPersonalData)
	return rec, nil
}

// FinalizeRegistration completes the registration step. The submitted
// modality and vacancy type decide which documents are mandatory.
func (s *StepService) FinalizeRegistration(ctx context.Context, id string, req *dto.RegistrationDataRequest, actor *models.JWTClaims) (*models.RegistrationDataApplication, error) {
	record, err := s.beginEdit(ctx, id, req, actor)
	if err != nil {
		return nil, err
	}
	rec, err := s.steps.FindRegistration(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, internalStepError(err, models.StepRegistrationData)
		}
		rec = &models.RegistrationDataApplication{ApplicationID: id}
	}
	before := choiceOf(rec)
	if req != nil {
		applyRegistration(rec, *req)
	}
	if err := s.requireComplete(models.StepRegistrationData, rec); err != nil {
		return nil, err
	}
	if err := s.checkRegistrationChoices(ctx, &record.Process, rec); err != nil {
		return nil, err
	}
	if err := s.gate(ctx, record, models.StepRegistrationData, rec); err != nil {
		return nil, err
	}

	if rec.ID == "" {
		created, err := s.steps.FindOrCreateRegistration(ctx, id)
		if err != nil {
			return nil, internalStepError(err, models.StepRegistrationData)
		}
		rec.ID, rec.CreatedAt = created.ID, created.CreatedAt
	}
	rec.StepCompleted = true
	if err := s.steps.SaveRegistration(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepRegistrationData)
	}
	if err := s.reopenAcademicIfChanged(ctx, id, before, choiceOf(rec)); err != nil {
		return nil, err
	}
	s.auditFinalize(ctx, actor, id, models.StepRegistrationData)
	return rec, nil
}

// FinalizeAcademic completes the academic step. Registration must be finalized first.
func (s *StepService) FinalizeAcademic(ctx context.Context, id string, req *dto.AcademicDataRequest, actor *models.JWTClaims) (*models.AcademicDataApplication, error) {
	record, err := s.beginEdit(ctx, id, req, actor)
	if err != nil {
		return nil, err
	}
	registration, err := s.steps.FindRegistration(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalStepError(err, models.StepRegistrationData)
	}
	if registration == nil || !registration.StepCompleted {
		return nil, s.gateFailure(stepNotFinalized(models.StepRegistrationData))
	}

	rec, err := s.steps.FindAcademic(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, internalStepError(err, models.StepAcademicData)
		}
		rec = &models.AcademicDataApplication{ApplicationID: id}
	}
	if req != nil {
		applyAcademic(rec, *req)
	}
	if err := s.requireComplete(models.StepAcademicData, rec); err != nil {
		return nil, err
	}
	if err := s.gate(ctx, record, models.StepAcademicData, registration); err != nil {
		return nil, err
	}

	if rec.ID == "" {
		created, err := s.steps.FindOrCreateAcademic(ctx, id)
		if err != nil {
			return nil, internalStepError(err, models.StepAcademicData)
		}
		rec.ID, rec.CreatedAt = created.ID, created.CreatedAt
	}
	rec.StepCompleted = true
	if err := s.steps.SaveAcademic(ctx, rec); err != nil {
		return nil, internalStepError(err, models.StepAcademicData)
	}
	s.auditFinalize(ctx, actor, id, models.StepAcademicData)
	return rec, nil
}

// beginEdit runs the window guard, refuses submitted applications and validates
// the request payload when one is given.
func (s *StepService) beginEdit(ctx context.Context, id string, req interface{}, actor *models.JWTClaims) (*models.ApplicationWithProcess, error) {
	record, err := s.guard.Check(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := requireUnsubmitted(record); err != nil {
		return nil, err
	}
	if req != nil && !isNilPointer(req) {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid step payload", validationDetails(err))
		}
	}
	return record, nil
}

// reopenAcademicIfChanged clears the academic step when the modality or vacancy
// type it was gated against no longer holds.
func (s *StepService) reopenAcademicIfChanged(ctx context.Context, id string, before, after registrationChoice) error {
	if before == after {
		return nil
	}
	academic, err := s.steps.FindAcademic(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return internalStepError(err, models.StepAcademicData)
	}
	if !academic.StepCompleted {
		return nil
	}
	academic.StepCompleted = false
	if err := s.steps.SaveAcademic(ctx, academic); err != nil {
		return internalStepError(err, models.StepAcademicData)
	}
	s.logger.Info("academic step reopened after registration change", zap.String("application_id", id))
	return nil
}

func (s *StepService) requireComplete(step models.Step, rec interface{}) error {
	if err := s.validator.Struct(rec); err != nil {
		return appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("step %s is incomplete", step), validationDetails(err))
	}
	return nil
}

func (s *StepService) checkRegistrationChoices(ctx context.Context, process *models.Process, rec *models.RegistrationDataApplication) error {
	modality, _, err := eligibilityKey(rec)
	if err != nil {
		return err
	}
	if modality != nil && process.VacanciesFor(*modality) <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("selection process offers no %s vacancies", *modality))
	}
	line, err := s.catalog.ResearchLine(ctx, process.ID, *rec.ResearchLineID)
	if err != nil {
		return err
	}
	for _, tutorID := range rec.TutorPreferences {
		if !line.HasTutor(tutorID) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tutor %s does not belong to research line %s", tutorID, line.Name))
		}
	}
	return nil
}

// gate enforces the completion gate for a step using the registration choices
// that are known at this point.
func (s *StepService) gate(ctx context.Context, record *models.ApplicationWithProcess, step models.Step, registration *models.RegistrationDataApplication) error {
	modality, vacancy, err := eligibilityKey(registration)
	if err != nil {
		return err
	}
	docs, err := s.catalog.Documents(ctx, record.Process.ID)
	if err != nil {
		return err
	}
	uploads, err := s.uploads.ListByApplication(ctx, record.Application.ID, &step)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploaded documents")
	}
	if err := RequireDocuments(step, uploads, FilterDocuments(docs, step, modality, vacancy)); err != nil {
		return s.gateFailure(err)
	}
	return nil
}

func (s *StepService) gateFailure(err error) error {
	if s.metrics != nil {
		s.metrics.RecordGateRejection(appErrors.FromError(err).Code)
	}
	return err
}

func (s *StepService) auditFinalize(ctx context.Context, actor *models.JWTClaims, id string, step models.Step) {
	emitAudit(ctx, s.audit, s.logger, "step-service", auditEntry(actor, models.AuditActionStepFinalize, "application", id,
		map[string]string{"step": string(step)}))
}

// registrationChoice is the part of a registration that decides document eligibility.
type registrationChoice struct {
	modality     models.Modality
	modalityType models.ModalityType
	vacancy      models.VacancyType
}

func choiceOf(rec *models.RegistrationDataApplication) registrationChoice {
	var c registrationChoice
	if rec.Modality != nil {
		c.modality = *rec.Modality
	}
	if rec.ModalityType != nil {
		c.modalityType = *rec.ModalityType
	}
	if rec.VacancyType != nil {
		c.vacancy = *rec.VacancyType
	}
	return c
}

func requireUnsubmitted(record *models.ApplicationWithProcess) error {
	if record.Application.ApplicationFilled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "application has already been submitted")
	}
	return nil
}

func internalStepError(err error, step models.Step) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to persist step %s", step))
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return details
}

func isNilPointer(v interface{}) bool {
	switch p := v.(type) {
	case *dto.PersonalDataRequest:
		return p == nil
	case *dto.RegistrationDataRequest:
		return p == nil
	case *dto.AcademicDataRequest:
		return p == nil
	}
	return false
}

func applyPersonal(rec *models.PersonalDataApplication, req dto.PersonalDataRequest) {
	setIfPresent(&rec.FullName, req.FullName)
	setIfPresent(&rec.SocialName, req.SocialName)
	setIfPresent(&rec.DocumentID, req.DocumentID)
	if req.BirthDate != nil {
		rec.BirthDate = req.BirthDate
	}
	setIfPresent(&rec.Nationality, req.Nationality)
	setIfPresent(&rec.Email, req.Email)
	setIfPresent(&rec.Phone, req.Phone)
	setIfPresent(&rec.Address, req.Address)
	setIfPresent(&rec.City, req.City)
	setIfPresent(&rec.State, req.State)
	setIfPresent(&rec.PostalCode, req.PostalCode)
}

func applyRegistration(rec *models.RegistrationDataApplication, req dto.RegistrationDataRequest) {
	if req.Modality != nil {
		rec.Modality = req.Modality
	}
	if req.ModalityType != nil {
		rec.ModalityType = req.ModalityType
	}
	if req.VacancyType != nil {
		rec.VacancyType = req.VacancyType
	}
	if req.ResearchLineID != nil {
		if rec.ResearchLineID == nil || *rec.ResearchLineID != *req.ResearchLineID {
			rec.TutorPreferences = nil
		}
		rec.ResearchLineID = req.ResearchLineID
	}
	if req.TutorPreferences != nil {
		rec.TutorPreferences = append([]string(nil), req.TutorPreferences...)
	}
}

func applyAcademic(rec *models.AcademicDataApplication, req dto.AcademicDataRequest) {
	setIfPresent(&rec.Course, req.Course)
	setIfPresent(&rec.Area, req.Area)
	setIfPresent(&rec.Institution, req.Institution)
	if req.ConclusionYear != nil {
		rec.ConclusionYear = req.ConclusionYear
	}
}

func setIfPresent(dst **string, src *string) {
	if src != nil {
		*dst = src
	}
}
