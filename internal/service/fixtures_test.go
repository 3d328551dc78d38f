package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	"github.com/noah-isme/admissions-api/internal/repository"
	"github.com/noah-isme/admissions-api/pkg/events"
	"github.com/noah-isme/admissions-api/pkg/jobs"
	"github.com/noah-isme/admissions-api/pkg/storage"
)

type memApplications struct {
	mu        sync.Mutex
	apps      map[string]*models.Application
	processes map[string]*models.Process
}

func (m *memApplications) GetWithProcess(ctx context.Context, id string) (*models.ApplicationWithProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	process, ok := m.processes[app.ProcessID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ApplicationWithProcess{Application: *app, Process: *process}, nil
}

func (m *memApplications) Create(ctx context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.apps {
		if existing.UserID == app.UserID && existing.ProcessID == app.ProcessID {
			return repository.ErrDuplicate
		}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.UpdatedAt = app.CreatedAt
	clone := *app
	m.apps[app.ID] = &clone
	return nil
}

func (m *memApplications) MarkFilled(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || !app.Active || app.ApplicationFilled || app.Status != nil {
		return sql.ErrNoRows
	}
	app.ApplicationFilled = true
	app.UpdatedAt = at
	return nil
}

func (m *memApplications) Review(ctx context.Context, id string, status models.ApplicationStatus, reason *string, reviewer string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || !app.Active || !app.ApplicationFilled || app.Status != nil {
		return sql.ErrNoRows
	}
	app.Status = &status
	app.ReasonForRejection = reason
	app.ReviewedBy = &reviewer
	app.ReviewedAt = &at
	return nil
}

func (m *memApplications) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Application
	for _, app := range m.apps {
		switch {
		case !app.Active,
			filter.ProcessID != "" && app.ProcessID != filter.ProcessID,
			filter.UserID != "" && app.UserID != filter.UserID,
			filter.Filled != nil && app.ApplicationFilled != *filter.Filled,
			filter.Status != nil && (app.Status == nil || *app.Status != *filter.Status):
			continue
		}
		out = append(out, *app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memApplications) SweepExpired(ctx context.Context, now time.Time, reason string) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept []models.Application
	for _, app := range m.apps {
		process := m.processes[app.ProcessID]
		if !app.Active || app.ApplicationFilled || app.Status != nil || !process.EndDate.Before(now) {
			continue
		}
		rejected := models.ApplicationRejected
		msg := reason
		app.ApplicationFilled = true
		app.Status = &rejected
		app.ReasonForRejection = &msg
		app.UpdatedAt = now
		swept = append(swept, models.Application{ID: app.ID, UserID: app.UserID, ProcessID: app.ProcessID})
	}
	return swept, nil
}

type memCatalog struct {
	processes map[string]*models.Process
	documents map[string][]models.ProcessDocument
	lines     map[string]*models.ResearchLine
	listCalls int
}

func (m *memCatalog) GetByID(ctx context.Context, id string) (*models.Process, error) {
	process, ok := m.processes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *process
	return &clone, nil
}

func (m *memCatalog) ListDocuments(ctx context.Context, processID string) ([]models.ProcessDocument, error) {
	m.listCalls++
	return append([]models.ProcessDocument(nil), m.documents[processID]...), nil
}

func (m *memCatalog) GetResearchLine(ctx context.Context, processID, researchLineID string) (*models.ResearchLine, error) {
	line, ok := m.lines[researchLineID]
	if !ok || line.ProcessID != processID {
		return nil, sql.ErrNoRows
	}
	return line, nil
}

type memSteps struct {
	personal     map[string]models.PersonalDataApplication
	registration map[string]models.RegistrationDataApplication
	academic     map[string]models.AcademicDataApplication
	saves        int
}

func newMemSteps() *memSteps {
	return &memSteps{
		personal:     map[string]models.PersonalDataApplication{},
		registration: map[string]models.RegistrationDataApplication{},
		academic:     map[string]models.AcademicDataApplication{},
	}
}

func (m *memSteps) FindPersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error) {
	rec, ok := m.personal[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (m *memSteps) FindOrCreatePersonal(ctx context.Context, applicationID string) (*models.PersonalDataApplication, error) {
	if _, ok := m.personal[applicationID]; !ok {
		m.personal[applicationID] = models.PersonalDataApplication{ID: uuid.NewString(), ApplicationID: applicationID}
	}
	return m.FindPersonal(ctx, applicationID)
}

func (m *memSteps) SavePersonal(ctx context.Context, rec *models.PersonalDataApplication) error {
	m.saves++
	m.personal[rec.ApplicationID] = *rec
	return nil
}

func (m *memSteps) FindRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error) {
	rec, ok := m.registration[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (m *memSteps) FindOrCreateRegistration(ctx context.Context, applicationID string) (*models.RegistrationDataApplication, error) {
	if _, ok := m.registration[applicationID]; !ok {
		m.registration[applicationID] = models.RegistrationDataApplication{ID: uuid.NewString(), ApplicationID: applicationID}
	}
	return m.FindRegistration(ctx, applicationID)
}

func (m *memSteps) SaveRegistration(ctx context.Context, rec *models.RegistrationDataApplication) error {
	m.saves++
	m.registration[rec.ApplicationID] = *rec
	return nil
}

func (m *memSteps) FindAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error) {
	rec, ok := m.academic[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (m *memSteps) FindOrCreateAcademic(ctx context.Context, applicationID string) (*models.AcademicDataApplication, error) {
	if _, ok := m.academic[applicationID]; !ok {
		m.academic[applicationID] = models.AcademicDataApplication{ID: uuid.NewString(), ApplicationID: applicationID}
	}
	return m.FindAcademic(ctx, applicationID)
}

func (m *memSteps) SaveAcademic(ctx context.Context, rec *models.AcademicDataApplication) error {
	m.saves++
	m.academic[rec.ApplicationID] = *rec
	return nil
}

func (m *memSteps) LoadAll(ctx context.Context, applicationID string) (models.ApplicationSteps, error) {
	var steps models.ApplicationSteps
	if rec, err := m.FindPersonal(ctx, applicationID); err == nil {
		steps.Personal = rec
	}
	if rec, err := m.FindRegistration(ctx, applicationID); err == nil {
		steps.Registration = rec
	}
	if rec, err := m.FindAcademic(ctx, applicationID); err == nil {
		steps.Academic = rec
	}
	return steps, nil
}

type memUploads struct {
	mu   sync.Mutex
	docs map[string]*models.UserDocumentApplication
	seq  int
}

func (m *memUploads) Create(ctx context.Context, doc *models.UserDocumentApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.ApplicationID == doc.ApplicationID && existing.DocumentID == doc.DocumentID {
			return repository.ErrDuplicate
		}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.seq++
	doc.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memUploads) GetByID(ctx context.Context, id string) (*models.UserDocumentApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *doc
	return &clone, nil
}

func (m *memUploads) ListByApplication(ctx context.Context, applicationID string, step *models.Step) ([]models.UserDocumentApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserDocumentApplication
	for _, doc := range m.docs {
		if doc.ApplicationID != applicationID {
			continue
		}
		if step != nil && doc.Step != *step {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memUploads) ReplaceUpload(ctx context.Context, doc *models.UserDocumentApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.docs[doc.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.StorageKey = doc.StorageKey
	stored.Filename = doc.Filename
	stored.Quantity = doc.Quantity
	stored.Status = nil
	stored.ReasonForRejection = nil
	doc.Status = nil
	doc.ReasonForRejection = nil
	return nil
}

func (m *memUploads) Analyse(ctx context.Context, id string, status models.AnalysisStatus, reason *string, analyzedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.docs[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = &status
	stored.ReasonForRejection = reason
	stored.AnalyzedBy = &analyzedBy
	stored.AnalyzedAt = &at
	return nil
}

func (m *memUploads) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, id)
	return nil
}

type objectStoreStub struct {
	objects   map[string]bool
	deleted   []string
	deleteErr error
	presigned []string
}

func (s *objectStoreStub) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	s.presigned = append(s.presigned, key)
	return "https://storage.local/upload/" + key, time.Now().Add(time.Minute), nil
}

func (s *objectStoreStub) PresignDownload(ctx context.Context, key, filename string) (string, time.Time, error) {
	return "https://storage.local/download/" + key, time.Now().Add(5 * time.Minute), nil
}

func (s *objectStoreStub) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	if !s.objects[key] {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.ObjectInfo{Key: key, Size: 1024}, nil
}

func (s *objectStoreStub) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

type enqueuerStub struct {
	jobs []jobs.Job
}

func (e *enqueuerStub) Enqueue(job jobs.Job) error {
	e.jobs = append(e.jobs, job)
	return nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

type metricsStub struct {
	gates    []string
	swept    []int
	cleanups int
}

func (m *metricsStub) RecordGateRejection(code string) { m.gates = append(m.gates, code) }

func (m *metricsStub) ObserveSweep(rejected int, duration time.Duration) {
	m.swept = append(m.swept, rejected)
}

func (m *metricsStub) RecordCleanupFailure() { m.cleanups++ }

type publisherStub struct {
	events []events.Event
}

func (p *publisherStub) Publish(ctx context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) Close() error { return nil }

var (
	applicant = &models.JWTClaims{UserID: "user-1", Role: models.RoleApplicant}
	stranger  = &models.JWTClaims{UserID: "user-2", Role: models.RoleApplicant}
	admin     = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
)

func float(v float64) *float64 { return &v }

func str(v string) *string { return &v }

func allVacancies() models.EnumSet[models.VacancyType] {
	return models.NewEnumSet(models.VacancyBroadCompetition, models.VacancyRacialQuota, models.VacancyDeficientQuota,
		models.VacancyHumanitarianPolices, models.VacancyIndigenousQuota)
}

func allModalities() models.EnumSet[models.DocumentModality] {
	return models.NewEnumSet(models.DocumentModalityDoctorate, models.DocumentModalityRegularMaster, models.DocumentModalitySpecialMaster)
}

func catalogDoc(id, name string, step models.Step, required bool, modalities models.EnumSet[models.DocumentModality], vacancies models.EnumSet[models.VacancyType]) models.ProcessDocument {
	return models.ProcessDocument{
		Document: models.Document{
			ID: id, Name: name, Step: step, Required: required,
			Modalities: modalities, VacancyTypes: vacancies,
		},
		ProcessID: "proc-1",
	}
}

type fixture struct {
	now       time.Time
	process   *models.Process
	apps      *memApplications
	catalog   *memCatalog
	steps     *memSteps
	uploads   *memUploads
	store     *objectStoreStub
	tickets   *storage.UploadTicketSigner
	queue     *enqueuerStub
	audit     *auditStub
	metrics   *metricsStub
	publisher *publisherStub
	guard     *WindowGuard
	appSvc    *ApplicationService
	stepSvc   *StepService
	docSvc    *UserDocumentService
	sweepSvc  *SweepService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	f.process = &models.Process{
		ID:                     "proc-1",
		Name:                   "Graduate Program 2026",
		StartDate:              f.now.Add(-24 * time.Hour),
		EndDate:                f.now.Add(24 * time.Hour),
		DoctorateVacancies:     5,
		RegularMasterVacancies: 10,
		SpecialMasterVacancies: 0,
		Status:                 models.ProcessStatusActive,
		Active:                 true,
	}
	processes := map[string]*models.Process{f.process.ID: f.process}
	f.apps = &memApplications{apps: map[string]*models.Application{}, processes: processes}
	f.catalog = &memCatalog{
		processes: processes,
		documents: map[string][]models.ProcessDocument{
			"proc-1": {
				catalogDoc("doc-identity", "Identity document", models.StepPersonalData, true, allModalities(), allVacancies()),
				catalogDoc("doc-racial", "Racial self-declaration", models.StepRegistrationData, true, allModalities(),
					models.NewEnumSet(models.VacancyRacialQuota)),
				catalogDoc("doc-bachelor", "Bachelor diploma", models.StepAcademicData, true,
					models.NewEnumSet(models.DocumentModalityRegularMaster, models.DocumentModalitySpecialMaster), allVacancies()),
				catalogDoc("doc-master", "Master diploma", models.StepAcademicData, true,
					models.NewEnumSet(models.DocumentModalityDoctorate), allVacancies()),
				catalogDoc("doc-cv", "Curriculum vitae", models.StepCurriculum, true, allModalities(), allVacancies()),
				func() models.ProcessDocument {
					d := catalogDoc("doc-article", "Published article", models.StepCurriculum, false, allModalities(), allVacancies())
					d.Score, d.MaximumScore = float(2), float(10)
					return d
				}(),
			},
		},
		lines: map[string]*models.ResearchLine{
			"line-1": {ID: "line-1", ProcessID: "proc-1", Name: "Distributed Systems", Tutors: []models.Tutor{
				{ID: "tutor-1", ResearchLineID: "line-1", Name: "Ada"},
				{ID: "tutor-2", ResearchLineID: "line-1", Name: "Alan"},
			}},
		},
	}
	f.steps = newMemSteps()
	f.uploads = &memUploads{docs: map[string]*models.UserDocumentApplication{}}
	f.store = &objectStoreStub{objects: map[string]bool{}}
	f.tickets = storage.NewUploadTicketSigner("test-secret", time.Hour)
	f.queue = &enqueuerStub{}
	f.audit = &auditStub{}
	f.metrics = &metricsStub{}
	f.publisher = &publisherStub{}

	clock := func() time.Time { return f.now }
	f.guard = NewWindowGuard(f.apps, f.metrics, clock)
	docCatalog := NewDocumentCatalog(f.catalog, nil, zap.NewNop())
	validate := validator.New()

	f.appSvc = NewApplicationService(ApplicationServiceDeps{
		Applications: f.apps,
		Steps:        f.steps,
		Uploads:      f.uploads,
		Catalog:      docCatalog,
		Guard:        f.guard,
		Publisher:    f.publisher,
		Audit:        f.audit,
		Validator:    validate,
		Metrics:      f.metrics,
	})
	f.stepSvc = NewStepService(f.steps, f.uploads, docCatalog, f.guard, f.audit, validate, f.metrics, zap.NewNop())
	f.docSvc = NewUserDocumentService(UserDocumentServiceDeps{
		Documents: f.uploads,
		Catalog:   docCatalog,
		Guard:     f.guard,
		Store:     f.store,
		Tickets:   f.tickets,
		Cleanup:   f.queue,
		Audit:     f.audit,
		Validator: validate,
		Metrics:   f.metrics,
	})
	f.sweepSvc = NewSweepService(f.apps, f.publisher, f.audit, f.metrics, zap.NewNop(), SweepConfig{})
	f.sweepSvc.now = clock
	return f
}

func (f *fixture) apply(t *testing.T) string {
	t.Helper()
	app, err := f.appSvc.Apply(context.Background(), "proc-1", applicant)
	require.NoError(t, err)
	return app.ID
}

func (f *fixture) upload(t *testing.T, applicationID, documentID string, quantity *string) *models.UserDocumentApplication {
	t.Helper()
	handshake, err := f.docSvc.RequestUpload(context.Background(), applicationID, dto.UploadHandshakeRequest{
		DocumentID: documentID, Filename: documentID + ".pdf",
	}, applicant)
	require.NoError(t, err)
	f.store.objects[handshake.StorageKey] = true

	doc, err := f.docSvc.Create(context.Background(), applicationID, dto.CreateUserDocumentRequest{
		DocumentID: documentID,
		StorageKey: handshake.StorageKey,
		Ticket:     handshake.Ticket,
		Filename:   documentID + ".pdf",
		Quantity:   quantity,
	}, applicant)
	require.NoError(t, err)
	return doc
}

func personalPayload() *dto.PersonalDataRequest {
	birth := time.Date(1995, 5, 17, 0, 0, 0, 0, time.UTC)
	return &dto.PersonalDataRequest{
		FullName:    str("Grace Hopper"),
		DocumentID:  str("123.456.789-00"),
		BirthDate:   &birth,
		Nationality: str("Brazilian"),
		Email:       str("grace@example.com"),
	}
}

func registrationPayload(modality models.Modality, modalityType models.ModalityType, vacancy models.VacancyType) *dto.RegistrationDataRequest {
	return &dto.RegistrationDataRequest{
		Modality:         &modality,
		ModalityType:     &modalityType,
		VacancyType:      &vacancy,
		ResearchLineID:   str("line-1"),
		TutorPreferences: []string{"tutor-2", "tutor-1"},
	}
}

func academicPayload() *dto.AcademicDataRequest {
	year := 2020
	return &dto.AcademicDataRequest{
		Course:         str("Computer Science"),
		Institution:    str("State University"),
		ConclusionYear: &year,
	}
}

// fillAll drives an application through every step and submits it as a regular
// master's broad-competition applicant.
func (f *fixture) fillAll(t *testing.T, applicationID string) {
	t.Helper()
	ctx := context.Background()
	f.upload(t, applicationID, "doc-identity", nil)
	_, err := f.stepSvc.FinalizePersonal(ctx, applicationID, personalPayload(), applicant)
	require.NoError(t, err)
	_, err = f.stepSvc.FinalizeRegistration(ctx, applicationID,
		registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition), applicant)
	require.NoError(t, err)
	f.upload(t, applicationID, "doc-bachelor", nil)
	_, err = f.stepSvc.FinalizeAcademic(ctx, applicationID, academicPayload(), applicant)
	require.NoError(t, err)
	f.upload(t, applicationID, "doc-cv", nil)
	_, err = f.appSvc.FinishFill(ctx, applicationID, applicant)
	require.NoError(t, err)
}

func (f *fixture) application(t *testing.T, id string) models.Application {
	t.Helper()
	record, err := f.apps.GetWithProcess(context.Background(), id)
	require.NoError(t, err, fmt.Sprintf("application %s", id))
	return record.Application
}
