package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

func TestFinalizePersonalRequiresDocuments(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	_, err := f.stepSvc.FinalizePersonal(ctx, id, personalPayload(), applicant)
	require.ErrorIs(t, err, appErrors.ErrMissingDocuments)
	require.Equal(t, []string{"Identity document"}, appErrors.FromError(err).Details)
	require.Zero(t, f.steps.saves)
	require.Empty(t, f.steps.personal)
	require.Equal(t, []string{appErrors.ErrMissingDocuments.Code}, f.metrics.gates)

	upload := f.upload(t, id, "doc-identity", nil)
	rec, err := f.stepSvc.FinalizePersonal(ctx, id, personalPayload(), applicant)
	require.NoError(t, err)
	require.True(t, rec.StepCompleted)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, "Grace Hopper", *rec.FullName)

	require.NoError(t, f.docSvc.Delete(ctx, id, upload.ID, applicant))
	_, err = f.stepSvc.FinalizePersonal(ctx, id, nil, applicant)
	require.ErrorIs(t, err, appErrors.ErrMissingDocuments)
}

func TestFinalizePersonalRejectsIncompleteData(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	f.upload(t, id, "doc-identity", nil)

	_, err := f.stepSvc.FinalizePersonal(context.Background(), id, &dto.PersonalDataRequest{FullName: str("Grace Hopper")}, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, appErrors.FromError(err).Details, "Email: required")
	require.Zero(t, f.steps.saves)
}

func TestFinalizeRegistrationUsesChosenVacancy(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()
	racial := registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyRacialQuota)

	_, err := f.stepSvc.FinalizeRegistration(ctx, id, racial, applicant)
	require.ErrorIs(t, err, appErrors.ErrMissingDocuments)
	require.Equal(t, []string{"Racial self-declaration"}, appErrors.FromError(err).Details)
	require.Empty(t, f.steps.registration)

	f.upload(t, id, "doc-racial", nil)
	rec, err := f.stepSvc.FinalizeRegistration(ctx, id, racial, applicant)
	require.NoError(t, err)
	require.True(t, rec.StepCompleted)
	require.Equal(t, []string{"tutor-2", "tutor-1"}, []string(rec.TutorPreferences))
}

func TestFinalizeRegistrationValidatesChoices(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	_, err := f.stepSvc.FinalizeRegistration(ctx, id,
		registrationPayload(models.ModalityMaster, models.ModalityTypeSpecial, models.VacancyBroadCompetition), applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, err.Error(), "no SPECIAL_MASTER vacancies")

	foreign := registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition)
	foreign.TutorPreferences = []string{"tutor-9"}
	_, err = f.stepSvc.FinalizeRegistration(ctx, id, foreign, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, err.Error(), "tutor-9")

	unknownLine := registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition)
	unknownLine.ResearchLineID = str("line-9")
	_, err = f.stepSvc.FinalizeRegistration(ctx, id, unknownLine, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	incomplete := registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition)
	incomplete.TutorPreferences = nil
	_, err = f.stepSvc.FinalizeRegistration(ctx, id, incomplete, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Zero(t, f.steps.saves)
}

func TestFinalizeAcademicRequiresRegistration(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	_, err := f.stepSvc.FinalizeAcademic(ctx, id, academicPayload(), applicant)
	require.ErrorIs(t, err, appErrors.ErrStepNotFinalized)

	_, err = f.stepSvc.FinalizeRegistration(ctx, id,
		registrationPayload(models.ModalityDoctorate, models.ModalityTypeRegular, models.VacancyBroadCompetition), applicant)
	require.NoError(t, err)

	// A doctorate applicant needs the master diploma, not the bachelor one.
	f.upload(t, id, "doc-bachelor", nil)
	_, err = f.stepSvc.FinalizeAcademic(ctx, id, academicPayload(), applicant)
	require.ErrorIs(t, err, appErrors.ErrMissingDocuments)
	require.Equal(t, []string{"Master diploma"}, appErrors.FromError(err).Details)

	f.upload(t, id, "doc-master", nil)
	rec, err := f.stepSvc.FinalizeAcademic(ctx, id, academicPayload(), applicant)
	require.NoError(t, err)
	require.True(t, rec.StepCompleted)
}

func TestUpdateReopensFinalizedStep(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	f.upload(t, id, "doc-identity", nil)
	_, err := f.stepSvc.FinalizePersonal(ctx, id, personalPayload(), applicant)
	require.NoError(t, err)

	rec, err := f.stepSvc.UpdatePersonal(ctx, id, dto.PersonalDataRequest{City: str("Recife")}, applicant)
	require.NoError(t, err)
	require.False(t, rec.StepCompleted)
	require.Equal(t, "Grace Hopper", *rec.FullName)

	_, err = f.stepSvc.UpdatePersonal(ctx, id, dto.PersonalDataRequest{Email: str("not-an-email")}, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUpdateRegistrationClearsTutorsOnLineChange(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	_, err := f.stepSvc.UpdateRegistration(ctx, id,
		*registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition), applicant)
	require.NoError(t, err)

	rec, err := f.stepSvc.UpdateRegistration(ctx, id, dto.RegistrationDataRequest{ResearchLineID: str("line-2")}, applicant)
	require.NoError(t, err)
	require.Empty(t, rec.TutorPreferences)
}

func TestStepEditsRefusedAfterSubmission(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	f.fillAll(t, id)
	ctx := context.Background()

	_, err := f.stepSvc.UpdateAcademic(ctx, id, dto.AcademicDataRequest{Area: str("Databases")}, applicant)
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.stepSvc.UpdatePersonal(ctx, id, dto.PersonalDataRequest{City: str("Recife")}, stranger)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRegistrationChangeReopensAcademic(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	f.upload(t, id, "doc-identity", nil)
	_, err := f.stepSvc.FinalizePersonal(ctx, id, personalPayload(), applicant)
	require.NoError(t, err)
	_, err = f.stepSvc.FinalizeRegistration(ctx, id,
		registrationPayload(models.ModalityMaster, models.ModalityTypeRegular, models.VacancyBroadCompetition), applicant)
	require.NoError(t, err)
	f.upload(t, id, "doc-bachelor", nil)
	_, err = f.stepSvc.FinalizeAcademic(ctx, id, academicPayload(), applicant)
	require.NoError(t, err)

	_, err = f.stepSvc.UpdateRegistration(ctx, id, dto.RegistrationDataRequest{TutorPreferences: []string{"tutor-1"}}, applicant)
	require.NoError(t, err)
	require.True(t, f.steps.academic[id].StepCompleted)

	_, err = f.stepSvc.FinalizeRegistration(ctx, id,
		registrationPayload(models.ModalityDoctorate, models.ModalityTypeRegular, models.VacancyBroadCompetition), applicant)
	require.NoError(t, err)
	require.False(t, f.steps.academic[id].StepCompleted)

	f.upload(t, id, "doc-cv", nil)
	_, err = f.appSvc.FinishFill(ctx, id, applicant)
	require.ErrorIs(t, err, appErrors.ErrStepNotFinalized)
	require.Contains(t, err.Error(), string(models.StepAcademicData))

	_, err = f.stepSvc.FinalizeAcademic(ctx, id, nil, applicant)
	require.ErrorIs(t, err, appErrors.ErrMissingDocuments)
	require.Equal(t, []string{"Master diploma"}, appErrors.FromError(err).Details)

	f.upload(t, id, "doc-master", nil)
	_, err = f.stepSvc.FinalizeAcademic(ctx, id, nil, applicant)
	require.NoError(t, err)
	app, err := f.appSvc.FinishFill(ctx, id, applicant)
	require.NoError(t, err)
	require.True(t, app.ApplicationFilled)
}
