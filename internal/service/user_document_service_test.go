package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/jobs"
)

func TestRequestUploadIssuesScopedKey(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)

	resp, err := f.docSvc.RequestUpload(context.Background(), id, dto.UploadHandshakeRequest{
		DocumentID: "doc-cv", Filename: "Resume.PDF",
	}, applicant)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.StorageKey, "applications/"+id+"/doc-cv/"))
	require.True(t, strings.HasSuffix(resp.StorageKey, ".pdf"))
	require.NotEmpty(t, resp.Ticket)
	require.Contains(t, resp.UploadURL, resp.StorageKey)

	_, err = f.docSvc.RequestUpload(context.Background(), id, dto.UploadHandshakeRequest{
		DocumentID: "doc-unknown", Filename: "x.pdf",
	}, applicant)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCreateUploadVerifiesObjectBeforeInsert(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	resp, err := f.docSvc.RequestUpload(ctx, id, dto.UploadHandshakeRequest{DocumentID: "doc-cv", Filename: "cv.pdf"}, applicant)
	require.NoError(t, err)
	req := dto.CreateUserDocumentRequest{DocumentID: "doc-cv", StorageKey: resp.StorageKey, Ticket: resp.Ticket, Filename: "cv.pdf"}

	_, err = f.docSvc.Create(ctx, id, req, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, err.Error(), "not found in storage")
	require.Empty(t, f.uploads.docs)

	forged := req
	forged.StorageKey = "applications/other/doc-cv/stolen.pdf"
	f.store.objects[forged.StorageKey] = true
	_, err = f.docSvc.Create(ctx, id, forged, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Empty(t, f.uploads.docs)

	f.store.objects[resp.StorageKey] = true
	doc, err := f.docSvc.Create(ctx, id, req, applicant)
	require.NoError(t, err)
	require.Equal(t, models.StepCurriculum, doc.Step)
	require.Nil(t, doc.Status)

	_, err = f.docSvc.Create(ctx, id, req, applicant)
	require.ErrorIs(t, err, appErrors.ErrDocumentUploaded)
}

func TestUpdateUploadClearsAnalysisAndSchedulesCleanup(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()
	doc := f.upload(t, id, "doc-article", str("2"))
	oldKey := doc.StorageKey

	_, err := f.docSvc.Analyse(ctx, doc.ID, dto.AnalyseUserDocumentRequest{Status: models.AnalysisApproved}, admin)
	require.NoError(t, err)

	resp, err := f.docSvc.RequestUpload(ctx, id, dto.UploadHandshakeRequest{DocumentID: "doc-article", Filename: "v2.pdf"}, applicant)
	require.NoError(t, err)
	f.store.objects[resp.StorageKey] = true

	updated, err := f.docSvc.Update(ctx, id, doc.ID, dto.UpdateUserDocumentRequest{
		StorageKey: resp.StorageKey, Ticket: resp.Ticket, Filename: "v2.pdf", Quantity: str(" 4 "),
	}, applicant)
	require.NoError(t, err)
	require.Nil(t, updated.Status)
	require.Equal(t, "4", *updated.Quantity)

	stored, err := f.uploads.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Status)
	require.Equal(t, resp.StorageKey, stored.StorageKey)

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	require.Equal(t, JobTypeDeleteObject, job.Type)
	require.Equal(t, oldKey, job.Payload)

	require.NoError(t, f.docSvc.HandleCleanupJob(ctx, job))
	require.Equal(t, []string{oldKey}, f.store.deleted)
}

func TestDeleteUploadKeepsRowWhenStorageFails(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()
	doc := f.upload(t, id, "doc-cv", nil)

	f.store.deleteErr = errors.New("connection reset")
	err := f.docSvc.Delete(ctx, id, doc.ID, applicant)
	require.ErrorIs(t, err, appErrors.ErrUpstream)
	_, err = f.uploads.GetByID(ctx, doc.ID)
	require.NoError(t, err)

	f.store.deleteErr = nil
	require.NoError(t, f.docSvc.Delete(ctx, id, doc.ID, applicant))
	_, err = f.uploads.GetByID(ctx, doc.ID)
	require.Error(t, err)
	require.Equal(t, []string{doc.StorageKey}, f.store.deleted)

	err = f.docSvc.Delete(ctx, id, doc.ID, applicant)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCleanupJobFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.store.deleteErr = errors.New("timeout")

	err := f.docSvc.HandleCleanupJob(context.Background(), jobs.Job{ID: "job-1", Type: JobTypeDeleteObject, Payload: "applications/a/b/c.pdf"})
	require.Error(t, err)
	require.Equal(t, 1, f.metrics.cleanups)

	require.NoError(t, f.docSvc.HandleCleanupJob(context.Background(), jobs.Job{ID: "job-2", Payload: 42}))
}

func TestDownloadLinkAccess(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()
	doc := f.upload(t, id, "doc-cv", nil)

	link, err := f.docSvc.DownloadLink(ctx, doc.ID, applicant)
	require.NoError(t, err)
	require.Equal(t, "doc-cv.pdf", link.Filename)

	_, err = f.docSvc.DownloadLink(ctx, doc.ID, admin)
	require.NoError(t, err)

	_, err = f.docSvc.DownloadLink(ctx, doc.ID, stranger)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAnalyseRequiresAdminAndReason(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()
	doc := f.upload(t, id, "doc-cv", nil)

	_, err := f.docSvc.Analyse(ctx, doc.ID, dto.AnalyseUserDocumentRequest{Status: models.AnalysisApproved}, applicant)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.docSvc.Analyse(ctx, doc.ID, dto.AnalyseUserDocumentRequest{Status: models.AnalysisRejected}, admin)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	analysed, err := f.docSvc.Analyse(ctx, doc.ID, dto.AnalyseUserDocumentRequest{
		Status: models.AnalysisRejected, ReasonForRejection: str("blurry"),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, models.AnalysisRejected, *analysed.Status)

	analysed, err = f.docSvc.Analyse(ctx, doc.ID, dto.AnalyseUserDocumentRequest{
		Status: models.AnalysisApproved, ReasonForRejection: str("ignored"),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, models.AnalysisApproved, *analysed.Status)
	require.Nil(t, analysed.ReasonForRejection)
}

func TestDocumentChangesRefusedAfterSubmission(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	f.fillAll(t, id)
	ctx := context.Background()

	uploads, err := f.uploads.ListByApplication(ctx, id, nil)
	require.NoError(t, err)
	require.NotEmpty(t, uploads)
	identity := uploads[0]
	require.Equal(t, "doc-identity", identity.DocumentID)

	err = f.docSvc.Delete(ctx, id, identity.ID, applicant)
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	require.Empty(t, f.store.deleted)

	_, err = f.docSvc.Update(ctx, id, identity.ID, dto.UpdateUserDocumentRequest{
		StorageKey: identity.StorageKey, Ticket: "unused", Filename: "again.pdf",
	}, applicant)
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.docSvc.RequestUpload(ctx, id, dto.UploadHandshakeRequest{DocumentID: "doc-article", Filename: "a.pdf"}, applicant)
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.docSvc.Create(ctx, id, dto.CreateUserDocumentRequest{
		DocumentID: "doc-article", StorageKey: "applications/" + id + "/doc-article/x.pdf", Ticket: "unused", Filename: "a.pdf",
	}, applicant)
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	stored, err := f.uploads.ListByApplication(ctx, id, nil)
	require.NoError(t, err)
	require.Len(t, stored, len(uploads))
}

func TestCreateUploadRejectsKeyIssuedForAnotherDocument(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t)
	ctx := context.Background()

	resp, err := f.docSvc.RequestUpload(ctx, id, dto.UploadHandshakeRequest{DocumentID: "doc-cv", Filename: "cv.pdf"}, applicant)
	require.NoError(t, err)
	f.store.objects[resp.StorageKey] = true

	_, err = f.docSvc.Create(ctx, id, dto.CreateUserDocumentRequest{
		DocumentID: "doc-article", StorageKey: resp.StorageKey, Ticket: resp.Ticket, Filename: "cv.pdf", Quantity: str("5"),
	}, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, err.Error(), "doc-article")
	require.Empty(t, f.uploads.docs)

	doc, err := f.docSvc.Create(ctx, id, dto.CreateUserDocumentRequest{
		DocumentID: "doc-cv", StorageKey: resp.StorageKey, Ticket: resp.Ticket, Filename: "cv.pdf",
	}, applicant)
	require.NoError(t, err)

	article, err := f.docSvc.RequestUpload(ctx, id, dto.UploadHandshakeRequest{DocumentID: "doc-article", Filename: "a.pdf"}, applicant)
	require.NoError(t, err)
	f.store.objects[article.StorageKey] = true
	_, err = f.docSvc.Update(ctx, id, doc.ID, dto.UpdateUserDocumentRequest{
		StorageKey: article.StorageKey, Ticket: article.Ticket, Filename: "a.pdf",
	}, applicant)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Equal(t, resp.StorageKey, f.uploads.docs[doc.ID].StorageKey)
}
