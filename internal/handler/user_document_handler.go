package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/response"
)

type userDocumentService interface {
	RequestUpload(ctx context.Context, applicationID string, req dto.UploadHandshakeRequest, actor *models.JWTClaims) (*dto.UploadHandshakeResponse, error)
	Create(ctx context.Context, applicationID string, req dto.CreateUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error)
	Update(ctx context.Context, applicationID, userDocumentID string, req dto.UpdateUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error)
	Delete(ctx context.Context, applicationID, userDocumentID string, actor *models.JWTClaims) error
	DownloadLink(ctx context.Context, userDocumentID string, actor *models.JWTClaims) (*dto.DownloadLinkResponse, error)
	Analyse(ctx context.Context, userDocumentID string, req dto.AnalyseUserDocumentRequest, actor *models.JWTClaims) (*models.UserDocumentApplication, error)
}

// UserDocumentHandler exposes uploaded evidence endpoints.
type UserDocumentHandler struct {
	service userDocumentService
}

// NewUserDocumentHandler builds a new handler.
func NewUserDocumentHandler(service userDocumentService) *UserDocumentHandler {
	return &UserDocumentHandler{service: service}
}

// RequestUpload godoc
// @Summary Reserve a storage key and get a presigned upload URL
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.UploadHandshakeRequest true "Document to upload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/documents/upload-url [post]
func (h *UserDocumentHandler) RequestUpload(c *gin.Context) {
	var req dto.UploadHandshakeRequest
	if !bindDocument(c, &req) {
		return
	}
	res, err := h.service.RequestUpload(c.Request.Context(), param(c, "id"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Create godoc
// @Summary Register an uploaded object against a catalog document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.CreateUserDocumentRequest true "Uploaded document"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/documents [post]
func (h *UserDocumentHandler) Create(c *gin.Context) {
	var req dto.CreateUserDocumentRequest
	if !bindDocument(c, &req) {
		return
	}
	doc, err := h.service.Create(c.Request.Context(), param(c, "id"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Update godoc
// @Summary Replace the uploaded object of a document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param docId path string true "User document ID"
// @Param payload body dto.UpdateUserDocumentRequest true "Replacement upload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents/{docId} [put]
func (h *UserDocumentHandler) Update(c *gin.Context) {
	var req dto.UpdateUserDocumentRequest
	if !bindDocument(c, &req) {
		return
	}
	doc, err := h.service.Update(c.Request.Context(), param(c, "id"), param(c, "docId"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc)
}

// Delete godoc
// @Summary Delete an uploaded document and its stored object
// @Tags Documents
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param docId path string true "User document ID"
// @Success 204
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/documents/{docId} [delete]
func (h *UserDocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), param(c, "id"), param(c, "docId"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadLink godoc
// @Summary Get a presigned download URL
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param docId path string true "User document ID"
// @Success 200 {object} response.Envelope
// @Router /user-documents/{docId}/download-url [get]
func (h *UserDocumentHandler) DownloadLink(c *gin.Context) {
	link, err := h.service.DownloadLink(c.Request.Context(), param(c, "docId"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Analyse godoc
// @Summary Record an analysis verdict for an uploaded document
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param docId path string true "User document ID"
// @Param payload body dto.AnalyseUserDocumentRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Router /admin/user-documents/{docId}/analysis [post]
func (h *UserDocumentHandler) Analyse(c *gin.Context) {
	var req dto.AnalyseUserDocumentRequest
	if !bindDocument(c, &req) {
		return
	}
	doc, err := h.service.Analyse(c.Request.Context(), param(c, "docId"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc)
}

func bindDocument(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid document payload"))
		return false
	}
	return true
}
