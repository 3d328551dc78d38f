package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/response"
)

type applicationService interface {
	Apply(ctx context.Context, processID string, actor *models.JWTClaims) (*models.Application, error)
	List(ctx context.Context, req dto.ListApplicationsRequest, actor *models.JWTClaims) ([]models.Application, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ApplicationDetail, error)
	ListEligibleDocuments(ctx context.Context, id string, step models.Step, actor *models.JWTClaims) ([]models.ProcessDocument, error)
	FinishFill(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	Review(ctx context.Context, id string, req dto.ReviewApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
}

type sweepService interface {
	SweepNow(ctx context.Context, actor *models.JWTClaims) (*dto.SweepResult, error)
}

// ApplicationHandler exposes the application lifecycle endpoints.
type ApplicationHandler struct {
	service applicationService
	sweeper sweepService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService, sweeper sweepService) *ApplicationHandler {
	return &ApplicationHandler{service: service, sweeper: sweeper}
}

// Apply godoc
// @Summary Apply to a selection process
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Process ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /processes/{id}/applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	app, err := h.service.Apply(c.Request.Context(), param(c, "id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List applications visible to the caller
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param process_id query string false "Process ID"
// @Param filled query bool false "Fill state"
// @Param status query string false "Review status" Enums(APPROVED, REJECTED)
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	var req dto.ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	apps, err := h.service.List(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, map[string]interface{}{"count": len(apps), "limit": req.Limit, "offset": req.Offset})
}

// Get godoc
// @Summary Get an application with its steps, documents and curriculum score
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), param(c, "id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// EligibleDocuments godoc
// @Summary List the documents of a step that apply to the applicant
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param step query string true "Step (PERSONAL_DATA, REGISTRATION_DATA, ACADEMIC_DATA, CURRICULUM or its path name)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/documents/eligible [get]
func (h *ApplicationHandler) EligibleDocuments(c *gin.Context) {
	step, ok := parseStep(c.Query("step"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "step query parameter is required"))
		return
	}
	docs, err := h.service.ListEligibleDocuments(c.Request.Context(), param(c, "id"), step, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, map[string]interface{}{"step": step, "count": len(docs)})
}

// Finish godoc
// @Summary Submit a fully filled application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /applications/{id}/finish [post]
func (h *ApplicationHandler) Finish(c *gin.Context) {
	app, err := h.service.FinishFill(c.Request.Context(), param(c, "id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Review godoc
// @Summary Approve or reject a submitted application
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/applications/{id}/review [post]
func (h *ApplicationHandler) Review(c *gin.Context) {
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	app, err := h.service.Review(c.Request.Context(), param(c, "id"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Sweep godoc
// @Summary Reject unfilled applications whose process deadline passed
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/applications/sweep [post]
func (h *ApplicationHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.SweepNow(c.Request.Context(), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

var stepPathNames = map[string]models.Step{
	"personal-data":     models.StepPersonalData,
	"registration-data": models.StepRegistrationData,
	"academic-data":     models.StepAcademicData,
	"curriculum":        models.StepCurriculum,
}

// parseStep accepts either the enum value or its path name.
func parseStep(raw string) (models.Step, bool) {
	raw = strings.TrimSpace(raw)
	if step, ok := stepPathNames[strings.ToLower(raw)]; ok {
		return step, true
	}
	step := models.Step(strings.ToUpper(raw))
	return step, step.Valid()
}
