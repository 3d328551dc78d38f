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

type stepService interface {
	UpdatePersonal(ctx context.Context, id string, req dto.PersonalDataRequest, actor *models.JWTClaims) (*models.PersonalDataApplication, error)
	UpdateRegistration(ctx context.Context, id string, req dto.RegistrationDataRequest, actor *models.JWTClaims) (*models.RegistrationDataApplication, error)
	UpdateAcademic(ctx context.Context, id string, req dto.AcademicDataRequest, actor *models.JWTClaims) (*models.AcademicDataApplication, error)
	FinalizePersonal(ctx context.Context, id string, req *dto.PersonalDataRequest, actor *models.JWTClaims) (*models.PersonalDataApplication, error)
	FinalizeRegistration(ctx context.Context, id string, req *dto.RegistrationDataRequest, actor *models.JWTClaims) (*models.RegistrationDataApplication, error)
	FinalizeAcademic(ctx context.Context, id string, req *dto.AcademicDataRequest, actor *models.JWTClaims) (*models.AcademicDataApplication, error)
}

// StepHandler exposes editing and finalization of the application steps.
type StepHandler struct {
	service stepService
}

// NewStepHandler builds a new handler.
func NewStepHandler(service stepService) *StepHandler {
	return &StepHandler{service: service}
}

// Update godoc
// @Summary Partially update a step; a finalized step is reopened
// @Tags Steps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param step path string true "personal-data, registration-data or academic-data"
// @Param payload body object true "Step fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /applications/{id}/steps/{step} [patch]
func (h *StepHandler) Update(c *gin.Context) {
	ctx, id, actor := c.Request.Context(), param(c, "id"), actorFrom(c)
	step, ok := editableStep(c)
	if !ok {
		return
	}

	var (
		record interface{}
		err    error
	)
	switch step {
	case models.StepPersonalData:
		var req dto.PersonalDataRequest
		if !bindStep(c, &req) {
			return
		}
		record, err = h.service.UpdatePersonal(ctx, id, req, actor)
	case models.StepRegistrationData:
		var req dto.RegistrationDataRequest
		if !bindStep(c, &req) {
			return
		}
		record, err = h.service.UpdateRegistration(ctx, id, req, actor)
	case models.StepAcademicData:
		var req dto.AcademicDataRequest
		if !bindStep(c, &req) {
			return
		}
		record, err = h.service.UpdateAcademic(ctx, id, req, actor)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StepView{Step: step, Record: record})
}

// Finalize godoc
// @Summary Finalize a step once its mandatory documents are uploaded
// @Description The body is optional; when present it is applied before the completion gate runs.
// @Tags Steps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param step path string true "personal-data, registration-data or academic-data"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /applications/{id}/steps/{step}/finalize [post]
func (h *StepHandler) Finalize(c *gin.Context) {
	ctx, id, actor := c.Request.Context(), param(c, "id"), actorFrom(c)
	step, ok := editableStep(c)
	if !ok {
		return
	}
	hasBody := c.Request.ContentLength > 0

	var (
		record interface{}
		err    error
	)
	switch step {
	case models.StepPersonalData:
		var req *dto.PersonalDataRequest
		if hasBody {
			req = &dto.PersonalDataRequest{}
			if !bindStep(c, req) {
				return
			}
		}
		record, err = h.service.FinalizePersonal(ctx, id, req, actor)
	case models.StepRegistrationData:
		var req *dto.RegistrationDataRequest
		if hasBody {
			req = &dto.RegistrationDataRequest{}
			if !bindStep(c, req) {
				return
			}
		}
		record, err = h.service.FinalizeRegistration(ctx, id, req, actor)
	case models.StepAcademicData:
		var req *dto.AcademicDataRequest
		if hasBody {
			req = &dto.AcademicDataRequest{}
			if !bindStep(c, req) {
				return
			}
		}
		record, err = h.service.FinalizeAcademic(ctx, id, req, actor)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StepView{Step: step, Record: record})
}

func editableStep(c *gin.Context) (models.Step, bool) {
	step, ok := stepPathNames[c.Param("step")]
	if !ok || step == models.StepCurriculum {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown step "+c.Param("step")))
		return "", false
	}
	return step, true
}

func bindStep(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid step payload"))
		return false
	}
	return true
}
