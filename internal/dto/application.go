package dto

import (
	"time"

	"github.com/noah-isme/admissions-api/internal/models"
)

// ApplicationDetail is the full view of an application returned to its owner or an administrator.
type ApplicationDetail struct {
	models.Application
	State           models.ApplicationState          `json:"state"`
	Process         models.Process                   `json:"process"`
	Steps           models.ApplicationSteps          `json:"steps"`
	Documents       []models.UserDocumentApplication `json:"documents"`
	CurriculumScore float64                          `json:"curriculumScore"`
}

// ListApplicationsRequest filters application listings.
type ListApplicationsRequest struct {
	ProcessID string                   `form:"process_id"`
	Filled    *bool                    `form:"filled"`
	Status    models.ApplicationStatus `form:"status" validate:"omitempty,oneof=APPROVED REJECTED"`
	Limit     int                      `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset    int                      `form:"offset" validate:"omitempty,min=0"`
}

// ReviewApplicationRequest carries an administrator decision.
type ReviewApplicationRequest struct {
	Status             models.ApplicationStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	ReasonForRejection *string                  `json:"reasonForRejection" validate:"required_if=Status REJECTED"`
}

// SweepResult reports how many applications a sweep rejected.
type SweepResult struct {
	Rejected int       `json:"rejected"`
	RanAt    time.Time `json:"ranAt"`
}
