package models

import "time"

// ApplicationStatus is the final outcome of an application. Nil means unset.
type ApplicationStatus string

const (
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// ApplicationState is the derived workflow position of an application.
type ApplicationState string

const (
	ApplicationStateCreated    ApplicationState = "CREATED"
	ApplicationStateInProgress ApplicationState = "IN_PROGRESS"
	ApplicationStateFilled     ApplicationState = "FILLED"
	ApplicationStateReviewed   ApplicationState = "REVIEWED"
)

// MissedDeadlineReason is recorded on applications rejected by the deadline sweep.
const MissedDeadlineReason = "Application was not completed before the selection process deadline."

// Application is one applicant's submission to one process.
type Application struct {
	ID                 string             `db:"id" json:"id"`
	UserID             string             `db:"user_id" json:"userId"`
	ProcessID          string             `db:"process_id" json:"processId"`
	Active             bool               `db:"active" json:"active"`
	ApplicationFilled  bool               `db:"application_filled" json:"applicationFilled"`
	Status             *ApplicationStatus `db:"status" json:"status,omitempty"`
	ReasonForRejection *string            `db:"reason_for_rejection" json:"reasonForRejection,omitempty"`
	ReviewedBy         *string            `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt"`
}

// Reviewed reports whether the application reached its terminal state.
func (a *Application) Reviewed() bool {
	return a.Status != nil
}

// State derives the workflow state. hasStepRecords distinguishes a freshly
// created application from one with step data.
func (a *Application) State(hasStepRecords bool) ApplicationState {
	switch {
	case a.Reviewed():
		return ApplicationStateReviewed
	case a.ApplicationFilled:
		return ApplicationStateFilled
	case hasStepRecords:
		return ApplicationStateInProgress
	default:
		return ApplicationStateCreated
	}
}

// ApplicationWithProcess joins an application to its parent process.
type ApplicationWithProcess struct {
	Application Application `db:"application" json:"application"`
	Process     Process     `db:"process" json:"process"`
}

// ApplicationFilter narrows administrative listings.
type ApplicationFilter struct {
	ProcessID string
	UserID    string
	Filled    *bool
	Status    *ApplicationStatus
	Limit     int
	Offset    int
}
