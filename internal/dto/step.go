package dto

import (
	"time"

	"github.com/noah-isme/admissions-api/internal/models"
)

// PersonalDataRequest updates personal data. Absent fields are left untouched.
type PersonalDataRequest struct {
	FullName    *string    `json:"fullName" validate:"omitempty,min=3,max=200"`
	SocialName  *string    `json:"socialName" validate:"omitempty,max=200"`
	DocumentID  *string    `json:"documentId" validate:"omitempty,max=50"`
	BirthDate   *time.Time `json:"birthDate"`
	Nationality *string    `json:"nationality" validate:"omitempty,max=100"`
	Email       *string    `json:"email" validate:"omitempty,email"`
	Phone       *string    `json:"phone" validate:"omitempty,max=30"`
	Address     *string    `json:"address" validate:"omitempty,max=300"`
	City        *string    `json:"city" validate:"omitempty,max=100"`
	State       *string    `json:"state" validate:"omitempty,max=100"`
	PostalCode  *string    `json:"postalCode" validate:"omitempty,max=20"`
}

// RegistrationDataRequest updates registration choices.
type RegistrationDataRequest struct {
	Modality         *models.Modality     `json:"modality" validate:"omitempty,oneof=MASTER DOCTORATE"`
	ModalityType     *models.ModalityType `json:"modalityType" validate:"omitempty,oneof=REGULAR SPECIAL"`
	VacancyType      *models.VacancyType  `json:"vacancyType" validate:"omitempty,oneof=BROAD_COMPETITION RACIAL_QUOTA DEFICIENT_QUOTA HUMANITARIAN_POLICES INDIGENOUS_QUOTA"`
	ResearchLineID   *string              `json:"researchLineId" validate:"omitempty,max=64"`
	TutorPreferences []string             `json:"tutorPreferences" validate:"omitempty,max=5,unique,dive,required"`
}

// AcademicDataRequest updates academic history.
type AcademicDataRequest struct {
	Course         *string `json:"course" validate:"omitempty,max=200"`
	Area           *string `json:"area" validate:"omitempty,max=200"`
	Institution    *string `json:"institution" validate:"omitempty,max=200"`
	ConclusionYear *int    `json:"conclusionYear" validate:"omitempty,min=1900,max=2100"`
}

// StepView wraps whichever step record an update or finalize touched.
type StepView struct {
	Step   models.Step `json:"step"`
	Record interface{} `json:"record"`
}
