package models

import (
	"time"

	"github.com/lib/pq"
)

// PersonalDataApplication holds contact and identification data.
type PersonalDataApplication struct {
	ID            string     `db:"id" json:"id"`
	ApplicationID string     `db:"application_id" json:"applicationId"`
	StepCompleted bool       `db:"step_completed" json:"stepCompleted"`
	FullName      *string    `db:"full_name" json:"fullName,omitempty" validate:"required"`
	SocialName    *string    `db:"social_name" json:"socialName,omitempty"`
	DocumentID    *string    `db:"document_id" json:"documentId,omitempty" validate:"required"`
	BirthDate     *time.Time `db:"birth_date" json:"birthDate,omitempty" validate:"required"`
	Nationality   *string    `db:"nationality" json:"nationality,omitempty" validate:"required"`
	Email         *string    `db:"email" json:"email,omitempty" validate:"required,email"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Address       *string    `db:"address" json:"address,omitempty"`
	City          *string    `db:"city" json:"city,omitempty"`
	State         *string    `db:"state" json:"state,omitempty"`
	PostalCode    *string    `db:"postal_code" json:"postalCode,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// RegistrationDataApplication holds program choices. Its modality, modality
// type and vacancy type drive document eligibility for later steps.
type RegistrationDataApplication struct {
	ID               string         `db:"id" json:"id"`
	ApplicationID    string         `db:"application_id" json:"applicationId"`
	StepCompleted    bool           `db:"step_completed" json:"stepCompleted"`
	Modality         *Modality      `db:"modality" json:"modality,omitempty" validate:"required"`
	ModalityType     *ModalityType  `db:"modality_type" json:"modalityType,omitempty" validate:"required"`
	VacancyType      *VacancyType   `db:"vacancy_type" json:"vacancyType,omitempty" validate:"required"`
	ResearchLineID   *string        `db:"research_line_id" json:"researchLineId,omitempty" validate:"required"`
	TutorPreferences pq.StringArray `db:"tutor_preferences" json:"tutorPreferences" validate:"min=1,unique"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// EligibilityKey returns the catalog modality and vacancy type once both are known.
func (r *RegistrationDataApplication) EligibilityKey() (*DocumentModality, *VacancyType, error) {
	if r == nil || r.Modality == nil || r.ModalityType == nil || r.VacancyType == nil {
		return nil, nil, nil
	}
	modality, err := DocumentModalityFor(*r.Modality, *r.ModalityType)
	if err != nil {
		return nil, nil, err
	}
	vacancy := *r.VacancyType
	return &modality, &vacancy, nil
}

// AcademicDataApplication holds the applicant's prior academic history.
type AcademicDataApplication struct {
	ID             string    `db:"id" json:"id"`
	ApplicationID  string    `db:"application_id" json:"applicationId"`
	StepCompleted  bool      `db:"step_completed" json:"stepCompleted"`
	Course         *string   `db:"course" json:"course,omitempty" validate:"required"`
	Area           *string   `db:"area" json:"area,omitempty"`
	Institution    *string   `db:"institution" json:"institution,omitempty" validate:"required"`
	ConclusionYear *int      `db:"conclusion_year" json:"conclusionYear,omitempty" validate:"required"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// ApplicationSteps bundles the step records of one application.
type ApplicationSteps struct {
	Personal     *PersonalDataApplication     `json:"personalData,omitempty"`
	Registration *RegistrationDataApplication `json:"registrationData,omitempty"`
	Academic     *AcademicDataApplication     `json:"academicData,omitempty"`
}

// Any reports whether any step record exists.
func (s ApplicationSteps) Any() bool {
	return s.Personal != nil || s.Registration != nil || s.Academic != nil
}
