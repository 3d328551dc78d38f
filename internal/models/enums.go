package models

import "fmt"

// Step identifies one of the application submission phases.
type Step string

const (
	StepPersonalData     Step = "PERSONAL_DATA"
	StepRegistrationData Step = "REGISTRATION_DATA"
	StepAcademicData     Step = "ACADEMIC_DATA"
	StepCurriculum       Step = "CURRICULUM"
)

// Steps returns the submission phases in the order an applicant completes them.
func Steps() []Step {
	return []Step{StepPersonalData, StepRegistrationData, StepAcademicData, StepCurriculum}
}

// Valid reports whether the step is a known value.
func (s Step) Valid() bool {
	switch s {
	case StepPersonalData, StepRegistrationData, StepAcademicData, StepCurriculum:
		return true
	}
	return false
}

// DocumentModality tags catalog documents with the programs they apply to.
type DocumentModality string

const (
	DocumentModalityDoctorate     DocumentModality = "DOCTORATE"
	DocumentModalityRegularMaster DocumentModality = "REGULAR_MASTER"
	DocumentModalitySpecialMaster DocumentModality = "SPECIAL_MASTER"
)

// Modality is the program level an applicant registers for.
type Modality string

const (
	ModalityMaster    Modality = "MASTER"
	ModalityDoctorate Modality = "DOCTORATE"
)

// ModalityType distinguishes regular from special enrolment.
type ModalityType string

const (
	ModalityTypeRegular ModalityType = "REGULAR"
	ModalityTypeSpecial ModalityType = "SPECIAL"
)

// DocumentModalityFor maps a registration's modality and modality type onto the
// catalog modality tag. Doctorate has a single catalog tag regardless of type.
func DocumentModalityFor(modality Modality, modalityType ModalityType) (DocumentModality, error) {
	switch modality {
	case ModalityDoctorate:
		if modalityType != ModalityTypeRegular && modalityType != ModalityTypeSpecial {
			return "", fmt.Errorf("unknown modality type %q", modalityType)
		}
		return DocumentModalityDoctorate, nil
	case ModalityMaster:
		switch modalityType {
		case ModalityTypeRegular:
			return DocumentModalityRegularMaster, nil
		case ModalityTypeSpecial:
			return DocumentModalitySpecialMaster, nil
		}
		return "", fmt.Errorf("unknown modality type %q", modalityType)
	}
	return "", fmt.Errorf("unknown modality %q", modality)
}

// VacancyType is the admission quota an applicant competes under.
type VacancyType string

const (
	VacancyBroadCompetition    VacancyType = "BROAD_COMPETITION"
	VacancyRacialQuota         VacancyType = "RACIAL_QUOTA"
	VacancyDeficientQuota      VacancyType = "DEFICIENT_QUOTA"
	VacancyHumanitarianPolices VacancyType = "HUMANITARIAN_POLICES"
	VacancyIndigenousQuota     VacancyType = "INDIGENOUS_QUOTA"
)

// Valid reports whether the vacancy type is a known value.
func (v VacancyType) Valid() bool {
	switch v {
	case VacancyBroadCompetition, VacancyRacialQuota, VacancyDeficientQuota, VacancyHumanitarianPolices, VacancyIndigenousQuota:
		return true
	}
	return false
}

// AnalysisStatus is an administrator verdict. A nil status means pending.
type AnalysisStatus string

const (
	AnalysisApproved AnalysisStatus = "APPROVED"
	AnalysisRejected AnalysisStatus = "REJECTED"
)

// Valid reports whether the status is a known verdict.
func (s AnalysisStatus) Valid() bool {
	return s == AnalysisApproved || s == AnalysisRejected
}
