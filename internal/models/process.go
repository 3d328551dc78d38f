package models

import (
	"fmt"
	"time"
)

// ProcessStatus is the lifecycle state of a selection process.
type ProcessStatus string

const (
	ProcessStatusDraft    ProcessStatus = "DRAFT"
	ProcessStatusActive   ProcessStatus = "ACTIVE"
	ProcessStatusFinished ProcessStatus = "FINISHED"
)

var processStatusRank = map[ProcessStatus]int{
	ProcessStatusDraft:    0,
	ProcessStatusActive:   1,
	ProcessStatusFinished: 2,
}

// Process is one admission cycle.
type Process struct {
	ID                     string        `db:"id" json:"id"`
	Name                   string        `db:"name" json:"name"`
	Description            string        `db:"description" json:"description"`
	StartDate              time.Time     `db:"start_date" json:"startDate"`
	EndDate                time.Time     `db:"end_date" json:"endDate"`
	DoctorateVacancies     int           `db:"doctorate_vacancies" json:"doctorateVacancies"`
	RegularMasterVacancies int           `db:"regular_master_vacancies" json:"regularMasterVacancies"`
	SpecialMasterVacancies int           `db:"special_master_vacancies" json:"specialMasterVacancies"`
	Status                 ProcessStatus `db:"status" json:"status"`
	ResultsAnnounced       bool          `db:"results_announced" json:"resultsAnnounced"`
	Active                 bool          `db:"active" json:"active"`
	CreatedAt              time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updatedAt"`
}

// WindowOpenAt reports whether now falls in [StartDate, EndDate).
func (p *Process) WindowOpenAt(now time.Time) bool {
	return !now.Before(p.StartDate) && now.Before(p.EndDate)
}

// WindowClosedAt reports whether the submission window has ended.
func (p *Process) WindowClosedAt(now time.Time) bool {
	return !now.Before(p.EndDate)
}

// AcceptsSubmissions reports whether the process is live and not soft-deleted.
func (p *Process) AcceptsSubmissions() bool {
	return p.Active && p.Status == ProcessStatusActive
}

// CanTransition validates a forward-only status move.
func (p *Process) CanTransition(next ProcessStatus) error {
	nextRank, ok := processStatusRank[next]
	if !ok {
		return fmt.Errorf("unknown process status %q", next)
	}
	if nextRank <= processStatusRank[p.Status] {
		return fmt.Errorf("process status cannot move from %s to %s", p.Status, next)
	}
	if next == ProcessStatusFinished && !p.ResultsAnnounced {
		return fmt.Errorf("process cannot finish before results are announced")
	}
	return nil
}

// VacanciesFor returns the vacancy count for a catalog modality.
func (p *Process) VacanciesFor(modality DocumentModality) int {
	switch modality {
	case DocumentModalityDoctorate:
		return p.DoctorateVacancies
	case DocumentModalityRegularMaster:
		return p.RegularMasterVacancies
	case DocumentModalitySpecialMaster:
		return p.SpecialMasterVacancies
	}
	return 0
}
