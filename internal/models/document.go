package models

import (
	"errors"
	"time"
)

// Document is a catalog entry describing one piece of required or optional evidence.
type Document struct {
	ID           string                    `db:"id" json:"id"`
	Name         string                    `db:"name" json:"name"`
	Description  string                    `db:"description" json:"description"`
	Step         Step                      `db:"step" json:"step"`
	Required     bool                      `db:"required" json:"required"`
	Modalities   EnumSet[DocumentModality] `db:"modalities" json:"modalities"`
	VacancyTypes EnumSet[VacancyType]      `db:"vacancy_types" json:"vacancyTypes"`
	Score        *float64                  `db:"score" json:"score,omitempty"`
	MaximumScore *float64                  `db:"maximum_score" json:"maximumScore,omitempty"`
	CreatedAt    time.Time                 `db:"created_at" json:"createdAt"`
}

// Validate enforces the scoring invariants.
func (d *Document) Validate() error {
	if d.Score == nil && d.MaximumScore == nil {
		return nil
	}
	if d.Score == nil || d.MaximumScore == nil {
		return errors.New("score and maximumScore must be set together")
	}
	if *d.Score < 0 || *d.MaximumScore < 0 {
		return errors.New("score and maximumScore must be non-negative")
	}
	if *d.MaximumScore < *d.Score {
		return errors.New("maximumScore must be greater than or equal to score")
	}
	return nil
}

// Scored reports whether the document contributes to the curriculum score.
func (d *Document) Scored() bool {
	return d.Step == StepCurriculum && d.Score != nil && d.MaximumScore != nil
}

// ProcessDocument is a catalog document as offered by one process.
type ProcessDocument struct {
	Document
	ProcessID string    `db:"process_id" json:"processId"`
	LinkedAt  time.Time `db:"linked_at" json:"linkedAt"`
}
