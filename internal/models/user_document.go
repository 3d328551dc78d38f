package models

import "time"

// UserDocumentApplication is one uploaded file backing a catalog document.
type UserDocumentApplication struct {
	ID                 string          `db:"id" json:"id"`
	ApplicationID      string          `db:"application_id" json:"applicationId"`
	DocumentID         string          `db:"document_id" json:"documentId"`
	Step               Step            `db:"step" json:"step"`
	StorageKey         string          `db:"storage_key" json:"storageKey"`
	Filename           string          `db:"filename" json:"filename"`
	Quantity           *string         `db:"quantity" json:"quantity,omitempty"`
	Status             *AnalysisStatus `db:"status" json:"status,omitempty"`
	ReasonForRejection *string         `db:"reason_for_rejection" json:"reasonForRejection,omitempty"`
	AnalyzedBy         *string         `db:"analyzed_by" json:"analyzedBy,omitempty"`
	AnalyzedAt         *time.Time      `db:"analyzed_at" json:"analyzedAt,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}

// Analyzed reports whether an administrator recorded a verdict.
func (u *UserDocumentApplication) Analyzed() bool {
	return u.Status != nil
}
