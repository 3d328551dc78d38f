package dto

import (
	"time"

	"github.com/noah-isme/admissions-api/internal/models"
)

// UploadHandshakeRequest asks for a presigned upload slot.
type UploadHandshakeRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
	Filename   string `json:"filename" validate:"required,max=255"`
}

// UploadHandshakeResponse carries the presigned URL and the ticket binding the key to the application.
type UploadHandshakeResponse struct {
	UploadURL  string    `json:"uploadUrl"`
	StorageKey string    `json:"storageKey"`
	Ticket     string    `json:"ticket"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CreateUserDocumentRequest registers an uploaded object against a catalog document.
type CreateUserDocumentRequest struct {
	DocumentID string  `json:"documentId" validate:"required"`
	StorageKey string  `json:"storageKey" validate:"required"`
	Ticket     string  `json:"ticket" validate:"required"`
	Filename   string  `json:"filename" validate:"required,max=255"`
	Quantity   *string `json:"quantity" validate:"omitempty,max=20"`
}

// UpdateUserDocumentRequest replaces the uploaded object of an existing record.
type UpdateUserDocumentRequest struct {
	StorageKey string  `json:"storageKey" validate:"required"`
	Ticket     string  `json:"ticket" validate:"required"`
	Filename   string  `json:"filename" validate:"required,max=255"`
	Quantity   *string `json:"quantity" validate:"omitempty,max=20"`
}

// AnalyseUserDocumentRequest records an administrator's verdict on one upload.
type AnalyseUserDocumentRequest struct {
	Status             models.AnalysisStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	ReasonForRejection *string               `json:"reasonForRejection" validate:"required_if=Status REJECTED"`
}

// DownloadLinkResponse carries a presigned download URL.
type DownloadLinkResponse struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expiresAt"`
}
