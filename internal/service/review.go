package service

import "github.com/noah-isme/admissions-api/internal/models"

// AllDocumentsAnalyzed reports whether every upload carries an analysis outcome.
// An application without uploads is trivially analyzed.
func AllDocumentsAnalyzed(docs []models.UserDocumentApplication) bool {
	for i := range docs {
		if !docs[i].Analyzed() {
			return false
		}
	}
	return true
}

func pendingDocumentIDs(docs []models.UserDocumentApplication) []string {
	var pending []string
	for _, doc := range docs {
		if !doc.Analyzed() {
			pending = append(pending, doc.ID)
		}
	}
	return pending
}
