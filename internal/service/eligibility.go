package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

// FilterDocuments returns the catalog documents of a step that apply to the
// applicant. A nil modality or vacancy type leaves that dimension unfiltered.
// Catalog order is preserved.
func FilterDocuments(docs []models.ProcessDocument, step models.Step, modality *models.DocumentModality, vacancy *models.VacancyType) []models.ProcessDocument {
	out := make([]models.ProcessDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Step != step {
			continue
		}
		if modality != nil && !doc.Modalities.Contains(*modality) {
			continue
		}
		if vacancy != nil && !doc.VacancyTypes.Contains(*vacancy) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// RequireDocuments fails when a required document of subset has no upload.
// The error lists every missing document by name.
func RequireDocuments(step models.Step, uploaded []models.UserDocumentApplication, subset []models.ProcessDocument) error {
	have := make(map[string]struct{}, len(uploaded))
	for _, u := range uploaded {
		have[u.DocumentID] = struct{}{}
	}

	var missing []string
	for _, doc := range subset {
		if !doc.Required {
			continue
		}
		if _, ok := have[doc.ID]; !ok {
			missing = append(missing, doc.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	msg := fmt.Sprintf("missing mandatory documents for step %s: %s", step, strings.Join(missing, ", "))
	return appErrors.WithDetails(appErrors.ErrMissingDocuments, msg, missing)
}
