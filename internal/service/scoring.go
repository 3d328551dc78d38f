package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/admissions-api/internal/models"
)

// CurriculumScore is min(maximumScore, quantity*score). Unscored documents and
// absent, non-numeric or negative quantities score zero.
func CurriculumScore(score, maximumScore *float64, quantity *string) float64 {
	if score == nil || maximumScore == nil || quantity == nil {
		return 0
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(*quantity), 64)
	if err != nil || q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return math.Min(*maximumScore, q*(*score))
}

// ApplicationCurriculumScore sums the curriculum score of every upload against
// its catalog document.
func ApplicationCurriculumScore(catalog []models.ProcessDocument, uploads []models.UserDocumentApplication) float64 {
	byID := make(map[string]models.ProcessDocument, len(catalog))
	for _, doc := range catalog {
		byID[doc.ID] = doc
	}
	var total float64
	for _, upload := range uploads {
		doc, ok := byID[upload.DocumentID]
		if !ok || !doc.Scored() {
			continue
		}
		total += CurriculumScore(doc.Score, doc.MaximumScore, upload.Quantity)
	}
	return total
}
