package classify

import (
	"strings"

	"github.com/flockhq/flock/internal/model"
)

// FallbackClassification infers what it can from the filename alone. It
// carries low confidence scores so consumers can tell it apart from a real
// model classification.
func FallbackClassification(filename string) *model.Classification {
	lower := strings.ToLower(filename)
	docType := "other"
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		switch {
		case strings.Contains(lower, "report"):
			docType = "report"
		case strings.Contains(lower, "contract"):
			docType = "contract"
		case strings.Contains(lower, "invoice"):
			docType = "invoice"
		}
	case strings.HasSuffix(lower, ".ppt"), strings.HasSuffix(lower, ".pptx"):
		docType = "presentation"
	case strings.HasSuffix(lower, ".xls"), strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".csv"):
		docType = "spreadsheet"
	}
	return &model.Classification{
		Team:            "General",
		Project:         "none",
		DocType:         docType,
		TimePeriod:      "ongoing",
		Confidentiality: model.ConfidentialityInternal,
		MentionedPeople: []string{},
		Tags:            []string{"unclassified"},
		Summary:         "Document could not be automatically classified",
		Confidence: map[string]float64{
			"team":            0.1,
			"project":         0.1,
			"doc_type":        0.3,
			"time_period":     0.1,
			"confidentiality": 0.3,
		},
	}
}
