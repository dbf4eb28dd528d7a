package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/model"
)

// MaxSampleChars bounds how much document text goes into the prompt.
// Callers assembling a sample can stop collecting once they have this much.
const MaxSampleChars = 6000

const (
	maxTags   = 5
	maxPeople = 10
)

var confidenceFields = []string{"team", "project", "doc_type", "time_period", "confidentiality"}

type Classifier struct {
	generator ai.IGenerator
	orgCtx    *OrgContextProvider
}

func NewClassifier(generator ai.IGenerator, orgCtx *OrgContextProvider) *Classifier {
	return &Classifier{generator: generator, orgCtx: orgCtx}
}

// Classify never fails: when the model is unreachable or keeps returning
// invalid output after a retry, the filename-based fallback is returned so
// document processing can always complete.
func (c *Classifier) Classify(ctx context.Context, orgID string, docID int64, filename, text string) *model.Classification {
	var octx *OrgContext
	if c.orgCtx != nil {
		octx = c.orgCtx.Get(ctx, orgID)
	}
	prompt := buildPrompt(filename, text, octx)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if c.generator == nil {
			lastErr = fmt.Errorf("classifier generator not configured")
			break
		}
		res, err := c.generator.Generate(ctx, prompt, ai.GenerateOptions{
			Temperature: 0.3,
			JSONMode:    true,
		})
		if err != nil {
			lastErr = err
			continue
		}
		classification, err := parseClassification(res.Text)
		if err != nil {
			lastErr = err
			continue
		}
		classification.OrgID = orgID
		classification.DocumentID = docID
		return classification
	}
	logutil.GetLogger(ctx).Warn("classification failed, using fallback",
		zap.String("filename", filename), zap.Error(lastErr))
	fallback := FallbackClassification(filename)
	fallback.OrgID = orgID
	fallback.DocumentID = docID
	return fallback
}

func buildPrompt(filename, text string, octx *OrgContext) string {
	sample := text
	if len(sample) > MaxSampleChars {
		sample = sample[:MaxSampleChars] + "\n\n[... document continues ...]"
	}
	teams := "None specified"
	projects := "None specified"
	if octx != nil {
		if len(octx.Teams) > 0 {
			teams = strings.Join(octx.Teams, ", ")
		}
		if len(octx.Projects) > 0 {
			projects = strings.Join(octx.Projects, ", ")
		}
	}
	return fmt.Sprintf(`Analyze this document and provide a comprehensive classification.

**Document Filename:** %s

**Document Content:**
%s

**Organization Context:**
- Known Teams: %s
- Known Projects: %s

**Instructions:**
Provide a JSON response with the following structure:

{
  "team": "The team this document belongs to (e.g., Engineering, Marketing, Sales, HR, Finance, Operations, Legal, Executive). Use known teams if applicable, or infer from content.",
  "project": "The project this document relates to (e.g., Q1 Launch, Product Redesign, Budget 2024). Use known projects if applicable, or 'none' if not project-specific.",
  "doc_type": "Document type. Choose from: %s",
  "time_period": "Time period referenced in the document. Format as 'YYYY', 'YYYY-QN', 'MMM-YYYY', or 'FYYYYY'. Use 'ongoing' if no specific period.",
  "confidentiality": "Confidentiality level. Choose from: %s. Use context clues like 'confidential', 'internal only', 'public', etc.",
  "mentioned_people": ["List of full names mentioned in the document. Include only actual people, not roles or positions. Limit to 10 most relevant."],
  "tags": ["3-5 relevant keywords/tags that describe the document content"],
  "summary": "Brief 1-2 sentence summary of the document",
  "confidence_scores": {
    "team": 0.95,
    "project": 0.80,
    "doc_type": 0.98,
    "time_period": 0.90,
    "confidentiality": 0.85
  }
}

**Guidelines:**
1. If you cannot determine a field with confidence, use appropriate defaults:
   - team: "General"
   - project: "none"
   - doc_type: "other"
   - time_period: "ongoing"
   - confidentiality: "internal"

2. Confidence scores must be between 0.0 and 1.0.

3. Extract only real person names from the content, not email signatures or headers.

4. Tags should be specific and relevant (e.g., "product-launch", "hiring", "Q1-metrics").

Respond ONLY with valid JSON, no additional text.`,
		filename, sample, teams, projects,
		strings.Join(model.DocumentTypes, ", "),
		strings.Join(model.ConfidentialityLevels, ", "))
}

type rawClassification struct {
	Team            string             `json:"team"`
	Project         string             `json:"project"`
	DocType         string             `json:"doc_type"`
	TimePeriod      string             `json:"time_period"`
	Confidentiality string             `json:"confidentiality"`
	MentionedPeople []string           `json:"mentioned_people"`
	Tags            []string           `json:"tags"`
	Summary         string             `json:"summary"`
	Confidence      map[string]float64 `json:"confidence_scores"`
}

// parseClassification validates model output. Out-of-range confidences are
// rejected outright rather than clamped; a model that cannot keep scores in
// [0,1] is not trusted on the rest either.
func parseClassification(output string) (*model.Classification, error) {
	var raw rawClassification
	if err := json.Unmarshal([]byte(ai.StripJSONFence(output)), &raw); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}
	if raw.Confidence == nil {
		raw.Confidence = map[string]float64{}
	}
	for _, field := range confidenceFields {
		score, ok := raw.Confidence[field]
		if !ok {
			raw.Confidence[field] = 0.5
			continue
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("confidence %s out of range: %v", field, score)
		}
	}
	c := &model.Classification{
		Team:            strings.TrimSpace(raw.Team),
		Project:         strings.TrimSpace(raw.Project),
		DocType:         strings.TrimSpace(raw.DocType),
		TimePeriod:      strings.TrimSpace(raw.TimePeriod),
		Confidentiality: strings.TrimSpace(raw.Confidentiality),
		MentionedPeople: cleanList(raw.MentionedPeople, maxPeople),
		Tags:            cleanList(raw.Tags, maxTags),
		Summary:         strings.TrimSpace(raw.Summary),
		Confidence:      raw.Confidence,
	}
	if c.Team == "" {
		c.Team = "General"
	}
	if c.Project == "" {
		c.Project = "none"
	}
	if !model.IsKnownDocType(c.DocType) {
		c.DocType = "other"
	}
	if c.TimePeriod == "" {
		c.TimePeriod = "ongoing"
	}
	if !model.IsKnownConfidentiality(c.Confidentiality) {
		c.Confidentiality = model.ConfidentialityInternal
	}
	return c, nil
}

func cleanList(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}
