package model

// DocumentTypes is the closed vocabulary the classifier chooses from.
var DocumentTypes = []string{
	"contract", "policy", "report", "presentation", "meeting_notes",
	"invoice", "receipt", "proposal", "memo", "email", "spreadsheet",
	"handbook", "guide", "manual", "whitepaper", "case_study",
	"specification", "design_doc", "research", "analysis", "other",
}

const (
	ConfidentialityPublic       = "public"
	ConfidentialityInternal     = "internal"
	ConfidentialityConfidential = "confidential"
	ConfidentialityRestricted   = "restricted"
)

var ConfidentialityLevels = []string{
	ConfidentialityPublic,
	ConfidentialityInternal,
	ConfidentialityConfidential,
	ConfidentialityRestricted,
}

type Classification struct {
	ID              int64              `json:"id"`
	DocumentID      int64              `json:"document_id"`
	OrgID           string             `json:"org_id"`
	Team            string             `json:"team"`
	Project         string             `json:"project"`
	DocType         string             `json:"doc_type"`
	TimePeriod      string             `json:"time_period"`
	Confidentiality string             `json:"confidentiality"`
	MentionedPeople []string           `json:"mentioned_people"`
	Tags            []string           `json:"tags"`
	Summary         string             `json:"summary"`
	Confidence      map[string]float64 `json:"confidence_scores"`
	Ctime           int64              `json:"ctime"`
	Mtime           int64              `json:"mtime"`
}

func IsKnownDocType(v string) bool {
	for _, t := range DocumentTypes {
		if t == v {
			return true
		}
	}
	return false
}

func IsKnownConfidentiality(v string) bool {
	for _, l := range ConfidentialityLevels {
		if l == v {
			return true
		}
	}
	return false
}
