package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/model"
)

func TestParseClassificationComplete(t *testing.T) {
	out := `{
		"team": "Engineering",
		"project": "Q1 Launch",
		"doc_type": "design_doc",
		"time_period": "2026-Q1",
		"confidentiality": "confidential",
		"mentioned_people": ["Alice Wei", "Bob Tran"],
		"tags": ["launch", "architecture"],
		"summary": "Design for the Q1 launch.",
		"confidence_scores": {"team": 0.95, "project": 0.8, "doc_type": 0.98, "time_period": 0.9, "confidentiality": 0.85}
	}`
	c, err := parseClassification(out)
	require.NoError(t, err)
	require.Equal(t, "Engineering", c.Team)
	require.Equal(t, "Q1 Launch", c.Project)
	require.Equal(t, "design_doc", c.DocType)
	require.Equal(t, "2026-Q1", c.TimePeriod)
	require.Equal(t, "confidential", c.Confidentiality)
	require.Equal(t, []string{"Alice Wei", "Bob Tran"}, c.MentionedPeople)
	require.Equal(t, []string{"launch", "architecture"}, c.Tags)
	require.Equal(t, 0.95, c.Confidence["team"])
}

func TestParseClassificationStripsFence(t *testing.T) {
	out := "```json\n{\"team\": \"Sales\", \"doc_type\": \"report\"}\n```"
	c, err := parseClassification(out)
	require.NoError(t, err)
	require.Equal(t, "Sales", c.Team)
	require.Equal(t, "report", c.DocType)
}

func TestParseClassificationDefaults(t *testing.T) {
	c, err := parseClassification(`{"doc_type": "blog_post"}`)
	require.NoError(t, err)
	require.Equal(t, "General", c.Team)
	require.Equal(t, "none", c.Project)
	require.Equal(t, "other", c.DocType)
	require.Equal(t, "ongoing", c.TimePeriod)
	require.Equal(t, model.ConfidentialityInternal, c.Confidentiality)
	for _, field := range confidenceFields {
		require.Equal(t, 0.5, c.Confidence[field], field)
	}
}

func TestParseClassificationConfidenceOutOfRange(t *testing.T) {
	_, err := parseClassification(`{"confidence_scores": {"team": 1.5}}`)
	require.Error(t, err)
	_, err = parseClassification(`{"confidence_scores": {"doc_type": -0.1}}`)
	require.Error(t, err)
}

func TestParseClassificationInvalidJSON(t *testing.T) {
	_, err := parseClassification("the model rambled instead")
	require.Error(t, err)
}

func TestCleanList(t *testing.T) {
	in := []string{" Alice ", "alice", "", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace"}
	out := cleanList(in, 5)
	require.Equal(t, []string{"Alice", "Bob", "Carol", "Dave", "Eve"}, out)
}

func TestFallbackClassification(t *testing.T) {
	cases := []struct {
		filename string
		docType  string
	}{
		{"q3_report.pdf", "report"},
		{"vendor_contract.pdf", "contract"},
		{"march_invoice.pdf", "invoice"},
		{"kickoff.pptx", "presentation"},
		{"headcount.xlsx", "spreadsheet"},
		{"notes.txt", "other"},
	}
	for _, tc := range cases {
		c := FallbackClassification(tc.filename)
		require.Equal(t, tc.docType, c.DocType, tc.filename)
		require.Equal(t, "General", c.Team)
		require.Equal(t, model.ConfidentialityInternal, c.Confidentiality)
		require.InDelta(t, 0.1, c.Confidence["team"], 0.001)
	}
}

func TestBuildPromptTruncatesSample(t *testing.T) {
	long := make([]byte, MaxSampleChars+100)
	for i := range long {
		long[i] = 'a'
	}
	prompt := buildPrompt("big.txt", string(long), nil)
	require.Contains(t, prompt, "[... document continues ...]")
	require.Contains(t, prompt, "None specified")
}

func TestBuildPromptIncludesOrgContext(t *testing.T) {
	prompt := buildPrompt("doc.txt", "body", &OrgContext{
		Teams:    []string{"Engineering", "Sales"},
		Projects: []string{"Atlas"},
	})
	require.Contains(t, prompt, "Engineering, Sales")
	require.Contains(t, prompt, "Atlas")
}
