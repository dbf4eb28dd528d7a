package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewChunkerValidation(t *testing.T) {
	_, err := NewChunker(0, 0)
	require.Error(t, err)
	_, err = NewChunker(100, 100)
	require.Error(t, err)
	_, err = NewChunker(100, -1)
	require.Error(t, err)
	_, err = NewChunker(100, 20)
	require.NoError(t, err)
}

func TestSplitEmpty(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	require.Nil(t, c.Split(""))
	require.Nil(t, c.Split("   \n\n  "))
}

func TestSplitSingleSentence(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	chunks := c.Split("The quarterly report is ready.")
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, "The quarterly report is ready.", chunks[0].Text)
	require.Positive(t, chunks[0].TokenCount)
}

func TestSplitRespectsTokenBudget(t *testing.T) {
	c, err := NewChunker(40, 10)
	require.NoError(t, err)
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Budgets are reviewed every quarter by the finance team. ")
	}
	chunks := c.Split(b.String())
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.TokenCount, 40, "chunk %d over budget", chunk.Index)
		require.Equal(t, chunk.Index, chunks[chunk.Index].Index)
	}
}

func TestSplitOverlapCarriesTrailingSentence(t *testing.T) {
	c, err := NewChunker(30, 15)
	require.NoError(t, err)
	text := "Alpha works on billing systems. Beta leads the mobile team. " +
		"Gamma maintains the data warehouse. Delta handles vendor contracts. " +
		"Epsilon runs the support rotation."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	// the chunk after a flush starts with the carried tail of its predecessor
	first := strings.Split(chunks[0].Text, ". ")
	carried := first[len(first)-1]
	carried = strings.TrimSuffix(carried, ".")
	require.Contains(t, chunks[1].Text, carried)
}

func TestSplitNoOverlap(t *testing.T) {
	c, err := NewChunker(30, 0)
	require.NoError(t, err)
	text := "Alpha works on billing systems. Beta leads the mobile team. " +
		"Gamma maintains the data warehouse. Delta handles vendor contracts."
	chunks := c.Split(text)
	seen := map[string]bool{}
	for _, chunk := range chunks {
		for _, sent := range strings.Split(chunk.Text, ". ") {
			sent = strings.TrimSuffix(strings.TrimSpace(sent), ".")
			if sent == "" {
				continue
			}
			require.False(t, seen[sent], "sentence repeated without overlap: %q", sent)
			seen[sent] = true
		}
	}
}

func TestSplitOversizedSentenceHardSplit(t *testing.T) {
	c, err := NewChunker(20, 5)
	require.NoError(t, err)
	long := strings.Repeat("token ", 200) + "end."
	chunks := c.Split(long)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.TokenCount, 20)
	}
}

func TestSplitParagraphTracking(t *testing.T) {
	c, err := NewChunker(200, 20)
	require.NoError(t, err)
	chunks := c.Split("First paragraph here.\n\nSecond paragraph here.")
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Paragraph)
}

func TestSplitSentencesKeepsClosingQuotes(t *testing.T) {
	sentences := splitSentences(`He said "we ship Friday." The team agreed.`)
	require.Len(t, sentences, 2)
	require.Equal(t, `He said "we ship Friday."`, sentences[0])
	require.Equal(t, "The team agreed.", sentences[1])
}

func TestSplitParagraphsNormalizesCRLF(t *testing.T) {
	paragraphs := splitParagraphs("one\r\n\r\ntwo\n\n\n\nthree")
	require.Equal(t, []string{"one", "two", "three"}, paragraphs)
}

func TestCountTokens(t *testing.T) {
	c, err := NewChunker(100, 0)
	require.NoError(t, err)
	require.Equal(t, 0, c.CountTokens(""))
	require.Positive(t, c.CountTokens("hello world"))
}
