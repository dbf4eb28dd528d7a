package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is fixed to the embedder family so token counts line up with
// what the upstream charges.
const encodingName = "cl100k_base"

type Chunk struct {
	Index      int
	Text       string
	TokenCount int
	// Paragraph is the index of the source paragraph the chunk starts in.
	Paragraph int
}

type Chunker struct {
	enc     *tiktoken.Tiktoken
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size)")
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Chunker{enc: enc, size: size, overlap: overlap}, nil
}

func (c *Chunker) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Split packs sentences greedily into chunks of at most size tokens, carrying
// trailing sentences worth up to overlap tokens into the next chunk so no
// answer-bearing span is cut in half.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []Chunk
	var cur []sentence
	curTokens := 0
	curParagraph := 0

	flush := func(nextParagraph int) {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, c.build(len(chunks), curParagraph, cur))
		carry, carryTokens := c.carryOver(cur)
		cur = carry
		curTokens = carryTokens
		curParagraph = nextParagraph
	}

	for pi, paragraph := range splitParagraphs(text) {
		for _, sent := range splitSentences(paragraph) {
			tokens := c.CountTokens(sent)
			if tokens > c.size {
				// oversized sentence: flush what we have, then hard-split
				flush(pi)
				cur = nil
				curTokens = 0
				for _, piece := range c.hardSplit(sent) {
					chunks = append(chunks, Chunk{
						Index:      len(chunks),
						Text:       piece,
						TokenCount: c.CountTokens(piece),
						Paragraph:  pi,
					})
				}
				curParagraph = pi
				continue
			}
			if curTokens+tokens > c.size {
				flush(pi)
			}
			if len(cur) == 0 {
				curParagraph = pi
			}
			cur = append(cur, sentence{text: sent, tokens: tokens})
			curTokens += tokens
		}
	}
	if len(cur) > 0 && !onlyCarried(cur) {
		chunks = append(chunks, c.build(len(chunks), curParagraph, cur))
	}
	return chunks
}

type sentence struct {
	text    string
	tokens  int
	carried bool
}

func (c *Chunker) build(index, paragraph int, sentences []sentence) Chunk {
	parts := make([]string, 0, len(sentences))
	for _, s := range sentences {
		parts = append(parts, s.text)
	}
	text := strings.Join(parts, " ")
	return Chunk{
		Index:      index,
		Text:       text,
		TokenCount: c.CountTokens(text),
		Paragraph:  paragraph,
	}
}

// carryOver picks the trailing sentences of a closed chunk worth up to
// overlap tokens. They seed the next chunk and are not re-emitted alone.
func (c *Chunker) carryOver(sentences []sentence) ([]sentence, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		if sentences[i].carried {
			break
		}
		if total+sentences[i].tokens > c.overlap {
			break
		}
		total += sentences[i].tokens
		start = i
	}
	if start == len(sentences) {
		return nil, 0
	}
	carried := make([]sentence, 0, len(sentences)-start)
	for _, s := range sentences[start:] {
		s.carried = true
		carried = append(carried, s)
	}
	return carried, total
}

func onlyCarried(sentences []sentence) bool {
	for _, s := range sentences {
		if !s.carried {
			return false
		}
	}
	return true
}

// hardSplit cuts an oversized sentence on raw token count.
func (c *Chunker) hardSplit(sent string) []string {
	tokens := c.enc.Encode(sent, nil, nil)
	var out []string
	for start := 0; start < len(tokens); start += c.size {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := strings.TrimSpace(c.enc.Decode(tokens[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitSentences cuts on ./!/? followed by whitespace, keeping trailing
// closing quotes and brackets with the sentence they end.
func splitSentences(paragraph string) []string {
	runes := []rune(paragraph)
	var sentences []string
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			j := i + 1
			for j < len(runes) && isClosing(runes[j]) {
				j++
			}
			if j >= len(runes) || isSpace(runes[j]) {
				sent := strings.TrimSpace(string(runes[start:j]))
				if sent != "" {
					sentences = append(sentences, sent)
				}
				for j < len(runes) && isSpace(runes[j]) {
					j++
				}
				start = j
				i = j
				continue
			}
		}
		i++
	}
	if start < len(runes) {
		if sent := strings.TrimSpace(string(runes[start:])); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	return sentences
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
