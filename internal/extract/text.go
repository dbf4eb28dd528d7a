package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

func extractPlainText(data []byte) (*Result, error) {
	return &Result{Text: decodeUTF8Lossy(data)}, nil
}

// extractMarkdown parses the document so formatting syntax does not leak
// into chunks, and collects headings as the document outline.
func extractMarkdown(data []byte) (*Result, error) {
	source := []byte(decodeUTF8Lossy(data))
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))

	var blocks []string
	var structure []string
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		text := renderBlockText(node, source)
		if text == "" {
			continue
		}
		if heading, ok := node.(*ast.Heading); ok && heading.Level <= 3 {
			structure = append(structure, text)
		}
		blocks = append(blocks, text)
	}
	res := &Result{Text: strings.Join(blocks, "\n\n")}
	res.Meta.Structure = structure
	return res, nil
}

func renderBlockText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.AutoLink:
			b.Write(t.URL(source))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// decodeUTF8Lossy replaces invalid sequences instead of failing the upload.
func decodeUTF8Lossy(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
