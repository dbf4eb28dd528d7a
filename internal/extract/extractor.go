package extract

import (
	"fmt"
	"strings"
	"unicode"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/model"
)

// Result is the text payload plus whatever metadata the format exposes.
type Result struct {
	Text string
	Meta model.DocumentMeta
}

var supportedTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
	"txt":  true,
	"md":   true,
	"csv":  true,
}

func IsSupportedType(fileType string) bool {
	return supportedTypes[strings.ToLower(fileType)]
}

// Extract dispatches on the declared type after verifying the content
// actually matches it. Mislabeled uploads fail here rather than producing
// garbage chunks downstream.
func Extract(filename, fileType string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", appErr.ErrEmptyDocument, filename)
	}
	var res *Result
	var err error
	switch strings.ToLower(fileType) {
	case "pdf":
		if !isPDF(data) {
			return nil, fmt.Errorf("%w: %s declares pdf but lacks the pdf header", appErr.ErrExtraction, filename)
		}
		res, err = extractPDF(data)
	case "docx":
		if !isZip(data) {
			return nil, fmt.Errorf("%w: %s declares docx but is not a zip container", appErr.ErrExtraction, filename)
		}
		res, err = extractDOCX(data)
	case "txt":
		if !isProbablyText(data) {
			return nil, fmt.Errorf("%w: %s declares txt but contains binary data", appErr.ErrExtraction, filename)
		}
		res, err = extractPlainText(data)
	case "md":
		if !isProbablyText(data) {
			return nil, fmt.Errorf("%w: %s declares md but contains binary data", appErr.ErrExtraction, filename)
		}
		res, err = extractMarkdown(data)
	case "csv":
		if !isProbablyText(data) {
			return nil, fmt.Errorf("%w: %s declares csv but contains binary data", appErr.ErrExtraction, filename)
		}
		res, err = extractCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, fileType)
	}
	if err != nil {
		return nil, err
	}
	res.Text = strings.TrimSpace(res.Text)
	if countPrintable(res.Text) == 0 {
		return nil, fmt.Errorf("%w: %s yielded no text", appErr.ErrEmptyDocument, filename)
	}
	res.Meta.CharCount = len(res.Text)
	res.Meta.WordCount = len(strings.Fields(res.Text))
	return res, nil
}

// MatchesType checks the leading bytes against the declared type so that
// mislabeled uploads can be rejected before they are stored. Text formats
// only need to look like text.
func MatchesType(fileType string, head []byte) bool {
	switch strings.ToLower(fileType) {
	case "pdf":
		return isPDF(head)
	case "docx":
		return isZip(head)
	case "txt", "md", "csv":
		return isProbablyText(head)
	default:
		return false
	}
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

// isProbablyText rejects NUL bytes and mostly-unprintable samples.
func isProbablyText(b []byte) bool {
	sample := b
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func countPrintable(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
