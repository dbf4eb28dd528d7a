package extract

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

// minPrintablePerPage is the average threshold below which a pdf is treated
// as a scan. Without an OCR engine wired in, scans are an extraction failure.
const minPrintablePerPage = 50

func extractPDF(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", appErr.ErrExtraction, err)
	}
	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", appErr.ErrEmptyDocument)
	}
	var pages []string
	totalPrintable := 0
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			pages = append(pages, text)
		}
		totalPrintable += countPrintable(text)
	}
	if totalPrintable/pageCount < minPrintablePerPage {
		return nil, fmt.Errorf("%w: pdf averages %d printable chars per page, likely a scan",
			appErr.ErrExtraction, totalPrintable/pageCount)
	}
	res := &Result{Text: strings.Join(pages, "\n\n")}
	res.Meta.PageCount = pageCount
	if info := pdfInfo(reader); info != nil {
		res.Meta.Author = info["Author"]
		res.Meta.CreatedAt = info["CreationDate"]
		res.Meta.ModifiedAt = info["ModDate"]
	}
	return res, nil
}

// pdfInfo pulls the classic Info dictionary fields when present.
func pdfInfo(reader *pdf.Reader) map[string]string {
	defer func() { recover() }()
	trailer := reader.Trailer()
	if trailer.IsNull() {
		return nil
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return nil
	}
	out := map[string]string{}
	for _, key := range []string{"Author", "CreationDate", "ModDate"} {
		if v := info.Key(key); !v.IsNull() {
			if s := strings.TrimSpace(v.Text()); s != "" {
				out[key] = s
			}
		}
	}
	return out
}
