package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

func extractDOCX(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx: %v", appErr.ErrExtraction, err)
	}
	doc := findZipFile(zr, "word/document.xml")
	if doc == nil {
		return nil, fmt.Errorf("%w: docx has no word/document.xml", appErr.ErrExtraction)
	}
	body, err := readZipFile(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: read docx body: %v", appErr.ErrExtraction, err)
	}
	text, structure, err := walkDocumentXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx body: %v", appErr.ErrExtraction, err)
	}
	res := &Result{Text: text}
	res.Meta.Structure = structure
	if core := findZipFile(zr, "docProps/core.xml"); core != nil {
		if raw, err := readZipFile(core); err == nil {
			fillCoreProps(raw, &res.Meta)
		}
	}
	return res, nil
}

// walkDocumentXML renders paragraphs blank-line separated and flattens table
// rows as "cell | cell" lines. Heading styles are collected as structure.
func walkDocumentXML(body []byte) (string, []string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var blocks []string
	var structure []string

	var paragraph strings.Builder
	var cell strings.Builder
	var row []string
	var tableRows []string
	inCell := false
	paragraphStyle := ""

	flushParagraph := func() {
		text := strings.TrimSpace(paragraph.String())
		paragraph.Reset()
		if text == "" {
			return
		}
		if inCell {
			if cell.Len() > 0 {
				cell.WriteString(" ")
			}
			cell.WriteString(text)
			return
		}
		if strings.HasPrefix(paragraphStyle, "Heading") {
			structure = append(structure, text)
		}
		blocks = append(blocks, text)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableRows = nil
			case "tr":
				row = nil
			case "tc":
				inCell = true
				cell.Reset()
			case "p":
				paragraph.Reset()
				paragraphStyle = ""
			case "pStyle":
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						paragraphStyle = attr.Value
					}
				}
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &t); err == nil {
					paragraph.WriteString(v)
				}
			case "tab":
				paragraph.WriteString("\t")
			case "br":
				paragraph.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				flushParagraph()
			case "tc":
				inCell = false
				row = append(row, strings.TrimSpace(cell.String()))
			case "tr":
				if len(row) > 0 {
					tableRows = append(tableRows, strings.Join(row, " | "))
				}
			case "tbl":
				if len(tableRows) > 0 {
					blocks = append(blocks, strings.Join(tableRows, "\n"))
				}
			}
		}
	}
	return strings.Join(blocks, "\n\n"), structure, nil
}

type coreProps struct {
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

func fillCoreProps(raw []byte, meta *model.DocumentMeta) {
	var props coreProps
	if err := xml.Unmarshal(raw, &props); err != nil {
		return
	}
	meta.Author = strings.TrimSpace(props.Creator)
	meta.CreatedAt = strings.TrimSpace(props.Created)
	meta.ModifiedAt = strings.TrimSpace(props.Modified)
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
