package extract

import (
	"encoding/csv"
	"fmt"
	"strings"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

// extractCSV serializes each data row as "col: value; col: value" so that a
// row survives chunking as one self-describing sentence.
func extractCSV(data []byte) (*Result, error) {
	reader := csv.NewReader(strings.NewReader(decodeUTF8Lossy(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv: %v", appErr.ErrExtraction, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", appErr.ErrEmptyDocument)
	}
	header := records[0]
	columns := make([]string, 0, len(header))
	for _, col := range header {
		columns = append(columns, strings.TrimSpace(col))
	}
	var lines []string
	lines = append(lines, strings.Join(columns, ", "))
	for _, record := range records[1:] {
		var pairs []string
		for i, value := range record {
			col := fmt.Sprintf("column_%d", i+1)
			if i < len(columns) && columns[i] != "" {
				col = columns[i]
			}
			pairs = append(pairs, col+": "+strings.TrimSpace(value))
		}
		if len(pairs) > 0 {
			lines = append(lines, strings.Join(pairs, "; "))
		}
	}
	res := &Result{Text: strings.Join(lines, "\n")}
	res.Meta.Columns = columns
	res.Meta.RowCount = len(records) - 1
	return res, nil
}
