package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const manifestSheet = "metadata"

// PromptsHeader is the first line of a prompts export.
var PromptsHeader = []string{"Filename", "Prompt"}

// ManifestCSV renders the metadata manifest. The header is written bare;
// every data field is double-quoted with embedded quotes doubled. Lines are
// separated by a single newline with no trailing newline.
func ManifestCSV(rows [][]string) string {
	return renderCSV(ManifestHeader, rows)
}

// PromptsCSV renders generated image prompts as Filename,Prompt rows.
func PromptsCSV(rows [][]string) string {
	return renderCSV(PromptsHeader, rows)
}

// PromptsFileName returns the download name for a prompts export.
func PromptsFileName(t time.Time) string {
	return fmt.Sprintf("prompts_%s.csv", t.Format("2006-01-02"))
}

func renderCSV(header []string, rows [][]string) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(header, ","))
	for _, row := range rows {
		quoted := make([]string, len(row))
		for i, field := range row {
			quoted[i] = quote(field)
		}
		lines = append(lines, strings.Join(quoted, ","))
	}
	return strings.Join(lines, "\n")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ManifestWorkbook renders the same manifest rows as an xlsx workbook.
func ManifestWorkbook(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", manifestSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	all := append([][]string{ManifestHeader}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(manifestSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
