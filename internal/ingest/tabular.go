package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/audit-cli/internal/model"
)

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: csv: read row")
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// readXLSX returns the rows of the workbook's first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// tableToBatch turns a header row plus data rows into records. Blank rows are
// dropped; short rows leave trailing columns empty.
func tableToBatch(rows [][]string) (model.Batch, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = h
	}

	batch := model.Batch{}
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		if len(row) > len(header) {
			return nil, eris.Errorf("ingest: row %d has %d cells, header has %d", n+2, len(row), len(header))
		}
		rec := make(model.Record, len(header))
		for i, key := range header {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			rec[key] = cellValue(cell)
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cellValue converts numeric-looking cells to float64. Values with leading
// zeros ("00123") are identifiers and stay strings.
func cellValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return s
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || strings.ContainsAny(s, "xXeEpP_") || strings.EqualFold(s, "nan") || strings.Contains(strings.ToLower(s), "inf") {
		return s
	}
	if strings.Contains(s, ",") && !thousands(s) {
		return s
	}
	return f
}

// thousands reports whether the commas in s are thousands separators.
func thousands(s string) bool {
	intPart := strings.TrimLeft(s, "+-")
	if i := strings.IndexByte(intPart, '.'); i >= 0 {
		intPart = intPart[:i]
	}
	groups := strings.Split(intPart, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}
