// Package answerkey reads official answer sheets (gabaritos) published
// alongside exam papers.
package answerkey

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/qbank-cli/internal/model"
)

// sidecarSuffixes are tried in order next to a document to find its sheet.
var sidecarSuffixes = []string{
	"_gabarito.xlsx",
	"_gabarito.csv",
	".gabarito.xlsx",
	".gabarito.csv",
}

// Load reads an answer sheet from an xlsx or csv file. Each row holds a
// question number and its letter; rows that are not number/letter pairs
// are skipped, which drops headers and annulled questions.
func Load(path string) (model.AnswerKey, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("answerkey: unsupported file type %s", path)
	}
	if err != nil {
		return nil, err
	}

	key := Parse(rows)
	if len(key) == 0 {
		return nil, eris.Errorf("answerkey: no answers in %s", path)
	}
	return key, nil
}

// Sidecar returns the answer sheet published next to docPath, such as
// USP_2023_gabarito.xlsx for USP_2023.pdf, or "" when there is none.
func Sidecar(docPath string) string {
	stem := strings.TrimSuffix(docPath, filepath.Ext(docPath))
	for _, suffix := range sidecarSuffixes {
		candidate := stem + suffix
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Parse builds a key from rows of cells.
func Parse(rows [][]string) model.AnswerKey {
	key := make(model.AnswerKey)
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		n, ok := questionNumber(row[0])
		if !ok {
			continue
		}
		letter := strings.ToUpper(strings.TrimSpace(row[1]))
		if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'E' {
			continue
		}
		key[n] = letter
	}
	return key
}

// questionNumber accepts "7", "07", "7." and spreadsheet floats like "7.0".
func questionNumber(cell string) (int, bool) {
	cell = strings.TrimSuffix(strings.TrimSpace(cell), ".")
	if n, err := strconv.Atoi(cell); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) || f <= 0 {
		return 0, false
	}
	return int(f), true
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "answerkey: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("answerkey: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "answerkey: read %s", path)
	}

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	// Spreadsheets exported in pt-BR locales separate fields with ';'.
	if first, _, _ := strings.Cut(string(data), "\n"); strings.Count(first, ";") > strings.Count(first, ",") {
		r.Comma = ';'
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "answerkey: parse %s", path)
	}
	return rows, nil
}
