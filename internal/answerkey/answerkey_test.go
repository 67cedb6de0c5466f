package answerkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/qbank-cli/internal/model"
)

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Gabarito")
	require.NoError(t, err)
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "USP_2023_gabarito.xlsx")
	writeXLSX(t, path, [][]string{
		{"Questão", "Resposta"},
		{"1", "c"},
		{"2", "A"},
		{"3", "ANULADA"},
		{"4.0", " e "},
	})

	key, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.AnswerKey{1: "C", 2: "A", 4: "E"}, key)
}

func TestLoad_CSV(t *testing.T) {
	dir := t.TempDir()

	comma := filepath.Join(dir, "comma.csv")
	require.NoError(t, os.WriteFile(comma, []byte("questao,resposta\n1,B\n02,D\n"), 0o600))
	key, err := Load(comma)
	require.NoError(t, err)
	assert.Equal(t, model.AnswerKey{1: "B", 2: "D"}, key)

	semicolon := filepath.Join(dir, "semicolon.csv")
	require.NoError(t, os.WriteFile(semicolon, []byte("questão;resposta\n1.;A\n2;x\n3;C\n"), 0o600))
	key, err = Load(semicolon)
	require.NoError(t, err)
	assert.Equal(t, model.AnswerKey{1: "A", 3: "C"}, key)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "gabarito.pdf"))
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = Load(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.xlsx"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("questao,resposta\n"), 0o600))
	_, err = Load(empty)
	assert.ErrorContains(t, err, "no answers")
}

func TestSidecar(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "USP_2023.pdf")

	assert.Empty(t, Sidecar(doc))

	csvKey := filepath.Join(dir, "USP_2023.gabarito.csv")
	require.NoError(t, os.WriteFile(csvKey, []byte("1,A\n"), 0o600))
	assert.Equal(t, csvKey, Sidecar(doc))

	xlsxKey := filepath.Join(dir, "USP_2023_gabarito.xlsx")
	writeXLSX(t, xlsxKey, [][]string{{"1", "A"}})
	assert.Equal(t, xlsxKey, Sidecar(doc))
}

func TestQuestionNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"7", 7, true},
		{"07", 7, true},
		{"7.", 7, true},
		{"7.0", 7, true},
		{" 12 ", 12, true},
		{"7.5", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
		{"Questão", 0, false},
	}
	for _, tt := range tests {
		got, ok := questionNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
