package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()
	path := writeWorkbook(t, [][]string{
		{"Producer", "Account", "State"},
		{"Neil Parton", "Gallagher", "CA"},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Neil Parton", rows[1][0])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	t.Parallel()
	path := writeWorkbook(t, [][]string{
		{"export generated 2024-06-01"},
		{"Producer", "Account"},
		{"Neil Parton", "Gallagher"},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Producer", rows[0][0])
}

func TestReadXLSX_SheetName(t *testing.T) {
	t.Parallel()
	path := writeWorkbook(t, [][]string{{"x"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Sheet1"})
	require.NoError(t, err)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
}

func TestReadXLSX_BadFile(t *testing.T) {
	t.Parallel()
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}
