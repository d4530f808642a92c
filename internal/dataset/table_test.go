package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTableColumns(t *testing.T) {
	tbl := New("id", "nombre")
	tbl.Append([]string{"1", "Juan"})
	tbl.Append([]string{"2"})

	assert.Equal(t, "", tbl.Get(1, "nombre"))
	assert.Equal(t, "", tbl.Get(0, "missing"))

	tbl.Set(0, "universidad", "PUC")
	assert.Equal(t, []string{"id", "nombre", "universidad"}, tbl.Columns)
	assert.Len(t, tbl.Rows[1], 3)

	col, err := tbl.Column("universidad")
	require.NoError(t, err)
	assert.Equal(t, []string{"PUC", ""}, col)

	_, err = tbl.Column("nope")
	assert.Error(t, err)

	assert.Error(t, tbl.SetColumn("x", []string{"only one"}))
	require.NoError(t, tbl.SetColumn("x", []string{"a", "b"}))
	assert.Equal(t, map[string]string{"id": "2", "nombre": "", "universidad": "", "x": "b"}, tbl.Record(1))
}

func TestAppendMapAddsColumns(t *testing.T) {
	tbl := New("id")
	tbl.AppendMap(map[string]string{"id": "7", "b": "2", "a": "1"})
	assert.Equal(t, []string{"id", "a", "b"}, tbl.Columns)
	assert.Equal(t, []string{"7", "1", "2"}, tbl.Rows[0])
}

func TestCloneIsDeep(t *testing.T) {
	tbl := New("a")
	tbl.Append([]string{"x"})
	c := tbl.Clone()
	c.Rows[0][0] = "y"
	assert.Equal(t, "x", tbl.Rows[0][0])
}

func TestCSVRoundTrip(t *testing.T) {
	in := "\ufeffid,universidad\n1,\"Pontificia Universidad Católica, Chile\"\n2,\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "universidad"}, tbl.Columns)
	assert.Equal(t, "Pontificia Universidad Católica, Chile", tbl.Get(0, "universidad"))
	assert.Equal(t, "", tbl.Get(1, "universidad"))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, strings.TrimPrefix(in, "\ufeff"), buf.String())
}

func TestReadXLSXSkipsLeadingBlankRows(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A2", "RBD"))
	require.NoError(t, f.SetCellValue(sheet, "B2", "NOM_RBD"))
	require.NoError(t, f.SetCellValue(sheet, "C2", "COD_DEPE"))
	require.NoError(t, f.SetCellValue(sheet, "A3", "8485"))
	require.NoError(t, f.SetCellValue(sheet, "B3", " INSTITUTO NACIONAL "))
	require.NoError(t, f.SetCellValue(sheet, "C3", "1"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	tbl, err := ReadXLSX(buf.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RBD", "NOM_RBD", "COD_DEPE"}, tbl.Columns)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "INSTITUTO NACIONAL", tbl.Get(0, "NOM_RBD"))
}

func TestWriteFileXLSX(t *testing.T) {
	tbl := New("a", "b")
	tbl.Append([]string{"1", "dos"})
	path := filepath.Join(t.TempDir(), "out", "t.xlsx")
	require.NoError(t, WriteFile(path, tbl))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, back.Columns)
	assert.Equal(t, tbl.Rows, back.Rows)
}
