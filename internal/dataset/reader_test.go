package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const sampleCSV = `Serial Number,List Year,Date Recorded,Town,Address,Assessed Value,Sale Amount,Sales Ratio,Property Type,Residential Type,Years Until Sold
20001,2020,04/14/2021,Hartford,123 Main St,150000,200000,0.75,Residential,Single Family,1
20002,2019,10/02/2020,Bristol,9 Oak Ave,90000,120000,0.75,Residential,Condo,1
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile_CSV(t *testing.T) {
	path := writeTemp(t, "sales.csv", sampleCSV)

	tbl, err := ReadFile(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, 11, tbl.NumCols())
	assert.Equal(t, "Hartford", tbl.Cell(0, "Town"))

	v, ok := tbl.Float(1, "Sale Amount")
	require.True(t, ok)
	assert.Equal(t, 120000.0, v)
}

func TestReadFile_MissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}

func TestReadFile_MissingColumns(t *testing.T) {
	path := writeTemp(t, "bad.csv", "Serial Number,Town\n1,Hartford\n")

	_, err := ReadFile(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "Sale Amount")
}

func TestReadFile_EmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.csv", "")

	_, err := ReadFile(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadFile_Latin1Encoding(t *testing.T) {
	// "Montréal" with a Latin-1 encoded é (0xE9).
	raw := "Serial Number,List Year,Date Recorded,Town,Address,Assessed Value,Sale Amount,Sales Ratio,Property Type,Residential Type,Years Until Sold\n" +
		"1,2020,04/14/2021,Montr\xe9al,1 Rue,100,200,0.5,Residential,Condo,1\n"
	path := writeTemp(t, "latin1.csv", raw)

	tbl, err := ReadFile(path, Options{Encoding: "iso-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, "Montréal", tbl.Cell(0, "Town"))
}

func TestReadFile_UnknownEncoding(t *testing.T) {
	path := writeTemp(t, "sales.csv", sampleCSV)

	_, err := ReadFile(path, Options{Encoding: "not-a-charset"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoding")
}
