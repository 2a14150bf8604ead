package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadFile_CSVWithHeader(t *testing.T) {
	path := writeCSV(t, `Firmenname,Registernummer,USt-IdNr
MAGNA Real Estate GmbH,HRB182742,DE123456789
Müller & Söhne GmbH,HRB99999,
`)
	identities, err := ReadFile(path)
	require.NoError(t, err)

	require.Len(t, identities, 2)
	assert.Equal(t, "MAGNA Real Estate GmbH", identities[0].CompanyName)
	assert.Equal(t, "HRB182742", identities[0].Registernummer)
	assert.Equal(t, "DE123456789", identities[0].UstIDNr)
	assert.Equal(t, "Müller & Söhne GmbH", identities[1].CompanyName)
}

func TestReadFile_CSVHeaderOrderIsFree(t *testing.T) {
	path := writeCSV(t, `VAT-ID,Company,Register
DE123456789,MAGNA Real Estate GmbH,HRB182742
`)
	identities, err := ReadFile(path)
	require.NoError(t, err)

	require.Len(t, identities, 1)
	assert.Equal(t, "MAGNA Real Estate GmbH", identities[0].CompanyName)
	assert.Equal(t, "HRB182742", identities[0].Registernummer)
	assert.Equal(t, "DE123456789", identities[0].UstIDNr)
}

func TestReadFile_CSVWithoutHeader(t *testing.T) {
	path := writeCSV(t, `MAGNA Real Estate GmbH,HRB182742,DE123456789
`)
	identities, err := ReadFile(path)
	require.NoError(t, err)

	require.Len(t, identities, 1, "a data-looking first row is not swallowed as a header")
	assert.Equal(t, "MAGNA Real Estate GmbH", identities[0].CompanyName)
}

func TestReadFile_SkipsRowsWithoutIdentity(t *testing.T) {
	path := writeCSV(t, `Firma,Registernummer
MAGNA Real Estate GmbH,HRB182742
,
   ,
,HRB99999
`)
	identities, err := ReadFile(path)
	require.NoError(t, err)

	require.Len(t, identities, 2, "empty rows are dropped, identifier-only rows are kept")
	assert.Equal(t, "HRB99999", identities[1].Registernummer)
	assert.Empty(t, identities[1].CompanyName)
}

func TestReadFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Companies")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, cell := range []string{"Firma", "Registernummer"} {
		header.AddCell().SetString(cell)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("MAGNA Real Estate GmbH")
	row.AddCell().SetString("HRB182742")

	path := filepath.Join(t.TempDir(), "companies.xlsx")
	require.NoError(t, f.Save(path))

	identities, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, identities, 1)
	assert.Equal(t, "MAGNA Real Estate GmbH", identities[0].CompanyName)
	assert.Equal(t, "HRB182742", identities[0].Registernummer)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	_, err := ReadFile(path)
	require.Error(t, err)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "ustidnr", normalizeHeader(" USt-IdNr "))
	assert.Equal(t, "firmenname", normalizeHeader("Firmenname"))
	assert.Equal(t, "registernumber", normalizeHeader("Register Number"))
}
