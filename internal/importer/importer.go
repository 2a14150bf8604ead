// Package importer reads company lists for batch aggregation from CSV and
// XLSX files. The expected columns are company name, register number and
// VAT id; header detection is by column name so column order is free.
package importer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/firmenradar/internal/model"
)

// ReadFile reads company identities from path, dispatching on extension.
func ReadFile(path string) ([]model.CompanyIdentity, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %s", filepath.Ext(path))
	}
}

func readCSV(path string) ([]model.CompanyIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var (
		identities []model.CompanyIdentity
		cols       columnIndex
		first      = true
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "importer: read %s", path)
		}
		if first {
			first = false
			if c, ok := detectColumns(row); ok {
				cols = c
				continue
			}
			cols = defaultColumns()
		}
		if id, ok := rowIdentity(row, cols); ok {
			identities = append(identities, id)
		}
	}
	return identities, nil
}

func readXLSX(path string) ([]model.CompanyIdentity, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("importer: %s has no sheets", path)
	}

	var (
		identities []model.CompanyIdentity
		cols       columnIndex
		first      = true
	)
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if first {
			first = false
			if c, ok := detectColumns(cells); ok {
				cols = c
				continue
			}
			cols = defaultColumns()
		}
		if id, ok := rowIdentity(cells, cols); ok {
			identities = append(identities, id)
		}
	}
	return identities, nil
}

// columnIndex maps identity fields to column positions. -1 means absent.
type columnIndex struct {
	name     int
	register int
	ustID    int
}

func defaultColumns() columnIndex {
	return columnIndex{name: 0, register: 1, ustID: 2}
}

// detectColumns recognizes a header row by its column names, in German or
// English. Returns false when the row looks like data.
func detectColumns(row []string) (columnIndex, bool) {
	cols := columnIndex{name: -1, register: -1, ustID: -1}
	found := false
	for i, cell := range row {
		switch normalizeHeader(cell) {
		case "firma", "firmenname", "name", "company", "companyname", "unternehmen":
			cols.name = i
			found = true
		case "registernummer", "register", "hrb", "registernumber":
			cols.register = i
			found = true
		case "ustidnr", "ustid", "vatid", "vat":
			cols.ustID = i
			found = true
		}
	}
	return cols, found
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, cut := range []string{" ", "-", "_", ".", "/"} {
		s = strings.ReplaceAll(s, cut, "")
	}
	return s
}

func rowIdentity(row []string, cols columnIndex) (model.CompanyIdentity, bool) {
	var id model.CompanyIdentity
	id.CompanyName = cellAt(row, cols.name)
	id.Registernummer = cellAt(row, cols.register)
	id.UstIDNr = cellAt(row, cols.ustID)
	if id.Validate() != nil {
		return id, false
	}
	return id, true
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
