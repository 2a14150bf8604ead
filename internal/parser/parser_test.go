package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

func TestRegistry_DispatchesByFormat(t *testing.T) {
	reg := DefaultRegistry("")

	fields, err := reg.Parse(context.Background(), source.Unternehmensregister,
		htmlDoc(model.FieldSearchResultsHTML, `<html><p>Amtsgericht Hamburg HRB 182742</p></html>`))
	require.NoError(t, err)
	assert.Equal(t, "HRB182742", fields[model.FieldRegisternummer].Value)

	fields, err = reg.Parse(context.Background(), source.Handelsregister,
		siDoc(`<nachricht><laufendeNummer>1</laufendeNummer></nachricht>`))
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRegistry_UnregisteredFormat(t *testing.T) {
	reg := NewRegistry(NewHTMLParser())

	_, err := reg.Parse(context.Background(), source.Handelsregister,
		source.Document{Format: source.FormatPDF, Name: model.FieldPDFFilepath, Data: []byte("%PDF")})
	require.Error(t, err)
	assert.Equal(t, resilience.KindMalformedResponse, resilience.KindOf(err))
}

func TestPut_SkipsEmptyValues(t *testing.T) {
	fields := make(model.PartialFieldMap)
	put(fields, model.FieldWebsite, "")
	put(fields, model.FieldGeschaeftsfuehrer, []string{})
	put(fields, model.FieldInsolvenz, nil)
	assert.Empty(t, fields)

	put(fields, model.FieldWebsite, "https://magna.example")
	put(fields, model.FieldMitarbeiter, 0)
	assert.Len(t, fields, 2, "numeric zero is a real value, empty string is not")
}
