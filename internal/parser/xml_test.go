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

const sampleSIDocument = `<?xml version="1.0" encoding="UTF-8"?>
<tns:nachricht xmlns:tns="http://www.xjustiz.de">
  <tns:grunddaten>
    <tns:register><tns:code>HRB</tns:code></tns:register>
    <tns:laufendeNummer>182742</tns:laufendeNummer>
    <tns:gericht><tns:code>K1101R</tns:code></tns:gericht>
  </tns:grunddaten>
  <tns:beteiligung>
    <tns:rolle><tns:code>086</tns:code></tns:rolle>
    <tns:vorname>Hans</tns:vorname>
    <tns:nachname>Müller</tns:nachname>
  </tns:beteiligung>
  <tns:beteiligung>
    <tns:rolle><tns:code>020</tns:code></tns:rolle>
    <tns:vorname>Eva</tns:vorname>
    <tns:nachname>Schmidt</tns:nachname>
  </tns:beteiligung>
  <tns:anschrift>
    <tns:strasse>Große Elbstraße</tns:strasse>
    <tns:hausnummer>45</tns:hausnummer>
    <tns:postleitzahl>22767</tns:postleitzahl>
    <tns:ort>Hamburg</tns:ort>
    <tns:staat><tns:code>000</tns:code></tns:staat>
  </tns:anschrift>
  <tns:basisdatenRegister>
    <tns:gegenstand>Erwerb und Verwaltung von Immobilien, Tätigkeiten nach § 34c GewO</tns:gegenstand>
    <tns:eintragungsdatum>2009-05-14</tns:eintragungsdatum>
    <tns:sonstigeRechtsverhaeltnisse>Einzelprokura: Schmidt, Eva</tns:sonstigeRechtsverhaeltnisse>
  </tns:basisdatenRegister>
</tns:nachricht>`

func siDoc(data string) source.Document {
	return source.Document{
		Format: source.FormatXML,
		Name:   model.FieldXMLFilepath,
		Data:   []byte(data),
	}
}

func TestXMLParser_RegisterContent(t *testing.T) {
	fields, err := NewXMLParser().Parse(context.Background(), source.Handelsregister, siDoc(sampleSIDocument))
	require.NoError(t, err)

	assert.Equal(t, "HRB182742", fields[model.FieldRegisternummer].Value)
	assert.Equal(t, "Hamburg", fields[model.FieldHandelsregister].Value)
	assert.Equal(t, "Amtsgericht Hamburg", fields[model.FieldGerichtsstand].Value)
	assert.Equal(t, []string{"Hans Müller"}, fields[model.FieldGeschaeftsfuehrer].Value,
		"only role 086 participants are managing directors")
	assert.Equal(t, "Große Elbstraße 45, 22767 Hamburg", fields[model.FieldGeschaeftsadresse].Value)
	assert.Equal(t, "Deutschland", fields[model.FieldLandDesHauptsitzes].Value)
	assert.Equal(t, true, fields[model.FieldParagraph34GewO].Value)
	assert.Equal(t, "2009-05-14", fields[model.FieldAktivSeit].Value)
	assert.Equal(t, "Einzelprokura: Schmidt, Eva", fields[model.FieldSonstigeRechte].Value)
	assert.Contains(t, fields[model.FieldUnternehmenszweck].Value, "§ 34c GewO")
}

func TestXMLParser_SkipsStructuralPlaceholder(t *testing.T) {
	doc := siDoc(`<nachricht><basisdatenRegister><gegenstand>Strukturierter Registerinhalt</gegenstand></basisdatenRegister></nachricht>`)
	fields, err := NewXMLParser().Parse(context.Background(), source.Handelsregister, doc)
	require.NoError(t, err)
	assert.NotContains(t, fields, model.FieldUnternehmenszweck)
	assert.NotContains(t, fields, model.FieldParagraph34GewO)
}

func TestXMLParser_PartialAddressStaysAbsent(t *testing.T) {
	doc := siDoc(`<nachricht><anschrift><strasse>Elbchaussee</strasse><ort>Hamburg</ort></anschrift></nachricht>`)
	fields, err := NewXMLParser().Parse(context.Background(), source.Handelsregister, doc)
	require.NoError(t, err)
	assert.NotContains(t, fields, model.FieldGeschaeftsadresse)
}

func TestXMLParser_UnknownCourtCode(t *testing.T) {
	doc := siDoc(`<nachricht><gericht><code>X9999R</code></gericht></nachricht>`)
	fields, err := NewXMLParser().Parse(context.Background(), source.Handelsregister, doc)
	require.NoError(t, err)
	assert.NotContains(t, fields, model.FieldHandelsregister)
}

func TestXMLParser_BadDocument(t *testing.T) {
	for name, data := range map[string]string{
		"truncated": `<nachricht><grunddaten>`,
		"not xml":   `this is not a register document`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewXMLParser().Parse(context.Background(), source.Handelsregister, siDoc(data))
			require.Error(t, err)
			assert.Equal(t, resilience.KindMalformedResponse, resilience.KindOf(err))
		})
	}
}
