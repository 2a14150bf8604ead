package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmenradar/internal/resilience"
)

func TestIdentity_Validate(t *testing.T) {
	valid := []CompanyIdentity{
		{CompanyName: "MAGNA Real Estate GmbH"},
		{Registernummer: "HRB182742"},
		{UstIDNr: "DE312345678"},
		{CompanyName: "ACME", Registernummer: "HRB1", UstIDNr: "DE1"},
	}
	for _, id := range valid {
		assert.NoError(t, id.Validate())
	}
}

func TestIdentity_Validate_Empty(t *testing.T) {
	for _, id := range []CompanyIdentity{
		{},
		{CompanyName: "   ", Registernummer: "\t", UstIDNr: ""},
	} {
		err := id.Validate()
		require.Error(t, err)
		assert.Equal(t, resilience.KindInvalidIdentity, resilience.KindOf(err))
	}
}

func TestFingerprint_PrefersRegisternummer(t *testing.T) {
	id := CompanyIdentity{CompanyName: "MAGNA Real Estate GmbH", Registernummer: "HRB 182742"}
	assert.Equal(t, "HRB182742", id.Fingerprint())
}

func TestFingerprint_RegisternummerNormalization(t *testing.T) {
	a := CompanyIdentity{Registernummer: "hrb 182742"}
	b := CompanyIdentity{Registernummer: "HRB182742"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_NameFallback(t *testing.T) {
	id := CompanyIdentity{CompanyName: "MAGNA Real Estate GmbH"}
	assert.Equal(t, "magna-real-estate-gmbh", id.Fingerprint())
}

func TestFingerprint_NameDiacriticsAndPunctuation(t *testing.T) {
	a := CompanyIdentity{CompanyName: "Müller & Söhne GmbH"}
	b := CompanyIdentity{CompanyName: "muller sohne gmbh"}
	assert.Equal(t, b.Fingerprint(), a.Fingerprint())
	assert.Equal(t, "muller-sohne-gmbh", a.Fingerprint())
}

func TestFingerprint_UstIDFallback(t *testing.T) {
	a := CompanyIdentity{UstIDNr: "DE111111111"}
	b := CompanyIdentity{UstIDNr: "de 222222222"}
	require.NoError(t, a.Validate())
	require.NoError(t, b.Validate())
	assert.Equal(t, "DE111111111", a.Fingerprint())
	assert.Equal(t, "DE222222222", b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_Stable(t *testing.T) {
	id := CompanyIdentity{CompanyName: "Nordwind Logistik SE"}
	assert.Equal(t, id.Fingerprint(), id.Fingerprint())
}

func TestIsCanonicalField(t *testing.T) {
	assert.True(t, IsCanonicalField(FieldRegisternummer))
	assert.True(t, IsCanonicalField(FieldUstIDNr))
	assert.False(t, IsCanonicalField("not_a_field"))
	assert.Len(t, CanonicalFieldKeys, 27)
}

func TestRecord_GetAndStringValue(t *testing.T) {
	r := CanonicalCompanyRecord{
		Fields: PartialFieldMap{
			FieldWebsite:     {Key: FieldWebsite, Value: "https://example.de", Source: "northdata"},
			FieldMitarbeiter: {Key: FieldMitarbeiter, Value: 42, Source: "linkedin"},
		},
	}

	fv, ok := r.Get(FieldWebsite)
	require.True(t, ok)
	assert.Equal(t, "northdata", fv.Source)

	assert.Equal(t, "https://example.de", r.StringValue(FieldWebsite))
	assert.Equal(t, "", r.StringValue(FieldMitarbeiter), "non-string value")
	assert.Equal(t, "", r.StringValue(FieldEmail), "absent field")

	_, ok = r.Get(FieldEmail)
	assert.False(t, ok)
}

func TestReport_AllFailed(t *testing.T) {
	r := AggregationReport{Sources: map[string]SourceResult{
		"a": {Status: StatusFailed},
		"b": {Status: StatusFailed},
	}}
	assert.True(t, r.AllFailed())

	r.Sources["c"] = SourceResult{Status: StatusPartialSuccess}
	assert.False(t, r.AllFailed())
}
