package model

import "time"

// Canonical field keys. Together they form the 27-field canonical record.
const (
	// Registry facts.
	FieldRegisternummer     = "registernummer"
	FieldHandelsregister    = "handelsregister"
	FieldGeschaeftsadresse  = "geschaeftsadresse"
	FieldUnternehmenszweck  = "unternehmenszweck"
	FieldLandDesHauptsitzes = "land_des_hauptsitzes"
	FieldGerichtsstand      = "gerichtsstand"
	FieldParagraph34GewO    = "paragraph_34_gewo"

	// Financial facts.
	FieldMitarbeiter = "mitarbeiter"
	FieldUmsatz      = "umsatz"
	FieldGewinn      = "gewinn"
	FieldInsolvenz   = "insolvenz"

	// Real-estate facts.
	FieldAnzahlImmobilien     = "anzahl_immobilien"
	FieldGesamtwertImmobilien = "gesamtwert_immobilien"

	// Miscellany.
	FieldSonstigeRechte  = "sonstige_rechte"
	FieldGruendungsdatum = "gruendungsdatum"
	FieldAktivSeit       = "aktiv_seit"

	// Contact facts.
	FieldGeschaeftsfuehrer = "geschaeftsfuehrer"
	FieldTelefonnummer     = "telefonnummer"
	FieldEmail             = "email"
	FieldWebsite           = "website"

	// Raw-artifact references.
	FieldHTMLFilepath        = "html_filepath"
	FieldAboutHTML           = "about_html"
	FieldPDFFilepath         = "pdf_filepath"
	FieldXMLFilepath         = "xml_filepath"
	FieldSearchResultsHTML   = "search_results_html"
	FieldJahresabschlussHTML = "jahresabschluss_html"

	// Tax id.
	FieldUstIDNr = "ust_idnr"
)

// CanonicalFieldKeys lists all 27 canonical fields in report order.
var CanonicalFieldKeys = []string{
	FieldRegisternummer,
	FieldHandelsregister,
	FieldGeschaeftsadresse,
	FieldUnternehmenszweck,
	FieldLandDesHauptsitzes,
	FieldGerichtsstand,
	FieldParagraph34GewO,
	FieldMitarbeiter,
	FieldUmsatz,
	FieldGewinn,
	FieldInsolvenz,
	FieldAnzahlImmobilien,
	FieldGesamtwertImmobilien,
	FieldSonstigeRechte,
	FieldGruendungsdatum,
	FieldAktivSeit,
	FieldGeschaeftsfuehrer,
	FieldTelefonnummer,
	FieldEmail,
	FieldWebsite,
	FieldHTMLFilepath,
	FieldAboutHTML,
	FieldPDFFilepath,
	FieldXMLFilepath,
	FieldSearchResultsHTML,
	FieldJahresabschlussHTML,
	FieldUstIDNr,
}

// IsCanonicalField reports whether key names one of the 27 canonical fields.
func IsCanonicalField(key string) bool {
	for _, k := range CanonicalFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}

// FieldValue is one populated canonical field with its provenance.
// Absence of a key in a field map is the legitimate "unknown" value;
// parsers never emit empty-string placeholders.
type FieldValue struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PartialFieldMap is the subset of canonical fields one source populated
// during one run, keyed by canonical field key.
type PartialFieldMap map[string]FieldValue

// CanonicalCompanyRecord is the merged output of one aggregation run.
// Fields holds only populated fields; a key absent from every source stays
// absent here.
type CanonicalCompanyRecord struct {
	Identity     CompanyIdentity `json:"identity"`
	Fingerprint  string          `json:"fingerprint"`
	Fields       PartialFieldMap `json:"fields"`
	AggregatedAt time.Time       `json:"aggregated_at"`
}

// Get returns the value for a canonical field and whether it is populated.
func (r *CanonicalCompanyRecord) Get(key string) (FieldValue, bool) {
	fv, ok := r.Fields[key]
	return fv, ok
}

// StringValue returns the field's value as a string when populated with one.
func (r *CanonicalCompanyRecord) StringValue(key string) string {
	if fv, ok := r.Fields[key]; ok {
		if s, ok := fv.Value.(string); ok {
			return s
		}
	}
	return ""
}
