package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/firmenradar/internal/resilience"
)

// CompanyIdentity is the immutable input key for one aggregation run.
// At least one of the three identifying fields must be non-empty.
type CompanyIdentity struct {
	CompanyName    string `json:"company_name"`
	Registernummer string `json:"registernummer,omitempty"`
	UstIDNr        string `json:"ust_idnr,omitempty"`
}

// Validate checks that the identity carries at least one identifying field.
// A violation is reported as InvalidIdentity, the only failure kind that
// aborts a run before any pipeline starts.
func (id CompanyIdentity) Validate() error {
	if strings.TrimSpace(id.CompanyName) == "" &&
		strings.TrimSpace(id.Registernummer) == "" &&
		strings.TrimSpace(id.UstIDNr) == "" {
		return resilience.NewFailure(resilience.KindInvalidIdentity, "identity has no identifying field")
	}
	return nil
}

// Fingerprint derives the stable persistence key for this identity:
// the normalized register number when present, otherwise the normalized
// company name, otherwise the normalized VAT id. Every identity that
// passes Validate yields a non-empty key, and re-running the same
// identity always yields the same key.
func (id CompanyIdentity) Fingerprint() string {
	if rn := normalizeRegisternummer(id.Registernummer); rn != "" {
		return rn
	}
	if name := normalizeName(id.CompanyName); name != "" {
		return name
	}
	return normalizeRegisternummer(id.UstIDNr)
}

func normalizeRegisternummer(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "")
}

var nameFolder = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeName lowercases, folds diacritics (Müller -> muller) and
// collapses runs of non-alphanumerics so cosmetic variants of the same
// company name map to one fingerprint.
func normalizeName(s string) string {
	folded, _, err := transform.String(nameFolder, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	lastDash := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
