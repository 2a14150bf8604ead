package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// HTMLParser extracts canonical fields from source HTML pages. Every source
// renders a different page, so extraction dispatches on the source id; the
// shared part is the DOM walk and the contact-detail scan.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser { return &HTMLParser{} }

func (p *HTMLParser) Format() source.Format { return source.FormatHTML }

func (p *HTMLParser) Parse(_ context.Context, sourceID string, doc source.Document) (model.PartialFieldMap, error) {
	root, err := html.Parse(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindMalformedResponse, err,
			"html: parse failed for "+sourceID)
	}

	fields := make(model.PartialFieldMap)
	text := collapseSpace(textContent(root))

	switch sourceID {
	case source.Northdata:
		parseNorthdata(root, text, fields)
	case source.LinkedIn:
		parseLinkedInAbout(root, text, fields)
	case source.Unternehmensregister:
		parseUnternehmensregister(doc.Name, text, fields)
	}

	scanContactDetails(text, fields)
	return fields, nil
}

var (
	reEmail      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	rePhone      = regexp.MustCompile(`(?:Tel(?:efon)?\.?:?\s*)(\+?[\d\s/()\-]{7,20}\d)`)
	reEmployees  = regexp.MustCompile(`(?i)(\d[\d.]*)\s*(?:Mitarbeiter|Beschäftigte|employees)`)
	reRevenue    = regexp.MustCompile(`(?i)Umsatz(?:erlöse)?\D{0,10}([\d.,]+\s*(?:Mio\.?|Tsd\.?|Mrd\.?)?\s*(?:EUR|€))`)
	reProfit     = regexp.MustCompile(`(?i)(?:Gewinn|Jahresüberschuss)\D{0,10}(-?[\d.,]+\s*(?:Mio\.?|Tsd\.?|Mrd\.?)?\s*(?:EUR|€))`)
	reFounded    = regexp.MustCompile(`(?i)(?:Gründung|Gegründet|Founded)\D{0,5}(\d{4})`)
	reRegisterNo = regexp.MustCompile(`\b(HR[AB]\s?\d+(?:\s?[A-Z]{1,3})?)\b`)
	reCourt      = regexp.MustCompile(`Amtsgericht\s+([A-ZÄÖÜ][\wäöüß\-]+)`)
	reProperties = regexp.MustCompile(`(?i)(\d+)\s+(?:Immobilien|Objekte|Wohneinheiten)`)
	rePortfolio  = regexp.MustCompile(`(?i)(?:Gesamtwert|Portfoliowert|Immobilienvermögen)\D{0,10}([\d.,]+\s*(?:Mio\.?|Mrd\.?)?\s*(?:EUR|€))`)
)

// scanContactDetails picks up email and phone wherever a page exposes them.
func scanContactDetails(text string, fields model.PartialFieldMap) {
	if _, ok := fields[model.FieldEmail]; !ok {
		put(fields, model.FieldEmail, reEmail.FindString(text))
	}
	if _, ok := fields[model.FieldTelefonnummer]; !ok {
		if m := rePhone.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldTelefonnummer, strings.TrimSpace(m[1]))
		}
	}
}

// parseNorthdata reads the company profile page. The structured JSON-LD
// block is the preferred origin; visible text figures fill the rest.
func parseNorthdata(root *html.Node, text string, fields model.PartialFieldMap) {
	if ld := jsonLD(root); ld != nil {
		put(fields, model.FieldWebsite, stringAt(ld, "url"))
		put(fields, model.FieldGruendungsdatum, stringAt(ld, "foundingDate"))
		put(fields, model.FieldTelefonnummer, stringAt(ld, "telephone"))
		put(fields, model.FieldEmail, stringAt(ld, "email"))
		if n, ok := numberAt(ld, "numberOfEmployees"); ok {
			put(fields, model.FieldMitarbeiter, n)
		}
		if addr, ok := ld["address"].(map[string]any); ok {
			parts := []string{
				stringAt(addr, "streetAddress"),
				stringAt(addr, "postalCode") + " " + stringAt(addr, "addressLocality"),
			}
			put(fields, model.FieldGeschaeftsadresse, collapseSpace(strings.Join(parts, ", ")))
			if stringAt(addr, "addressCountry") == "DE" {
				put(fields, model.FieldLandDesHauptsitzes, "Deutschland")
			}
		}
	}

	if _, ok := fields[model.FieldMitarbeiter]; !ok {
		if m := reEmployees.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ".", "")); err == nil {
				put(fields, model.FieldMitarbeiter, n)
			}
		}
	}
	if m := reRevenue.FindStringSubmatch(text); m != nil {
		put(fields, model.FieldUmsatz, strings.TrimSpace(m[1]))
	}
	if m := reProfit.FindStringSubmatch(text); m != nil {
		put(fields, model.FieldGewinn, strings.TrimSpace(m[1]))
	}
	if m := reFounded.FindStringSubmatch(text); m != nil {
		if _, ok := fields[model.FieldGruendungsdatum]; !ok {
			put(fields, model.FieldGruendungsdatum, m[1])
		}
	}
	if strings.Contains(text, "Insolvenzverfahren") || strings.Contains(text, "Insolvenzbekanntmachung") {
		put(fields, model.FieldInsolvenz, true)
	}
	if m := reRegisterNo.FindStringSubmatch(text); m != nil {
		put(fields, model.FieldRegisternummer, strings.ReplaceAll(m[1], " ", ""))
	}
	if m := reCourt.FindStringSubmatch(text); m != nil {
		put(fields, model.FieldGerichtsstand, "Amtsgericht "+m[1])
	}
}

// parseLinkedInAbout reads the about page's dt/dd description list, which
// LinkedIn ships in both German and English depending on the session locale.
func parseLinkedInAbout(root *html.Node, text string, fields model.PartialFieldMap) {
	pairs := definitionPairs(root)
	for label, value := range pairs {
		switch {
		case strings.EqualFold(label, "Website"):
			put(fields, model.FieldWebsite, value)
		case strings.EqualFold(label, "Hauptsitz") || strings.EqualFold(label, "Headquarters"):
			put(fields, model.FieldGeschaeftsadresse, value)
		case strings.EqualFold(label, "Gegründet") || strings.EqualFold(label, "Founded"):
			put(fields, model.FieldGruendungsdatum, value)
		case strings.EqualFold(label, "Größe") || strings.EqualFold(label, "Company size"):
			put(fields, model.FieldMitarbeiter, value)
		case strings.EqualFold(label, "Branche") || strings.EqualFold(label, "Industry"):
			put(fields, model.FieldUnternehmenszweck, value)
		}
	}
	if _, ok := fields[model.FieldGruendungsdatum]; !ok {
		if m := reFounded.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldGruendungsdatum, m[1])
		}
	}
}

// parseUnternehmensregister handles both pages the adapter saves: the search
// result listing and, when published, the Jahresabschluss detail page.
func parseUnternehmensregister(docName, text string, fields model.PartialFieldMap) {
	switch docName {
	case model.FieldSearchResultsHTML:
		if m := reRegisterNo.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldRegisternummer, strings.ReplaceAll(m[1], " ", ""))
		}
		if m := reCourt.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldGerichtsstand, "Amtsgericht "+m[1])
			put(fields, model.FieldHandelsregister, m[1])
		}
	case model.FieldJahresabschlussHTML:
		if m := reRevenue.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldUmsatz, strings.TrimSpace(m[1]))
		}
		if m := reProfit.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldGewinn, strings.TrimSpace(m[1]))
		}
		if m := reProperties.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				put(fields, model.FieldAnzahlImmobilien, n)
			}
		}
		if m := rePortfolio.FindStringSubmatch(text); m != nil {
			put(fields, model.FieldGesamtwertImmobilien, strings.TrimSpace(m[1]))
		}
	}
}

// jsonLD returns the first application/ld+json object in the document.
func jsonLD(root *html.Node) map[string]any {
	for _, n := range findAllNodes(root, "script") {
		if attr(n, "type") != "application/ld+json" || n.FirstChild == nil {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(n.FirstChild.Data), &obj); err == nil {
			return obj
		}
	}
	return nil
}

// definitionPairs maps each dt's text to the text of the dd that follows it.
func definitionPairs(root *html.Node) map[string]string {
	pairs := make(map[string]string)
	for _, dt := range findAllNodes(root, "dt") {
		label := collapseSpace(textContent(dt))
		for sib := dt.NextSibling; sib != nil; sib = sib.NextSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			if sib.Data == "dd" {
				pairs[label] = collapseSpace(textContent(sib))
			}
			break
		}
	}
	return pairs
}

func findAllNodes(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
		b.WriteByte(' ')
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func numberAt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}
