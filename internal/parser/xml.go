package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// XMLParser reads XJustiz SI (structured register content) documents from
// the commercial register.
type XMLParser struct{}

// NewXMLParser creates the XJustiz parser.
func NewXMLParser() *XMLParser { return &XMLParser{} }

func (p *XMLParser) Format() source.Format { return source.FormatXML }

// courtNames maps XJustiz register court codes to their court.
// Extend as new register courts show up in the data.
var courtNames = map[string]string{
	"K1101R": "Hamburg",
	"B1101R": "Berlin (Charlottenburg)",
	"D3201R": "Düsseldorf",
	"M1305R": "München",
	"F1103R": "Frankfurt am Main",
	"K1103R": "Köln",
}

// gfRoleCode is the XJustiz participation role for Geschäftsführer.
const gfRoleCode = "086"

// Parse extracts registry facts from the SI document. A payload whose root
// cannot be read as XML is a MalformedResponse; the controller may still
// retry the fetch in case the document was truncated in transit.
func (p *XMLParser) Parse(_ context.Context, _ string, doc source.Document) (model.PartialFieldMap, error) {
	root, err := decodeTree(doc.Data)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindMalformedResponse, err,
			"xml: cannot read document root")
	}

	fields := make(model.PartialFieldMap)

	// Registernummer: register code + laufende Nummer.
	code := root.text("register", "code")
	nummer := root.text("laufendeNummer")
	if code != "" && nummer != "" {
		put(fields, model.FieldRegisternummer, code+nummer)
	}

	// Register court.
	if gericht := root.text("gericht", "code"); gericht != "" {
		if city, ok := courtNames[gericht]; ok {
			put(fields, model.FieldHandelsregister, city)
			put(fields, model.FieldGerichtsstand, "Amtsgericht "+strings.SplitN(city, " ", 2)[0])
		}
	}

	// Geschäftsführer: participations carrying the managing-director role.
	var directors []string
	for _, bet := range root.findAll("beteiligung") {
		if !bet.hasCode(gfRoleCode) {
			continue
		}
		vorname := bet.text("vorname")
		nachname := bet.text("nachname")
		if vorname != "" && nachname != "" {
			directors = append(directors, vorname+" "+nachname)
		}
	}
	put(fields, model.FieldGeschaeftsfuehrer, directors)

	// Geschäftsadresse.
	strasse := root.text("strasse")
	hausnummer := root.text("hausnummer")
	plz := root.text("postleitzahl")
	ort := root.text("ort")
	if strasse != "" && hausnummer != "" && plz != "" && ort != "" {
		put(fields, model.FieldGeschaeftsadresse, strasse+" "+hausnummer+", "+plz+" "+ort)
	}

	// Unternehmenszweck, ignoring the structural placeholder.
	if zweck := root.text("basisdatenRegister", "gegenstand"); zweck != "" &&
		zweck != "Strukturierter Registerinhalt" {
		put(fields, model.FieldUnternehmenszweck, zweck)
		if strings.Contains(zweck, "§ 34c GewO") {
			put(fields, model.FieldParagraph34GewO, true)
		}
	}

	// Erste Eintragung.
	put(fields, model.FieldAktivSeit, root.text("eintragungsdatum"))

	// Sonstige Rechtsverhältnisse (Prokura, Verschmelzungen und so weiter).
	put(fields, model.FieldSonstigeRechte, root.text("sonstigeRechtsverhaeltnisse"))

	// Land des Hauptsitzes: staat code 000 is Deutschland.
	if staat := root.text("anschrift", "staat", "code"); staat == "000" {
		put(fields, model.FieldLandDesHauptsitzes, "Deutschland")
	}

	return fields, nil
}

// node is a minimal namespace-agnostic XML tree. XJustiz documents mix
// namespaced and plain elements, so lookups key on the local name only.
type node struct {
	name     string
	text_    string
	children []*node
}

func decodeTree(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text_ += string(t)
			}
		}
	}

	if root == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

// find returns the first descendant matching the path of local names,
// where each step may be any number of levels deep.
func (n *node) find(path ...string) *node {
	if len(path) == 0 {
		return n
	}
	for _, d := range n.descendants(path[0]) {
		if res := d.find(path[1:]...); res != nil {
			return res
		}
	}
	return nil
}

func (n *node) findAll(name string) []*node {
	return n.descendants(name)
}

func (n *node) descendants(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.descendants(name)...)
	}
	return out
}

func (n *node) text(path ...string) string {
	if found := n.find(path...); found != nil {
		return strings.TrimSpace(found.text_)
	}
	return ""
}

// hasCode reports whether any descendant code element carries the value.
func (n *node) hasCode(value string) bool {
	for _, c := range n.descendants("code") {
		if strings.TrimSpace(c.text_) == value {
			return true
		}
	}
	return false
}
