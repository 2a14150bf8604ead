package parser

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// TextExtractor turns PDF bytes into plain text.
type TextExtractor func(ctx context.Context, pdf []byte) (string, error)

// PDFParser reads the commercial register's AD excerpt. The excerpt is a
// printed document, so extraction is pattern matching over pdftotext
// -layout output rather than anything structural.
type PDFParser struct {
	extract TextExtractor
}

// NewPDFParser creates a PDF parser backed by the pdftotext CLI tool.
// If binPath is empty, "pdftotext" from PATH is used.
func NewPDFParser(binPath string) *PDFParser {
	return &PDFParser{extract: pdfToText(binPath)}
}

// NewPDFParserWithExtractor creates a PDF parser with a custom text
// extractor. Used by tests and alternative OCR backends.
func NewPDFParserWithExtractor(extract TextExtractor) *PDFParser {
	return &PDFParser{extract: extract}
}

func (p *PDFParser) Format() source.Format { return source.FormatPDF }

var pdfPatterns = map[string]*regexp.Regexp{
	model.FieldRegisternummer:    regexp.MustCompile(`Nummer\s+der\s+Firma:\s*(HRB\s*\d+)`),
	model.FieldHandelsregister:   regexp.MustCompile(`Handelsregister\s+[A-Z]\s+des\s+Amtsgerichts\s+(\S+)`),
	model.FieldGeschaeftsadresse: regexp.MustCompile(`Geschäftsanschrift:\s*([^\n]+)`),
	model.FieldUnternehmenszweck: regexp.MustCompile(`(?s)Gegenstand\s+des\s+Unternehmens:\s*(.+?)(?:\n\d+\.|\z)`),
	model.FieldGeschaeftsfuehrer: regexp.MustCompile(`Geschäftsführer:\s*([^\n]+)`),
}

// Parse extracts registry facts from the AD excerpt text.
func (p *PDFParser) Parse(ctx context.Context, _ string, doc source.Document) (model.PartialFieldMap, error) {
	if !bytes.HasPrefix(doc.Data, []byte("%PDF")) {
		return nil, resilience.NewFailure(resilience.KindMalformedResponse,
			"pdf: payload is not a PDF document")
	}

	text, err := p.extract(ctx, doc.Data)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindMalformedResponse, err,
			"pdf: text extraction failed")
	}

	fields := make(model.PartialFieldMap)
	for key, re := range pdfPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.Join(strings.Fields(m[1]), " ")

		switch key {
		case model.FieldRegisternummer:
			put(fields, key, strings.ReplaceAll(value, " ", ""))
		case model.FieldGeschaeftsfuehrer:
			put(fields, key, splitDirectors(value))
		default:
			put(fields, key, value)
		}
	}

	if zweck, ok := fields[model.FieldUnternehmenszweck]; ok {
		if s, _ := zweck.Value.(string); strings.Contains(s, "§ 34c GewO") {
			put(fields, model.FieldParagraph34GewO, true)
		}
	}

	return fields, nil
}

// splitDirectors turns "Müller, Hans; Schmidt, Eva" style listings into
// "Hans Müller" entries.
func splitDirectors(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, surname, ok := strings.Cut(part, ","); ok {
			rest := strings.Fields(surname)
			// Trailing birth dates and places from the excerpt are dropped.
			if len(rest) > 0 {
				first := strings.TrimRight(rest[0], ",")
				out = append(out, first+" "+strings.TrimSpace(name))
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

// pdfToText runs pdftotext -layout over a temp file, the same way the
// register excerpts are processed in batch tooling.
func pdfToText(binPath string) TextExtractor {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return func(ctx context.Context, pdf []byte) (string, error) {
		tmp, err := os.CreateTemp("", "firmenradar-*.pdf")
		if err != nil {
			return "", eris.Wrap(err, "pdf: create temp file")
		}
		defer os.Remove(tmp.Name()) //nolint:errcheck

		if _, err := tmp.Write(pdf); err != nil {
			tmp.Close()
			return "", eris.Wrap(err, "pdf: write temp file")
		}
		if err := tmp.Close(); err != nil {
			return "", eris.Wrap(err, "pdf: close temp file")
		}

		cmd := exec.CommandContext(ctx, binPath, "-layout", tmp.Name(), "-")
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", eris.Wrapf(err, "pdf: pdftotext failed: %s", stderr.String())
		}
		return stdout.String(), nil
	}
}
