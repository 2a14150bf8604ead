// Package parser converts raw source documents into partial canonical field
// maps. One parser per raw format; dispatch is by the format the adapter
// declared, never by content sniffing. Parsers return only fields they
// actually found; absence stays absence, not an empty placeholder.
package parser

import (
	"context"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// Parser extracts canonical fields from one document format.
type Parser interface {
	Format() source.Format
	Parse(ctx context.Context, sourceID string, doc source.Document) (model.PartialFieldMap, error)
}

// Registry dispatches documents to the parser registered for their format.
type Registry struct {
	parsers map[source.Format]Parser
}

// NewRegistry creates a Registry over the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[source.Format]Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Format()] = p
	}
	return r
}

// DefaultRegistry wires the three built-in parsers.
func DefaultRegistry(pdfToTextPath string) *Registry {
	return NewRegistry(
		NewHTMLParser(),
		NewXMLParser(),
		NewPDFParser(pdfToTextPath),
	)
}

// Parse dispatches one document. An unregistered format is a
// MalformedResponse: the adapter declared something we cannot read.
func (r *Registry) Parse(ctx context.Context, sourceID string, doc source.Document) (model.PartialFieldMap, error) {
	p, ok := r.parsers[doc.Format]
	if !ok {
		return nil, resilience.NewFailure(resilience.KindMalformedResponse,
			"parser: no parser registered for format "+string(doc.Format))
	}
	return p.Parse(ctx, sourceID, doc)
}

// put records a field value when the value is non-empty. Keeping the check
// here is what guarantees parsers never emit "confirmed empty" by accident.
func put(fields model.PartialFieldMap, key string, value any) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	case nil:
		return
	}
	fields[key] = model.FieldValue{Key: key, Value: value}
}
