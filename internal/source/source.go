// Package source defines the adapter boundary for external company-data
// providers and ships the four built-in adapters: Handelsregister,
// Northdata, LinkedIn and Unternehmensregister. Adapters own all
// site-specific interaction and classify every failure into the closed
// taxonomy before it crosses this boundary.
package source

import (
	"context"
	"time"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/session"
)

// Source IDs.
const (
	Handelsregister      = "handelsregister"
	Northdata            = "northdata"
	LinkedIn             = "linkedin"
	Unternehmensregister = "unternehmensregister"
)

// Format declares a document's raw format. Parser dispatch keys on this,
// never on content sniffing.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatXML  Format = "xml"
)

// Document is one raw artifact produced by a fetch.
type Document struct {
	Format Format
	// Name is the artifact slot the document fills (a canonical
	// artifact-reference field key, e.g. "pdf_filepath").
	Name string
	Data []byte
}

// RawPayload is the outcome of one successful adapter fetch: the documents
// to parse plus opaque references to where their bytes were stored.
type RawPayload struct {
	SourceID  string
	Documents []Document
	Artifacts map[string]string
	FetchedAt time.Time
}

// Adapter fetches raw company data from one external source. Stateful
// sources (RequiresSession true) receive the session blob loaded by the
// pipeline controller; stateless ones get a zero State.
type Adapter interface {
	ID() string
	RequiresSession() bool
	Fetch(ctx context.Context, identity model.CompanyIdentity, sess session.State) (*RawPayload, error)
}
