package source

import (
	"context"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/firmenradar/internal/fetcher"
	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/session"
)

// HandelsregisterConfig configures the commercial-register adapter.
type HandelsregisterConfig struct {
	BaseURL     string
	Language    string // interface language: DE, EN, FR
	ArtifactDir string
}

// HandelsregisterAdapter searches the commercial register and downloads the
// AD excerpt (PDF) and the structured SI register content (XML).
type HandelsregisterAdapter struct {
	cfg    HandelsregisterConfig
	client *fetcher.Client
}

// NewHandelsregister creates the commercial-register adapter.
func NewHandelsregister(cfg HandelsregisterConfig, client *fetcher.Client) *HandelsregisterAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.handelsregister.de"
	}
	if cfg.Language == "" {
		cfg.Language = "DE"
	}
	return &HandelsregisterAdapter{cfg: cfg, client: client}
}

func (a *HandelsregisterAdapter) ID() string            { return Handelsregister }
func (a *HandelsregisterAdapter) RequiresSession() bool { return false }

var hrDocLinkRe = regexp.MustCompile(`href="([^"]*documentType=(AD|SI)[^"]*)"`)

// Fetch runs the normal search, follows the result's document links and
// downloads both register documents. A result list without a match for the
// register number is a RecordNotFound, never a transient condition.
func (a *HandelsregisterAdapter) Fetch(ctx context.Context, identity model.CompanyIdentity, _ session.State) (*RawPayload, error) {
	form := url.Values{
		"schlagwoerter":  {identity.CompanyName},
		"registerNummer": {registerDigits(identity.Registernummer)},
		"registerArt":    {registerType(identity.Registernummer)},
		"sprache":        {a.cfg.Language},
	}

	searchResp, err := a.client.PostForm(ctx, a.cfg.BaseURL+"/rp_web/erweitertesuche.xhtml", form)
	if err != nil {
		return nil, err
	}

	page := string(searchResp.Body)
	if strings.Contains(page, "keine Treffer") || strings.Contains(page, "Ihre Suche ergab keine") {
		return nil, resilience.NewFailure(resilience.KindRecordNotFound,
			"handelsregister: no search results for "+identity.Fingerprint())
	}

	links := hrDocLinkRe.FindAllStringSubmatch(page, -1)
	if len(links) == 0 {
		return nil, resilience.NewFailure(resilience.KindMalformedResponse,
			"handelsregister: result page without document links")
	}

	payload := &RawPayload{
		SourceID:  Handelsregister,
		Artifacts: make(map[string]string),
		FetchedAt: time.Now().UTC(),
	}
	dir := filepath.Join(a.cfg.ArtifactDir, identity.Fingerprint())

	for _, m := range links {
		docURL := resolveURL(a.cfg.BaseURL, strings.ReplaceAll(m[1], "&amp;", "&"))
		docResp, err := a.client.Get(ctx, docURL)
		if err != nil {
			return nil, err
		}

		switch m[2] {
		case "AD":
			ref, err := fetcher.SaveArtifact(dir, identity.Fingerprint()+"_AD.pdf", docResp.Body)
			if err != nil {
				return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save AD pdf")
			}
			payload.Documents = append(payload.Documents, Document{
				Format: FormatPDF,
				Name:   model.FieldPDFFilepath,
				Data:   docResp.Body,
			})
			payload.Artifacts[model.FieldPDFFilepath] = ref
		case "SI":
			ref, err := fetcher.SaveArtifact(dir, identity.Fingerprint()+"_SI.xml", docResp.Body)
			if err != nil {
				return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save SI xml")
			}
			payload.Documents = append(payload.Documents, Document{
				Format: FormatXML,
				Name:   model.FieldXMLFilepath,
				Data:   docResp.Body,
			})
			payload.Artifacts[model.FieldXMLFilepath] = ref
		}
	}

	return payload, nil
}

// registerType splits "HRB182742" into its register type prefix.
func registerType(registernummer string) string {
	rn := strings.ToUpper(strings.TrimSpace(registernummer))
	for _, t := range []string{"HRB", "HRA", "GNR", "PR", "VR"} {
		if strings.HasPrefix(rn, t) {
			return t
		}
	}
	return "HRB"
}

// registerDigits strips the register type prefix and spaces.
func registerDigits(registernummer string) string {
	rn := strings.ToUpper(strings.TrimSpace(registernummer))
	rn = strings.TrimPrefix(rn, registerType(rn))
	return strings.TrimSpace(rn)
}

func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}
