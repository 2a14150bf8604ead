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

// UnternehmensregisterConfig configures the official-register adapter.
type UnternehmensregisterConfig struct {
	BaseURL     string
	ArtifactDir string
}

// UnternehmensregisterAdapter searches the official register and navigates
// to the most recent Jahresabschluss (annual accounts) publication.
type UnternehmensregisterAdapter struct {
	cfg    UnternehmensregisterConfig
	client *fetcher.Client
}

// NewUnternehmensregister creates the official-register adapter.
func NewUnternehmensregister(cfg UnternehmensregisterConfig, client *fetcher.Client) *UnternehmensregisterAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.unternehmensregister.de"
	}
	return &UnternehmensregisterAdapter{cfg: cfg, client: client}
}

func (a *UnternehmensregisterAdapter) ID() string            { return Unternehmensregister }
func (a *UnternehmensregisterAdapter) RequiresSession() bool { return false }

var (
	urDetailLinkRe          = regexp.MustCompile(`href="([^"]*ureg/result[^"]*)"`)
	urJahresabschlussLinkRe = regexp.MustCompile(`href="([^"]*)"[^>]*>\s*Jahresabschluss`)
)

// Fetch is a search-then-navigate pipeline: search results, company detail,
// Jahresabschluss page. Both the result list and the final page are kept as
// artifacts since downstream review needs the navigation evidence.
func (a *UnternehmensregisterAdapter) Fetch(ctx context.Context, identity model.CompanyIdentity, _ session.State) (*RawPayload, error) {
	searchURL := a.cfg.BaseURL + "/ureg/search.html?searchString=" +
		url.QueryEscape(strings.TrimSpace(identity.CompanyName+" "+identity.Registernummer))

	searchResp, err := a.client.Get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(a.cfg.ArtifactDir, identity.Fingerprint())
	payload := &RawPayload{
		SourceID:  Unternehmensregister,
		Artifacts: make(map[string]string),
		FetchedAt: time.Now().UTC(),
	}

	searchRef, err := fetcher.SaveArtifact(dir, "ureg_search.html", searchResp.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save search html")
	}
	payload.Artifacts[model.FieldSearchResultsHTML] = searchRef
	payload.Documents = append(payload.Documents, Document{
		Format: FormatHTML,
		Name:   model.FieldSearchResultsHTML,
		Data:   searchResp.Body,
	})

	page := string(searchResp.Body)
	if strings.Contains(page, "Keine Treffer") || strings.Contains(page, "keine Ergebnisse") {
		return nil, resilience.NewFailure(resilience.KindRecordNotFound,
			"unternehmensregister: no search results for "+identity.Fingerprint())
	}

	detail := urDetailLinkRe.FindStringSubmatch(page)
	if detail == nil {
		return nil, resilience.NewFailure(resilience.KindMalformedResponse,
			"unternehmensregister: result page without detail link")
	}

	detailResp, err := a.client.Get(ctx, resolveURL(a.cfg.BaseURL, strings.ReplaceAll(detail[1], "&amp;", "&")))
	if err != nil {
		return nil, err
	}

	ja := urJahresabschlussLinkRe.FindStringSubmatch(string(detailResp.Body))
	if ja == nil {
		// Company exists but has not published accounts. The navigation
		// evidence already collected still counts.
		return payload, nil
	}

	jaResp, err := a.client.Get(ctx, resolveURL(a.cfg.BaseURL, strings.ReplaceAll(ja[1], "&amp;", "&")))
	if err != nil {
		return nil, err
	}

	jaRef, err := fetcher.SaveArtifact(dir, "jahresabschluss.html", jaResp.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save jahresabschluss html")
	}
	payload.Artifacts[model.FieldJahresabschlussHTML] = jaRef
	payload.Documents = append(payload.Documents, Document{
		Format: FormatHTML,
		Name:   model.FieldJahresabschlussHTML,
		Data:   jaResp.Body,
	})

	return payload, nil
}
