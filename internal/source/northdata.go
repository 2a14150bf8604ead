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

// NorthdataConfig configures the business-data aggregator adapter.
type NorthdataConfig struct {
	BaseURL     string
	ArtifactDir string
}

// NorthdataAdapter searches the aggregator and fetches the company page.
type NorthdataAdapter struct {
	cfg    NorthdataConfig
	client *fetcher.Client
}

// NewNorthdata creates the aggregator adapter.
func NewNorthdata(cfg NorthdataConfig, client *fetcher.Client) *NorthdataAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.northdata.de"
	}
	return &NorthdataAdapter{cfg: cfg, client: client}
}

func (a *NorthdataAdapter) ID() string            { return Northdata }
func (a *NorthdataAdapter) RequiresSession() bool { return false }

var ndCompanyLinkRe = regexp.MustCompile(`href="(/[^"]+,[A-Za-z]+\d+[^"]*)"`)

// Fetch searches by name and register number and downloads the first
// matching company page. A consent/block interstitial classifies as
// RateLimited so the controller backs off instead of hammering.
func (a *NorthdataAdapter) Fetch(ctx context.Context, identity model.CompanyIdentity, _ session.State) (*RawPayload, error) {
	query := strings.TrimSpace(identity.CompanyName + " " + identity.Registernummer)
	searchURL := a.cfg.BaseURL + "/?query=" + url.QueryEscape(query)

	searchResp, err := a.client.Get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	page := string(searchResp.Body)
	if isBlockWall(page) {
		return nil, resilience.NewFailure(resilience.KindRateLimited,
			"northdata: block wall on search page")
	}

	companyPath := a.matchCompanyLink(page, identity)
	if companyPath == "" {
		return nil, resilience.NewFailure(resilience.KindRecordNotFound,
			"northdata: no company match for "+identity.Fingerprint())
	}

	companyResp, err := a.client.Get(ctx, resolveURL(a.cfg.BaseURL, companyPath))
	if err != nil {
		return nil, err
	}
	if isBlockWall(string(companyResp.Body)) {
		return nil, resilience.NewFailure(resilience.KindRateLimited,
			"northdata: block wall on company page")
	}

	dir := filepath.Join(a.cfg.ArtifactDir, identity.Fingerprint())
	ref, err := fetcher.SaveArtifact(dir, "northdata.html", companyResp.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save company html")
	}

	return &RawPayload{
		SourceID: Northdata,
		Documents: []Document{{
			Format: FormatHTML,
			Name:   model.FieldHTMLFilepath,
			Data:   companyResp.Body,
		}},
		Artifacts: map[string]string{model.FieldHTMLFilepath: ref},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// matchCompanyLink prefers a result carrying the register number, falling
// back to the first company link when the identity has none.
func (a *NorthdataAdapter) matchCompanyLink(page string, identity model.CompanyIdentity) string {
	links := ndCompanyLinkRe.FindAllStringSubmatch(page, -1)
	if len(links) == 0 {
		return ""
	}

	digits := registerDigits(identity.Registernummer)
	if digits != "" {
		for _, m := range links {
			if strings.Contains(m[1], digits) {
				return m[1]
			}
		}
		return ""
	}
	return links[0][1]
}

func isBlockWall(page string) bool {
	lower := strings.ToLower(page)
	return strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "zu viele anfragen") ||
		strings.Contains(lower, "are you a robot")
}
