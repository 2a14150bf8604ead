package source

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sells-group/firmenradar/internal/fetcher"
	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/session"
)

// LinkedInConfig configures the professional-network adapter.
type LinkedInConfig struct {
	BaseURL     string
	ArtifactDir string
}

// LinkedInAdapter fetches a company's about page. It is the only stateful
// adapter: every request replays the persisted li_at session cookie, and a
// login wall marks the session invalid for operator attention.
type LinkedInAdapter struct {
	cfg      LinkedInConfig
	client   *fetcher.Client
	sessions *session.Manager
}

// NewLinkedIn creates the professional-network adapter. The session manager
// handle is used solely to mark the session invalid on an auth rejection.
func NewLinkedIn(cfg LinkedInConfig, client *fetcher.Client, sessions *session.Manager) *LinkedInAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.linkedin.com"
	}
	return &LinkedInAdapter{cfg: cfg, client: client, sessions: sessions}
}

func (a *LinkedInAdapter) ID() string            { return LinkedIn }
func (a *LinkedInAdapter) RequiresSession() bool { return true }

// Fetch loads the company about page with the session cookie. Receiving the
// authwall instead of company content is an AuthExpired failure, which also
// invalidates the stored session.
func (a *LinkedInAdapter) Fetch(ctx context.Context, identity model.CompanyIdentity, sess session.State) (*RawPayload, error) {
	if sess.Blob == "" {
		return nil, resilience.NewFailure(resilience.KindAuthExpired,
			"linkedin: no session material")
	}

	aboutURL := a.cfg.BaseURL + "/company/" + companySlug(identity.CompanyName) + "/about/"
	resp, err := a.client.Get(ctx, aboutURL, &http.Cookie{Name: "li_at", Value: sess.Blob})
	if err != nil {
		if resilience.KindOf(err) == resilience.KindAuthExpired {
			a.sessions.MarkInvalid(LinkedIn)
		}
		return nil, err
	}

	page := string(resp.Body)
	if isAuthWall(page, resp.FinalURL) {
		a.sessions.MarkInvalid(LinkedIn)
		return nil, resilience.NewFailure(resilience.KindAuthExpired,
			"linkedin: authwall instead of company page")
	}
	if strings.Contains(page, "page doesn't exist") || strings.Contains(page, "Page not found") {
		return nil, resilience.NewFailure(resilience.KindRecordNotFound,
			"linkedin: no company page for "+identity.CompanyName)
	}

	dir := filepath.Join(a.cfg.ArtifactDir, identity.Fingerprint())
	ref, err := fetcher.SaveArtifact(dir, "linkedin_about.html", resp.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "save about html")
	}

	return &RawPayload{
		SourceID: LinkedIn,
		Documents: []Document{{
			Format: FormatHTML,
			Name:   model.FieldAboutHTML,
			Data:   resp.Body,
		}},
		Artifacts: map[string]string{model.FieldAboutHTML: ref},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// companySlug approximates the public company URL slug: lowercase, spaces
// to hyphens, legal-form suffixes kept (the-company-gmbh).
func companySlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, "&", "and")
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
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

func isAuthWall(page, finalURL string) bool {
	return strings.Contains(finalURL, "/authwall") ||
		strings.Contains(finalURL, "/login") ||
		strings.Contains(page, "join to view") ||
		strings.Contains(page, "Anmelden oder")
}
