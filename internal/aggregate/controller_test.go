package aggregate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/parser"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/session"
	"github.com/sells-group/firmenradar/internal/source"
)

type fakeAdapter struct {
	id       string
	stateful bool
	calls    int
	fetch    func(ctx context.Context, identity model.CompanyIdentity, sess session.State) (*source.RawPayload, error)
}

func (f *fakeAdapter) ID() string            { return f.id }
func (f *fakeAdapter) RequiresSession() bool { return f.stateful }

func (f *fakeAdapter) Fetch(ctx context.Context, identity model.CompanyIdentity, sess session.State) (*source.RawPayload, error) {
	f.calls++
	return f.fetch(ctx, identity, sess)
}

func fastPolicy(sourceID string, maxAttempts int) *Policy {
	p := DefaultPolicy()
	p.Sources[sourceID] = SourcePolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		FixedBackoff:   true,
	}
	return p
}

func emptySessions(t *testing.T) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	return mgr
}

var testIdentity = model.CompanyIdentity{
	CompanyName:    "MAGNA Real Estate GmbH",
	Registernummer: "HRB182742",
}

func TestController_MissingSessionFailsWithZeroAttempts(t *testing.T) {
	adapter := &fakeAdapter{id: source.LinkedIn, stateful: true}
	c := NewController(parser.DefaultRegistry(""), emptySessions(t), DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindAuthExpired, result.FailureKind)
	assert.Empty(t, result.Attempts, "the gate rejects before any attempt")
	assert.Zero(t, adapter.calls)
}

func TestController_InvalidatedSessionFailsWithZeroAttempts(t *testing.T) {
	mgr := emptySessions(t)
	require.NoError(t, mgr.Put(source.LinkedIn, "stale-blob"))
	mgr.MarkInvalid(source.LinkedIn)

	adapter := &fakeAdapter{id: source.LinkedIn, stateful: true}
	c := NewController(parser.DefaultRegistry(""), mgr, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindAuthExpired, result.FailureKind)
	assert.Zero(t, adapter.calls)
}

func TestController_AuthExpiredIsNotRetried(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Northdata,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return nil, resilience.NewFailure(resilience.KindAuthExpired, "rejected")
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, fastPolicy(source.Northdata, 4))

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindAuthExpired, result.FailureKind)
	assert.Equal(t, 1, adapter.calls)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, model.AttemptFailed, result.Attempts[0].Outcome)
}

func TestController_TransientFailureRetriedToExhaustion(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Northdata,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return nil, resilience.NewFailure(resilience.KindTransientNetwork, "connection reset")
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, fastPolicy(source.Northdata, 3))

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindTransientNetwork, result.FailureKind)
	assert.Equal(t, 3, adapter.calls)
	require.Len(t, result.Attempts, 3)
	for i, att := range result.Attempts {
		assert.Equal(t, i+1, att.Number)
		assert.Equal(t, model.AttemptFailed, att.Outcome)
		assert.Equal(t, resilience.KindTransientNetwork, att.Kind)
	}
}

func TestController_CircuitOpensMidRunReportsFailure(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Northdata,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return nil, resilience.NewFailure(resilience.KindTransientNetwork, "connection reset")
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, fastPolicy(source.Northdata, 8))

	// The breaker opens after five consecutive failures, before the retry
	// budget of eight is spent. Attempts were made, so this is a failure,
	// not a skip.
	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindTransientNetwork, result.FailureKind)
	assert.Equal(t, 5, adapter.calls)
	require.Len(t, result.Attempts, 5)

	// A subsequent run against the still-open circuit never attempts.
	second := c.Run(context.Background(), adapter, testIdentity)
	assert.Equal(t, model.StatusSkipped, second.Status)
	assert.Empty(t, second.Attempts)
	assert.Equal(t, 5, adapter.calls)
}

func TestController_SuccessfulPipeline(t *testing.T) {
	fetchedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{
		id: source.Unternehmensregister,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return &source.RawPayload{
				SourceID: source.Unternehmensregister,
				Documents: []source.Document{{
					Format: source.FormatHTML,
					Name:   model.FieldSearchResultsHTML,
					Data:   []byte(`<html><p>Amtsgericht Hamburg HRB 182742</p></html>`),
				}},
				Artifacts: map[string]string{model.FieldSearchResultsHTML: "/artifacts/ureg_search.html"},
				FetchedAt: fetchedAt,
			}, nil
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusSuccess, result.Status)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, model.AttemptSucceeded, result.Attempts[0].Outcome)

	reg := result.Fields[model.FieldRegisternummer]
	assert.Equal(t, "HRB182742", reg.Value)
	assert.Equal(t, source.Unternehmensregister, reg.Source)
	assert.Equal(t, fetchedAt, reg.FetchedAt)

	artifact := result.Fields[model.FieldSearchResultsHTML]
	assert.Equal(t, "/artifacts/ureg_search.html", artifact.Value)
	assert.Equal(t, source.Unternehmensregister, artifact.Source)
}

func TestController_SomeDocumentsFailedIsPartial(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Handelsregister,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return &source.RawPayload{
				SourceID: source.Handelsregister,
				Documents: []source.Document{
					{
						Format: source.FormatXML,
						Name:   model.FieldXMLFilepath,
						Data:   []byte(`<nachricht><register><code>HRB</code></register><laufendeNummer>182742</laufendeNummer></nachricht>`),
					},
					{
						Format: source.FormatPDF,
						Name:   model.FieldPDFFilepath,
						Data:   []byte("<html>interstitial instead of a pdf</html>"),
					},
				},
				FetchedAt: time.Now(),
			}, nil
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusPartialSuccess, result.Status)
	assert.Equal(t, "HRB182742", result.Fields[model.FieldRegisternummer].Value)
}

func TestController_AllDocumentsFailed(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Handelsregister,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return &source.RawPayload{
				SourceID: source.Handelsregister,
				Documents: []source.Document{{
					Format: source.FormatXML,
					Name:   model.FieldXMLFilepath,
					Data:   []byte("not a register document"),
				}},
				FetchedAt: time.Now(),
			}, nil
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, resilience.KindMalformedResponse, result.FailureKind)
}

func TestController_ArtifactsWithoutFieldsIsPartial(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Unternehmensregister,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return &source.RawPayload{
				SourceID: source.Unternehmensregister,
				Documents: []source.Document{{
					Format: source.FormatHTML,
					Name:   model.FieldSearchResultsHTML,
					Data:   []byte(`<html><p>nichts verwertbares</p></html>`),
				}},
				Artifacts: map[string]string{model.FieldSearchResultsHTML: "/artifacts/ureg_search.html"},
				FetchedAt: time.Now(),
			}, nil
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusPartialSuccess, result.Status,
		"saved artifacts without extracted fields are a partial result")
}

func TestController_BackfillsVATID(t *testing.T) {
	adapter := &fakeAdapter{
		id: source.Unternehmensregister,
		fetch: func(context.Context, model.CompanyIdentity, session.State) (*source.RawPayload, error) {
			return &source.RawPayload{
				SourceID: source.Unternehmensregister,
				Documents: []source.Document{{
					Format: source.FormatHTML,
					Name:   model.FieldSearchResultsHTML,
					Data:   []byte(`<html><p>USt-IdNr.: DE123456789</p></html>`),
				}},
				FetchedAt: time.Now(),
			}, nil
		},
	}
	c := NewController(parser.DefaultRegistry(""), nil, DefaultPolicy())

	result := c.Run(context.Background(), adapter, testIdentity)

	vat := result.Fields[model.FieldUstIDNr]
	assert.Equal(t, "DE123456789", vat.Value)
	assert.Equal(t, source.Unternehmensregister, vat.Source)
}

func TestController_DisabledSourceIsSkipped(t *testing.T) {
	disabled := false
	p := DefaultPolicy()
	p.Sources[source.LinkedIn] = SourcePolicy{Enabled: &disabled}

	adapter := &fakeAdapter{id: source.LinkedIn, stateful: true}
	c := NewController(parser.DefaultRegistry(""), emptySessions(t), p)

	result := c.Run(context.Background(), adapter, testIdentity)

	assert.Equal(t, model.StatusSkipped, result.Status)
	assert.Zero(t, adapter.calls)
}
