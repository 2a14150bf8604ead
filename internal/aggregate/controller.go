package aggregate

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/parser"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/session"
	"github.com/sells-group/firmenradar/internal/source"
)

// Controller drives one source pipeline: session gate, fetch with retry,
// parse, and outcome classification. Retry decisions are a pure function
// of the failure kind; the controller never inspects adapter internals.
type Controller struct {
	parsers  *parser.Registry
	sessions *session.Manager
	breakers *resilience.SourceBreakers
	policy   *Policy
}

// NewController creates a pipeline controller. sessions may be nil when no
// stateful source is registered.
func NewController(parsers *parser.Registry, sessions *session.Manager, policy *Policy) *Controller {
	return &Controller{
		parsers:  parsers,
		sessions: sessions,
		breakers: resilience.NewSourceBreakers(resilience.DefaultCircuitBreakerConfig()),
		policy:   policy,
	}
}

var ustIDPattern = regexp.MustCompile(`\bDE\d{9}\b`)

// Run executes one source pipeline to a terminal SourceResult. It never
// returns an error: every failure mode is folded into the result.
func (c *Controller) Run(ctx context.Context, adapter source.Adapter, identity model.CompanyIdentity) model.SourceResult {
	start := time.Now()
	result := model.SourceResult{
		SourceID: adapter.ID(),
		Status:   model.StatusFailed,
	}

	if !c.policy.Enabled(adapter.ID()) {
		result.Status = model.StatusSkipped
		result.Error = "source disabled by policy"
		result.Elapsed = time.Since(start)
		return result
	}

	// Stateful sources are gated before any network attempt. A missing or
	// invalidated session fails the pipeline with zero attempts; nothing
	// here re-authenticates.
	var sess session.State
	if adapter.RequiresSession() {
		if c.sessions == nil || !c.sessions.IsValid(adapter.ID()) {
			result.FailureKind = resilience.KindAuthExpired
			result.Error = "no valid session; re-authentication required"
			result.Elapsed = time.Since(start)
			zap.L().Warn("skipping source without valid session",
				zap.String("source", adapter.ID()))
			return result
		}
		var err error
		sess, err = c.sessions.Load(adapter.ID())
		if err != nil {
			result.FailureKind = resilience.KindAuthExpired
			result.Error = err.Error()
			result.Elapsed = time.Since(start)
			return result
		}
	}

	breaker := c.breakers.Get(adapter.ID())
	cfg := c.policy.RetryConfigFor(adapter.ID())
	timeout := c.policy.TimeoutFor(adapter.ID())

	var payload *source.RawPayload
	for attemptNo := 1; ; attemptNo++ {
		attempt := model.Attempt{Number: attemptNo, StartedAt: time.Now()}

		err := breaker.Execute(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			p, ferr := adapter.Fetch(attemptCtx, identity, sess)
			if ferr != nil {
				return ferr
			}
			payload = p
			return nil
		})

		if errors.Is(err, resilience.ErrCircuitOpen) {
			result.Error = err.Error()
			result.Elapsed = time.Since(start)
			if len(result.Attempts) > 0 {
				// The breaker opened between retries of this very run, so
				// the attempts already made count as a failure.
				result.Status = model.StatusFailed
				result.FailureKind = result.Attempts[len(result.Attempts)-1].Kind
				zap.L().Warn("source circuit opened mid-run",
					zap.String("source", adapter.ID()),
					zap.Int("attempts", len(result.Attempts)))
				return result
			}
			result.Status = model.StatusSkipped
			zap.L().Warn("source circuit open, skipping",
				zap.String("source", adapter.ID()))
			return result
		}

		if err == nil {
			attempt.Outcome = model.AttemptSucceeded
			result.Attempts = append(result.Attempts, attempt)
			break
		}

		attempt.Outcome = model.AttemptFailed
		attempt.Kind = resilience.KindOf(err)
		attempt.Detail = err.Error()
		result.Attempts = append(result.Attempts, attempt)

		if ctx.Err() != nil || !cfg.ShouldRetry(err) || attemptNo >= cfg.MaxAttempts {
			result.FailureKind = resilience.KindOf(err)
			result.Error = err.Error()
			result.Elapsed = time.Since(start)
			return result
		}

		zap.L().Warn("retrying source fetch",
			zap.String("source", adapter.ID()),
			zap.Int("attempt", attemptNo),
			zap.Error(err))

		timer := time.NewTimer(cfg.Delay(attemptNo - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.FailureKind = resilience.KindTimeout
			result.Error = ctx.Err().Error()
			result.Elapsed = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	c.finalize(ctx, &result, payload)
	result.Elapsed = time.Since(start)
	return result
}

// finalize parses the payload's documents and classifies the outcome.
// Success means every document parsed; partial success means some did, or
// the fetch landed artifacts but no parseable fields.
func (c *Controller) finalize(ctx context.Context, result *model.SourceResult, payload *source.RawPayload) {
	result.Artifacts = payload.Artifacts
	fields := make(model.PartialFieldMap)

	parsed, failed := 0, 0
	for _, doc := range payload.Documents {
		docFields, err := c.parsers.Parse(ctx, payload.SourceID, doc)
		if err != nil {
			failed++
			zap.L().Warn("document parse failed",
				zap.String("source", payload.SourceID),
				zap.String("document", doc.Name),
				zap.Error(err))
			continue
		}
		parsed++
		for key, fv := range docFields {
			if _, exists := fields[key]; exists {
				continue
			}
			fv.Source = payload.SourceID
			fv.FetchedAt = payload.FetchedAt
			fields[key] = fv
		}
	}

	// Artifact references are fields too, carrying provenance like any
	// other value.
	for name, path := range payload.Artifacts {
		if !model.IsCanonicalField(name) {
			continue
		}
		if _, exists := fields[name]; exists {
			continue
		}
		fields[name] = model.FieldValue{
			Key:       name,
			Value:     path,
			Source:    payload.SourceID,
			FetchedAt: payload.FetchedAt,
		}
	}

	c.backfillUstID(payload, fields)
	result.Fields = fields

	switch {
	case len(payload.Documents) == 0:
		result.Status = model.StatusPartialSuccess
	case failed == 0 && substantiveCount(fields) > 0:
		result.Status = model.StatusSuccess
	case parsed > 0 || len(payload.Artifacts) > 0:
		result.Status = model.StatusPartialSuccess
	default:
		result.Status = model.StatusFailed
		result.FailureKind = resilience.KindMalformedResponse
		result.Error = "no document could be parsed"
	}
}

// backfillUstID scans raw text payloads for a German VAT id when no parser
// produced one. The id appears in registry XML and imprint pages in places
// the structured extraction does not cover.
func (c *Controller) backfillUstID(payload *source.RawPayload, fields model.PartialFieldMap) {
	if _, ok := fields[model.FieldUstIDNr]; ok {
		return
	}
	for _, doc := range payload.Documents {
		if doc.Format == source.FormatPDF {
			continue
		}
		if m := ustIDPattern.Find(doc.Data); m != nil {
			fields[model.FieldUstIDNr] = model.FieldValue{
				Key:       model.FieldUstIDNr,
				Value:     string(m),
				Source:    payload.SourceID,
				FetchedAt: payload.FetchedAt,
			}
			return
		}
	}
}

// substantiveCount counts fields beyond raw-artifact references.
func substantiveCount(fields model.PartialFieldMap) int {
	artifactKeys := map[string]bool{
		model.FieldHTMLFilepath:        true,
		model.FieldAboutHTML:           true,
		model.FieldPDFFilepath:         true,
		model.FieldXMLFilepath:         true,
		model.FieldSearchResultsHTML:   true,
		model.FieldJahresabschlussHTML: true,
	}
	n := 0
	for key := range fields {
		if !artifactKeys[key] {
			n++
		}
	}
	return n
}
