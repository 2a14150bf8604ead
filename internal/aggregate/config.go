// Package aggregate orchestrates concurrent source pipelines for one
// company, merges their partial results under a configurable priority
// policy and produces the canonical record plus a full audit report.
package aggregate

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// Policy is the aggregation policy: which sources run, how hard each one
// retries, and which source wins when two report the same field.
type Policy struct {
	// DefaultPriority orders sources for fields without an explicit
	// override. Earlier wins.
	DefaultPriority []string `yaml:"default_priority"`

	// FieldPriority overrides the source order per canonical field key.
	FieldPriority map[string][]string `yaml:"field_priority"`

	// Sources holds per-source pipeline tuning.
	Sources map[string]SourcePolicy `yaml:"sources"`

	// GlobalDeadline bounds the whole run. Pipelines still in flight when
	// it expires are recorded as failed with a timeout.
	GlobalDeadline time.Duration `yaml:"global_deadline"`
}

// SourcePolicy tunes one source pipeline.
type SourcePolicy struct {
	Enabled        *bool         `yaml:"enabled,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	FixedBackoff   bool          `yaml:"fixed_backoff"`

	// RetryMalformed opts a source into retrying malformed responses,
	// for sources that intermittently serve interstitial pages.
	RetryMalformed bool `yaml:"retry_malformed"`
}

// DefaultPolicy returns the built-in aggregation policy. Registry sources
// outrank commercial aggregators for legal facts; the order flips for
// contact and headcount data, which the registry does not carry.
func DefaultPolicy() *Policy {
	contactOrder := []string{
		source.LinkedIn,
		source.Northdata,
		source.Unternehmensregister,
		source.Handelsregister,
	}
	financialOrder := []string{
		source.Northdata,
		source.Unternehmensregister,
		source.LinkedIn,
		source.Handelsregister,
	}
	return &Policy{
		DefaultPriority: []string{
			source.Handelsregister,
			source.Unternehmensregister,
			source.Northdata,
			source.LinkedIn,
		},
		FieldPriority: map[string][]string{
			model.FieldWebsite:         contactOrder,
			model.FieldEmail:           contactOrder,
			model.FieldTelefonnummer:   contactOrder,
			model.FieldMitarbeiter:     contactOrder,
			model.FieldUmsatz:          financialOrder,
			model.FieldGewinn:          financialOrder,
			model.FieldInsolvenz:       financialOrder,
			model.FieldGruendungsdatum: financialOrder,
		},
		Sources:        map[string]SourcePolicy{},
		GlobalDeadline: 5 * time.Minute,
	}
}

// LoadPolicy reads a policy from a YAML file and fills gaps from the
// built-in defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: read policy %s", path)
	}

	var wrapper struct {
		Aggregation Policy `yaml:"aggregation"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "aggregate: parse policy %s", path)
	}

	p := &wrapper.Aggregation
	def := DefaultPolicy()
	if len(p.DefaultPriority) == 0 {
		p.DefaultPriority = def.DefaultPriority
	}
	if p.FieldPriority == nil {
		p.FieldPriority = def.FieldPriority
	}
	if p.Sources == nil {
		p.Sources = map[string]SourcePolicy{}
	}
	if p.GlobalDeadline <= 0 {
		p.GlobalDeadline = def.GlobalDeadline
	}
	return p, nil
}

// PriorityFor returns the source order for a field, falling back to the
// default order. Sources missing from the configured list are appended in
// default order so a partial override never silences a source.
func (p *Policy) PriorityFor(fieldKey string) []string {
	order, ok := p.FieldPriority[fieldKey]
	if !ok {
		return p.DefaultPriority
	}
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(p.DefaultPriority))
	for _, s := range order {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range p.DefaultPriority {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Enabled reports whether a source participates in runs.
func (p *Policy) Enabled(sourceID string) bool {
	sp, ok := p.Sources[sourceID]
	if !ok || sp.Enabled == nil {
		return true
	}
	return *sp.Enabled
}

// TimeoutFor returns the per-attempt timeout for a source.
func (p *Policy) TimeoutFor(sourceID string) time.Duration {
	if sp, ok := p.Sources[sourceID]; ok && sp.Timeout > 0 {
		return sp.Timeout
	}
	return 45 * time.Second
}

// RetryConfigFor builds the retry configuration for a source pipeline.
func (p *Policy) RetryConfigFor(sourceID string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	sp, ok := p.Sources[sourceID]
	if !ok {
		return cfg
	}
	if sp.MaxAttempts > 0 {
		cfg.MaxAttempts = sp.MaxAttempts
	}
	if sp.InitialBackoff > 0 {
		cfg.InitialBackoff = sp.InitialBackoff
	}
	if sp.MaxBackoff > 0 {
		cfg.MaxBackoff = sp.MaxBackoff
	}
	if sp.FixedBackoff {
		cfg.Backoff = resilience.BackoffFixed
	}
	if sp.RetryMalformed {
		cfg.RetryableKinds = map[resilience.FailureKind]bool{
			resilience.KindTimeout:           true,
			resilience.KindRateLimited:       true,
			resilience.KindTransientNetwork:  true,
			resilience.KindMalformedResponse: true,
		}
	}
	return cfg
}
