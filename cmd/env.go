package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmenradar/internal/aggregate"
	"github.com/sells-group/firmenradar/internal/fetcher"
	"github.com/sells-group/firmenradar/internal/parser"
	"github.com/sells-group/firmenradar/internal/session"
	"github.com/sells-group/firmenradar/internal/source"
	"github.com/sells-group/firmenradar/internal/store"
)

// env bundles the wired application components for a command invocation.
type env struct {
	Store        store.Store
	Sessions     *session.Manager
	Orchestrator *aggregate.Orchestrator
	Policy       *aggregate.Policy
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv wires the full aggregation stack from configuration.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sessions, err := session.NewManager(cfg.Sessions.Path)
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "init sessions")
	}

	policy := aggregate.DefaultPolicy()
	if cfg.Policy.Path != "" {
		policy, err = aggregate.LoadPolicy(cfg.Policy.Path)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "load policy")
		}
	}

	client := fetcher.New(fetcher.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	adapters := []source.Adapter{
		source.NewHandelsregister(source.HandelsregisterConfig{
			BaseURL:     cfg.Sources.Handelsregister.BaseURL,
			ArtifactDir: cfg.Fetch.ArtifactDir,
		}, client),
		source.NewNorthdata(source.NorthdataConfig{
			BaseURL:     cfg.Sources.Northdata.BaseURL,
			ArtifactDir: cfg.Fetch.ArtifactDir,
		}, client),
		source.NewLinkedIn(source.LinkedInConfig{
			BaseURL:     cfg.Sources.LinkedIn.BaseURL,
			ArtifactDir: cfg.Fetch.ArtifactDir,
		}, client, sessions),
		source.NewUnternehmensregister(source.UnternehmensregisterConfig{
			BaseURL:     cfg.Sources.Unternehmensregister.BaseURL,
			ArtifactDir: cfg.Fetch.ArtifactDir,
		}, client),
	}

	parsers := parser.DefaultRegistry(cfg.Parser.PdfToTextPath)
	controller := aggregate.NewController(parsers, sessions, policy)
	orchestrator := aggregate.NewOrchestrator(adapters, controller, policy, st)

	return &env{
		Store:        st,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Policy:       policy,
	}, nil
}
