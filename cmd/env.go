package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/config"
	"github.com/aozora-lab/poster-cli/internal/enrich"
	"github.com/aozora-lab/poster-cli/internal/monitoring"
	"github.com/aozora-lab/poster-cli/internal/orchestrator"
	"github.com/aozora-lab/poster-cli/internal/registry"
	"github.com/aozora-lab/poster-cli/internal/resilience"
	"github.com/aozora-lab/poster-cli/internal/rotation"
	"github.com/aozora-lab/poster-cli/internal/store"
	"github.com/aozora-lab/poster-cli/pkg/catalog"
	"github.com/aozora-lab/poster-cli/pkg/gemini"
	"github.com/aozora-lab/poster-cli/pkg/grok"
	"github.com/aozora-lab/poster-cli/pkg/wordpress"
)

// appEnv bundles everything a command needs once configuration is loaded.
type appEnv struct {
	Store        store.Store
	Registry     *registry.Registry
	Rotation     *rotation.Selector
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
}

func (e *appEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "poster.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sheets":
		return store.NewSheets(ctx, cfg.Store.SpreadsheetID, cfg.Store.CredentialsFile)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func buildLimiter(loc *time.Location) *resilience.Limiter {
	limiter := resilience.NewLimiter(loc)
	budgets := map[string]config.ProviderLimit{
		"catalog":   cfg.RateLimits.Catalog,
		"gemini":    cfg.RateLimits.Gemini,
		"grok":      cfg.RateLimits.Grok,
		"wordpress": cfg.RateLimits.WordPress,
	}
	for provider, lim := range budgets {
		limiter.Register(provider, resilience.Budget{
			PerSecond: lim.PerSecond,
			Burst:     lim.Burst,
			PerDay:    lim.PerDay,
		})
	}
	return limiter
}

// initEnv wires the full orchestration stack. dryRun disables persistence and
// outbound publication while keeping the decision path identical.
func initEnv(ctx context.Context, dryRun bool) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}
	env.closers = append(env.closers, st.Close)

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		env.Close()
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Schedule.Timezone)
	}

	persist := !dryRun
	env.Registry = registry.New(st, persist)
	if err := env.Registry.Load(ctx); err != nil {
		env.Close()
		return nil, err
	}
	env.Rotation = rotation.New(st, persist)
	if err := env.Rotation.Load(ctx); err != nil {
		env.Close()
		return nil, err
	}

	limiter := buildLimiter(loc)

	primary, err := gemini.NewAnalyzer(ctx, cfg.Gemini.Key, gemini.WithModel(cfg.Gemini.Model))
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, primary.Close)

	var secondary enrich.Provider
	if cfg.Grok.Key != "" {
		secondary = grok.NewAnalyzer(cfg.Grok.Key,
			grok.WithBaseURL(cfg.Grok.BaseURL),
			grok.WithModel(cfg.Grok.Model),
		)
	} else {
		zap.L().Info("no secondary provider configured, primary verdicts stand alone")
	}

	deps := orchestrator.Deps{
		Catalog: catalog.NewClient(cfg.Catalog.APIID, cfg.Catalog.AffiliateID,
			catalog.WithBaseURL(cfg.Catalog.BaseURL),
			catalog.WithSite(cfg.Catalog.Site),
			catalog.WithService(cfg.Catalog.Service, "videoc"),
		),
		Merger:    enrich.NewMerger(primary, secondary, limiter, cfg.Enrich),
		Registry:  env.Registry,
		Rotation:  env.Rotation,
		Publisher: wordpress.NewClient(cfg.WordPress.BaseURL, cfg.WordPress.Username, cfg.WordPress.AppPassword),
		Limiter:   limiter,
		Notifier:  monitoring.NewNotifier(cfg.Monitoring),
	}

	env.Orchestrator = orchestrator.New(deps, cfg, loc, dryRun)
	return env, nil
}
