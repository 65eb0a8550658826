// Package app wires the crawl pipeline: one main browser session for the search,
// a pool of detail sessions for enrichment, then export and the optional sinks.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/browser"
	"github.com/JakeFAU/directory-crawler/internal/clock/system"
	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/directory"
	"github.com/JakeFAU/directory-crawler/internal/export"
	"github.com/JakeFAU/directory-crawler/internal/hash/sha256"
	"github.com/JakeFAU/directory-crawler/internal/id/uuid"
	"github.com/JakeFAU/directory-crawler/internal/publisher"
	pubsubpub "github.com/JakeFAU/directory-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/directory-crawler/internal/storage"
	"github.com/JakeFAU/directory-crawler/internal/storage/gcs"
	"github.com/JakeFAU/directory-crawler/internal/storage/local"
	"github.com/JakeFAU/directory-crawler/internal/storage/postgres"
)

// IDGenerator creates run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// CompanyStore persists the enriched entries of a run.
type CompanyStore interface {
	SaveRun(ctx context.Context, run postgres.Run, entries []directory.Entry) error
}

// Deps are the collaborators of an App. Nil optional fields disable that sink.
type Deps struct {
	Factory browser.Factory
	// Artifacts receives diagnostics under their bare names.
	Artifacts storage.BlobStore
	// Remote, when set, receives diagnostics and the output file under <prefix>/<run id>/.
	Remote    storage.BlobStore
	Companies CompanyStore
	Publisher publisher.Publisher
	IDs       IDGenerator
	Now       func() time.Time
}

// App runs crawls against one configuration.
type App struct {
	cfg      config.Config
	deps     Deps
	logger   *zap.Logger
	enricher *directory.Enricher
	exporter *export.Exporter
	hasher   *sha256.Hasher
	closers  []func() error

	mu     sync.RWMutex
	status Status
}

// New builds the production services described by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	factory, err := browser.NewChromedpFactory(browserOptions(cfg), logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("create browser factory: %w", err)
	}

	artifacts, err := local.New(local.Config{BaseDir: cfg.Artifacts.Dir})
	if err != nil {
		return nil, fmt.Errorf("open artifact dir: %w", err)
	}
	deps := Deps{
		Factory:   factory,
		Artifacts: artifacts,
		IDs:       uuid.New(),
	}

	if cfg.Artifacts.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		closers = append(closers, client.Close)
		bucket, err := gcs.New(client, gcs.Config{Bucket: cfg.Artifacts.GCSBucket})
		if err != nil {
			closeAll()
			return nil, err
		}
		deps.Remote = bucket
		logger.Info("mirroring artifacts to bucket", zap.String("bucket", cfg.Artifacts.GCSBucket))
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewCompanyStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, err
		}
		deps.Companies = store
	}

	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, pub.Close)
		deps.Publisher = pub
	}

	a, err := NewWithDeps(cfg, deps, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWithDeps builds an App from explicit collaborators.
func NewWithDeps(cfg config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Factory == nil {
		return nil, errors.New("browser factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Now == nil {
		deps.Now = system.New().Now
	}
	enricher, err := directory.NewEnricher(deps.Factory, enricherConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("create enricher: %w", err)
	}
	return &App{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		enricher: enricher,
		exporter: export.New(logger),
		hasher:   sha256.New(),
		status:   Status{Stage: StageIdle},
	}, nil
}

// Close releases clients opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service", zap.Error(err))
		}
	}
	a.closers = nil
}

// Run performs one search-enrich-save pass for keyword.
// Only faults that keep the run from starting are returned as errors; search
// failures and empty results are reported through the summary status.
func (a *App) Run(ctx context.Context, keyword string) (RunSummary, error) {
	runID, err := a.deps.IDs.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := RunSummary{
		RunID:     runID,
		Keyword:   keyword,
		StartedAt: a.deps.Now().UTC(),
	}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("keyword", keyword))
	a.setStage(runID, keyword, StageStarting, 0)

	collector, err := directory.NewCollector(a.collectorConfig(), a.runArtifacts(runID, logger), logger)
	if err != nil {
		return a.abort(ctx, summary, fmt.Errorf("create collector: %w", err))
	}

	logger.Debug("initializing browser")
	session, err := a.deps.Factory.New(ctx)
	if err != nil {
		return a.abort(ctx, summary, fmt.Errorf("start main browser session: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close main browser session", zap.Error(cerr))
		} else {
			logger.Debug("main browser session closed")
		}
	}()

	if err := session.Navigate(ctx, a.cfg.Site.SearchURL); err != nil {
		logger.Error("open search page", zap.String("url", a.cfg.Site.SearchURL), zap.Error(err))
		summary.Status = StatusFailed
		summary.Error = fmt.Sprintf("open search page: %v", err)
		return a.finish(ctx, summary), nil
	}
	logger.Debug("navigated to search page", zap.String("url", a.cfg.Site.SearchURL))
	if err := browser.Settle(ctx, a.cfg.Search.LandingSettle); err != nil {
		return a.abort(ctx, summary, err)
	}

	a.setStage(runID, keyword, StageSearching, 0)
	entries, err := collector.Search(ctx, session, keyword)
	switch {
	case errors.Is(err, directory.ErrNoResults):
		logger.Info("no results found")
		summary.Status = StatusNoResults
		return a.finish(ctx, summary), nil
	case err != nil:
		logger.Error("search failed", zap.Error(err))
		summary.Status = StatusFailed
		summary.Error = err.Error()
		return a.finish(ctx, summary), nil
	}
	summary.Entries = len(entries)

	a.setStage(runID, keyword, StageEnriching, len(entries))
	enriched := a.enricher.Enrich(ctx, entries, a.cfg.Enrich.Concurrency)
	for _, e := range enriched {
		if e.Enriched() {
			summary.Enriched++
		}
	}

	if len(enriched) == 0 {
		logger.Info("no results to save")
		summary.Status = StatusNoResults
		return a.finish(ctx, summary), nil
	}

	a.setStage(runID, keyword, StageSaving, len(enriched))
	if err := a.exporter.Save(enriched, a.cfg.Output.Path); err != nil {
		summary.Error = fmt.Sprintf("save results: %v", err)
	} else {
		summary.OutputPath = a.cfg.Output.Path
		if digest, err := a.hasher.HashFile(a.cfg.Output.Path); err != nil {
			logger.Warn("fingerprint output", zap.Error(err))
		} else {
			summary.OutputSHA256 = digest
		}
		summary.OutputURI = a.mirrorOutput(ctx, runID, logger)
	}

	if a.deps.Companies != nil {
		run := postgres.Run{ID: runID, Keyword: keyword, ScrapedAt: summary.StartedAt}
		if err := a.deps.Companies.SaveRun(ctx, run, enriched); err != nil {
			logger.Error("store companies", zap.Error(err))
		} else {
			summary.Stored = len(enriched)
		}
	}

	summary.Status = StatusSucceeded
	return a.finish(ctx, summary), nil
}

func (a *App) abort(ctx context.Context, summary RunSummary, err error) (RunSummary, error) {
	summary.Status = StatusFailed
	summary.Error = err.Error()
	return a.finish(ctx, summary), err
}

// finish stamps the summary, publishes it and updates the live status.
func (a *App) finish(ctx context.Context, summary RunSummary) RunSummary {
	summary.FinishedAt = a.deps.Now().UTC()
	a.setStage(summary.RunID, summary.Keyword, StageDone, summary.Entries)

	if a.deps.Publisher != nil && a.cfg.PubSub.TopicName != "" {
		id, err := a.deps.Publisher.Publish(context.WithoutCancel(ctx), a.cfg.PubSub.TopicName, summary)
		if err != nil {
			a.logger.Error("publish run summary", zap.String("run_id", summary.RunID), zap.Error(err))
		} else {
			a.logger.Debug("published run summary", zap.String("run_id", summary.RunID), zap.String("message_id", id))
		}
	}
	a.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("entries", summary.Entries),
		zap.Int("enriched", summary.Enriched),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary
}

// runArtifacts returns where diagnostics of runID go.
func (a *App) runArtifacts(runID string, logger *zap.Logger) storage.BlobStore {
	remote := a.remote(runID)
	switch {
	case a.deps.Artifacts == nil && remote == nil:
		return nil
	case a.deps.Artifacts == nil:
		return remote
	}
	mirror, err := storage.NewMirror(a.deps.Artifacts, logger, remote)
	if err != nil {
		return a.deps.Artifacts
	}
	return mirror
}

func (a *App) remote(runID string) storage.BlobStore {
	if a.deps.Remote == nil {
		return nil
	}
	return storage.Prefixed{Store: a.deps.Remote, Prefix: storage.JoinPath(a.cfg.Artifacts.GCSPrefix, runID)}
}

// mirrorOutput copies the saved output file to the remote store.
func (a *App) mirrorOutput(ctx context.Context, runID string, logger *zap.Logger) string {
	remote := a.remote(runID)
	if remote == nil {
		return ""
	}
	data, err := os.ReadFile(a.cfg.Output.Path)
	if err != nil {
		logger.Error("read output for upload", zap.Error(err))
		return ""
	}
	name := filepath.Base(a.cfg.Output.Path)
	uri, err := remote.PutObject(ctx, name, storage.ContentTypeFor(name), bytes.NewReader(data))
	if err != nil {
		logger.Error("upload output", zap.Error(err))
		return ""
	}
	logger.Info("output uploaded", zap.String("uri", uri))
	return uri
}

// browserOptions takes the user agent from the merged header set so a
// headers.user-agent entry overrides default.user_agent.
func browserOptions(cfg config.Config) browser.Options {
	headers := cfg.HeaderSet()
	return browser.Options{
		Headless:      cfg.Browser.Headless,
		DisableImages: cfg.Browser.DisableImages,
		UserAgent:     headers["User-Agent"],
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		Headers:       headers,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}
}

func (a *App) collectorConfig() directory.CollectorConfig {
	return directory.CollectorConfig{
		BaseOrigin:  a.cfg.BaseOrigin(),
		Selectors:   selectors(a.cfg.Selectors),
		WaitTimeout: a.cfg.Search.WaitTimeout,
		InputSettle: a.cfg.Search.InputSettle,
		PageSettle:  a.cfg.Search.PageSettle,
		URLMarker:   a.cfg.Search.URLMarker,
		MaxPages:    a.cfg.Search.MaxPages,
	}
}

func enricherConfig(cfg config.Config) directory.EnricherConfig {
	return directory.EnricherConfig{
		Selectors:   selectors(cfg.Selectors),
		WaitTimeout: cfg.Enrich.WaitTimeout,
		PageSettle:  cfg.Enrich.PageSettle,
		DetailQPS:   cfg.Enrich.DetailQPS,
	}
}

func selectors(s config.SelectorConfig) directory.Selectors {
	return directory.Selectors{
		SearchInput:   s.SearchInput,
		SearchSubmit:  s.SearchSubmit,
		NoResults:     s.NoResults,
		NoResultsText: s.NoResultsText,
		ResultName:    s.ResultName,
		NextPage:      s.NextPage,
		CookieAccept:  s.CookieAccept,
		WebsiteButton: s.WebsiteButton,
		WebsiteLink:   s.WebsiteLink,
		PhoneButton:   s.PhoneButton,
		PhoneText:     s.PhoneText,
		Address:       s.Address,
	}
}
