package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ThesisScout/internal/config"
	"ThesisScout/internal/embedding"
	"ThesisScout/internal/extractor"
	"ThesisScout/internal/infrastructure/fetcher"
	"ThesisScout/internal/infrastructure/httpapi"
	"ThesisScout/internal/infrastructure/llm"
	"ThesisScout/internal/infrastructure/ml"
	"ThesisScout/internal/infrastructure/parser"
	"ThesisScout/internal/infrastructure/scheduler"
	"ThesisScout/internal/infrastructure/storage"
	"ThesisScout/internal/infrastructure/telegram"
	"ThesisScout/internal/logging"
	"ThesisScout/internal/matcher"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.HistoryRepository
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance and opens the history store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	httpFetcher := fetcher.New(cfg.Fetcher, baseLogger.With("component", "fetcher"))
	discoverer := parser.NewStrategySource(httpFetcher, cfg.Discovery, baseLogger.With("component", "discovery"))

	var analyzer ports.TextAnalyzer
	if cfg.AI.Enabled() {
		analyzer = llm.NewAnalyzer(cfg.AI, extractor.GenericTerms)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	}

	deps := usecase.PipelineDeps{
		Discoverer: discoverer,
		Searcher:   discoverer,
		Fetcher:    httpFetcher,
		Parser:     parser.NewPageParser(cfg.Discovery.MaxTextChars),
		Extractor:  extractor.New(analyzer, baseLogger.With("component", "extractor")),
		Embedder:   embedding.New(embeddingProvider(cfg), cfg.Embedding.Dimension, cfg.Embedding.CacheTTL, baseLogger.With("component", "embedding")),
		Ranker:     matcher.New(cfg.Matcher),
		Store:      store,
		Notifier:   notifier,
		Settings:   usecase.SettingsFrom(cfg),
		Logger:     baseLogger.With("component", "pipeline"),
	}

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		pipeline: usecase.NewPipeline(deps),
	}, nil
}

// embeddingProvider prefers the OpenAI API, then a self-hosted service.
// nil means every embedding uses the hash fallback.
func embeddingProvider(cfg config.Config) ports.EmbeddingProvider {
	switch {
	case cfg.AI.Enabled():
		return llm.NewEmbedder(cfg.AI)
	case cfg.Embedding.ServiceURL != "":
		return ml.NewClient(cfg.Embedding)
	}
	return nil
}

// Pipeline exposes the use cases to command handlers.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Serve runs the REST API and, when enabled, the monitoring schedule until
// ctx is done.
func (a *Application) Serve(ctx context.Context, withMonitor bool) error {
	var sched *usecase.Scheduler
	if withMonitor {
		sched = a.scheduler()
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
	}

	server := httpapi.NewServer(a.cfg.Server, a.pipeline, a.logger.With("component", "http"))
	serveErr := server.ListenAndServe(ctx)

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		serveErr = errors.Join(serveErr, sched.Stop(stopCtx))
	}
	return serveErr
}

// Monitor runs the starred-source schedule until ctx is done.
func (a *Application) Monitor(ctx context.Context) error {
	sched := a.scheduler()
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return sched.Stop(stopCtx)
}

func (a *Application) scheduler() *usecase.Scheduler {
	driver := scheduler.NewIntervalScheduler(a.cfg.Monitor.Interval)
	return usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "monitor"))
}

// Close releases the history store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
