package server

import (
	"context"
	"errors"
	"time"

	"StockIt/internal/scheduler"
	"StockIt/internal/usecase"
	"StockIt/pkg/config"
	xhttp "StockIt/pkg/http"
	pkgkafka "StockIt/pkg/kafka"
	applogger "StockIt/pkg/logger"
	"StockIt/pkg/queue"
)

// Worker is a background component with an explicit lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Archiver drains the scans topic into ClickHouse. Both fields are nil when
// the consumer is disabled.
type Archiver struct {
	Consumer *pkgkafka.Consumer
	Handler  pkgkafka.MessageHandler
}

// Jobs holds scheduled work. Dispatch is the Redis queue or an inline runner.
type Jobs struct {
	Dispatch  queue.QueueService
	Scheduler *scheduler.Scheduler
}

// App owns every long-running component and their start/stop order.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	http     *xhttp.Server
	feed     *usecase.OpportunityFeed
	proc     *usecase.UpdateProcessor
	archiver *Archiver
	jobs     *Jobs
}

func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	feed *usecase.OpportunityFeed,
	proc *usecase.UpdateProcessor,
	archiver *Archiver,
	jobs *Jobs,
) *App {
	return &App{
		cfg:      cfg,
		logger:   l.With("app"),
		http:     httpServer,
		feed:     feed,
		proc:     proc,
		archiver: archiver,
		jobs:     jobs,
	}
}

// Run starts everything and blocks until ctx ends, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}
	a.logger.Info("stockit running",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.proc.Backend()),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	a.feed.Start(ctx)

	if a.archiver != nil && a.archiver.Consumer != nil && a.archiver.Handler != nil {
		a.archiver.Consumer.RegisterHandler(a.archiver.Handler)
		if err := a.archiver.Consumer.Start(); err != nil {
			return err
		}
		a.logger.Info("scan archiver started", applogger.String("topic", a.archiver.Handler.Topic()))
	}

	if a.jobs != nil {
		if w, ok := a.jobs.Dispatch.(Worker); ok {
			if err := w.Start(ctx); err != nil {
				return err
			}
		}
		if a.jobs.Scheduler != nil {
			a.jobs.Scheduler.Start()
		}
		if a.cfg.Scanner.ScanOnStartup && a.jobs.Dispatch != nil {
			go a.scanNow(ctx)
		}
	}

	return a.http.Start()
}

func (a *App) scanNow(ctx context.Context) {
	payload := usecase.ScanJobPayload{
		Symbols: a.cfg.Scanner.Symbols,
		MinGain: a.cfg.Scanner.MinGain,
		Track:   true,
	}
	if err := a.jobs.Dispatch.PublishMessage(ctx, usecase.ScanJobType, payload); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("startup scan failed", applogger.Error(err))
	}
}

// shutdown stops intake first, then the workers, then flushes the feed.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.jobs != nil {
		if a.jobs.Scheduler != nil {
			if err := a.jobs.Scheduler.Stop(ctx); err != nil {
				a.logger.Warn("scheduler stop error", applogger.Error(err))
			}
		}
		if w, ok := a.jobs.Dispatch.(Worker); ok {
			if err := w.Stop(ctx); err != nil {
				a.logger.Warn("queue stop error", applogger.Error(err))
			}
		}
	}
	if a.archiver != nil && a.archiver.Consumer != nil {
		if err := a.archiver.Consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	start := time.Now()
	a.feed.Teardown()
	a.logger.Info("shutdown complete", applogger.Duration("feed_teardown", time.Since(start)))
}
