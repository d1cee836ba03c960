package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "ChainWatch/internal/domain/repository"
	"ChainWatch/internal/usecase"
	pkgch "ChainWatch/pkg/clickhouse"
	"ChainWatch/pkg/config"
	xhttp "ChainWatch/pkg/http"
	applogger "ChainWatch/pkg/logger"
	"ChainWatch/pkg/util"
)

// App encapsulates the entire application lifecycle: one pipeline run for
// the target trading day, then the results API until interrupted.
type App struct {
	cfg         *config.Config
	pipeline    *usecase.Pipeline
	chClient    *pkgch.Client
	publisher   drepo.Publisher
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	l           *applogger.Logger
	runDate     time.Time
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	pipeline *usecase.Pipeline,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
	publisher drepo.Publisher,
	l *applogger.Logger,
) *App {
	return &App{
		cfg:         cfg,
		pipeline:    pipeline,
		chClient:    chClient,
		httpHandler: httpHandler,
		publisher:   publisher,
		l:           l,
	}
}

// SetRunDate overrides the trading day the pipeline runs for. Zero means
// the last trading day on or before today.
func (a *App) SetRunDate(d time.Time) { a.runDate = d }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.l
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	var serverOpts []xhttp.ServerOption
	if a.cfg.Server.Port > 0 {
		serverOpts = append(serverOpts, xhttp.WithPort(a.cfg.Server.Port))
	}
	if a.cfg.Server.ReadTimeout > 0 || a.cfg.Server.WriteTimeout > 0 {
		serverOpts = append(serverOpts, xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, serverOpts...)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	date := a.runDate
	if date.IsZero() {
		date = util.LastTradingDay(util.Today())
	}

	go func() {
		started := time.Now()
		summary, err := a.pipeline.Run(ctx, date)
		if err != nil {
			l.Error("pipeline run finished with error", applogger.Error(err))
		}
		if summary != nil {
			l.Info("pipeline run complete",
				applogger.String("date", date.Format("2006-01-02")),
				applogger.Int("attempted", summary.Attempted),
				applogger.Int("succeeded", summary.Succeeded),
				applogger.Int("failed", summary.Failed),
				applogger.Duration("elapsed_ms", time.Since(started)),
			)
		}
	}()
	l.Info("pipeline started", applogger.String("date", date.Format("2006-01-02")))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background(), l)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
