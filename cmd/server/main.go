package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "gonephishing/internal/adapters/http"
	"gonephishing/internal/app"
	"gonephishing/internal/config"
	"gonephishing/internal/logging"
	scansvc "gonephishing/internal/services/scanner"
	scanworker "gonephishing/internal/workers/scanrunner"
)

func main() {
	cfg, cfgErr := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("env", cfg.Env)
	if cfgErr != nil && !errors.Is(cfgErr, config.ErrNoDatabaseURL) {
		log.WithError(cfgErr).Fatal("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("store setup failed")
	}
	defer store.Close()
	log.WithField("driver", cfg.StoreDriver).Info("store ready")

	pipeline := app.NewPipeline(cfg, log)
	hub := httpadapter.NewHub(log)
	scanner := scansvc.New(store, store, pipeline.Generator, log)

	det := cfg.Detection
	runner := scanworker.New(scanworker.Deps{
		Store:     store,
		Ownership: pipeline.Ownership,
		Fetcher:   pipeline.Fetcher,
		Scorer:    pipeline.Scorer,
		Reports:   app.NewReportSink(cfg, log),
		Events:    hub,
	}, scanworker.Options{
		Workers:        cfg.ScanWorkers,
		PollInterval:   det.PollInterval,
		PersistTimeout: det.PersistTimeout,
		SweepInterval:  det.SweepInterval,
		StaleAfter:     det.StaleAfter,
		MaxAttempts:    det.MaxAttempts,
	}, log)

	workersDone := make(chan struct{})
	if cfg.ScanWorkers > 0 {
		go func() {
			runner.Run(ctx)
			close(workersDone)
		}()
	} else {
		close(workersDone)
	}

	r := chi.NewRouter()
	r.Mount("/", httpadapter.New(scanner, hub, log).Routes())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.WithField("addr", cfg.ListenAddr).Info("listening")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
		}
		cancel()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn("workers still busy at shutdown; their tasks will be swept")
	}
}
