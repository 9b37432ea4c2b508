package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/sense/internal/api"
	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/engine"
	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
	"github.com/gyaneshwarpardhi/sense/internal/logging"
	"github.com/gyaneshwarpardhi/sense/internal/notifier"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
	"github.com/gyaneshwarpardhi/sense/internal/ruleconf"
	"github.com/gyaneshwarpardhi/sense/internal/source"
	"github.com/gyaneshwarpardhi/sense/internal/statistics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the classification server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()
	if err := logging.Init(cfg.Log.Format, cfg.Log.Level); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Rules ────────────────────────────────────────────────────────────────
	compiler, err := ruleconf.NewCompiler()
	if err != nil {
		return err
	}
	rules, err := compiler.CompileAll(cfg.Rules)
	if err != nil {
		return fmt.Errorf("compile rules: %w", err)
	}
	registry := classifier.NewRegistry(rules...)
	slog.Info("rules loaded", "rules", len(rules))

	// ── Event provider ───────────────────────────────────────────────────────
	var (
		store    provider.Store
		recorder engine.Recorder
	)
	switch cfg.Provider.Kind {
	case config.ProviderMongo:
		m := cfg.Provider.Mongo
		ms, err := provider.NewMongoStore(ctx, m.URI, m.Database, m.Collection)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Close(closeCtx)
		}()
		store = ms
	default:
		store = provider.NewMemoryStore()
	}
	cache, err := provider.NewCached(store, provider.CacheConf{
		MaxSize:   cfg.EventsCaching.MaxSize,
		MaxWeight: cfg.EventsCaching.MaxWeightBytes,
	})
	if err != nil {
		return err
	}
	if cfg.Provider.Kind == config.ProviderMemory {
		// ingested events are the only source of parents
		recorder = cache
	}

	// ── Notifications ────────────────────────────────────────────────────────
	hub := notifier.NewHub(cfg.Server.MaxStreamClients)
	listeners := []expectation.Listener{notifier.Log{}, notifier.NewGauge(nil), hub}

	var nc *nats.Conn
	if cfg.Notifier.NATSURL != "" {
		nc, err = nats.Connect(cfg.Notifier.NATSURL, nats.Name("sense"))
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.Notifier.NATSURL, err)
		}
		defer nc.Drain()
	}
	if cfg.Notifier.NATSSubject != "" {
		listeners = append(listeners, notifier.NewNATSPublisher(nc, cfg.Notifier.NATSSubject))
	}

	sink := errsink.Log()
	expectations := expectation.NewEngine(sink, listeners...)

	// ── Statistics + engine ──────────────────────────────────────────────────
	buckets, err := statistics.NewBuckets(cfg.Statistic.EventBuckets)
	if err != nil {
		return err
	}
	engCtx, cancelEng := context.WithCancel(context.Background())
	defer cancelEng()
	eng := engine.New(engCtx, engine.Deps{
		Classifier: classifier.New(registry, cache, sink),
		Buckets:    buckets,
		Statistics: statistics.NewAggregated(sink, buckets, statistics.Prometheus{}, expectations),
		Recorder:   recorder,
	}, cfg.Engine)

	// ── Sources ──────────────────────────────────────────────────────────────
	fanout := source.NewListeners(sink, eng)
	go source.Ticker(ctx, cfg.Engine.RefreshInterval, fanout)
	if n := cfg.Source.NATS; n != nil {
		srcConn := nc
		if n.URL != cfg.Notifier.NATSURL {
			srcConn, err = nats.Connect(n.URL, nats.Name("sense-source"))
			if err != nil {
				return fmt.Errorf("connect nats %s: %w", n.URL, err)
			}
			defer srcConn.Drain()
		}
		src, err := source.NewNATS(srcConn, *n, fanout)
		if err != nil {
			return err
		}
		go func() {
			if err := src.Run(ctx); err != nil {
				slog.Error("nats source failed", "err", err)
				stop()
			}
		}()
	}

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := compiler.Apply(registry, newCfg.Rules); err != nil {
			slog.Warn("hot-reload skipped: rules invalid", "err", err)
			return
		}
		slog.Info("rules hot-reloaded", "rules", len(newCfg.Rules))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	handler := api.New(api.Deps{
		Engine:       eng,
		Registry:     registry,
		Compiler:     compiler,
		Expectations: expectations,
		Loader:       loader,
		Hub:          hub,
		AwaitTimeout: cfg.Server.DefaultAwaitTimeout,
		JWTSecret:    cfg.Auth.JWTSecret,
	})
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: await requests and websocket streams are long lived
		IdleTimeout: 60 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errC:
		slog.Error("server error", "err", runErr)
	}
	slog.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	stop()
	eng.Shutdown()
	slog.Info("goodbye")
	return runErr
}
