package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/config"
	"github.com/haukened/phishguard/internal/proxy/gateways/alert"
	"github.com/haukened/phishguard/internal/proxy/gateways/postgres"
	"github.com/haukened/phishguard/internal/proxy/gateways/probe"
	"github.com/haukened/phishguard/internal/proxy/gateways/resolve"
	"github.com/haukened/phishguard/internal/proxy/gateways/threatintel"
	"github.com/haukened/phishguard/internal/proxy/gateways/transport"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist/bloom"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist/bolt"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist/file"
	"github.com/haukened/phishguard/internal/proxy/repos/decisioncache"
	"github.com/haukened/phishguard/internal/proxy/services/admission"
	"github.com/haukened/phishguard/internal/proxy/services/handler"
	"github.com/haukened/phishguard/internal/proxy/services/tunnel"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "phishguardd"

	defaultConnectTimeout  = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the proxy.
type Application struct {
	config    *config.AppConfig
	transport *transport.TCPTransport
	handler   *handler.Handler
	metrics   *http.Server

	// closers release backing stores on shutdown, in reverse order.
	closers []func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":              appName,
		"version":          version,
		"env":              cfg.Env,
		"log_level":        cfg.LogLevel,
		"listen":           cfg.Listen,
		"blacklist_source": cfg.BlacklistSource,
		"threat_intel":     cfg.ThreatIntelKey != "",
		"alerts":           cfg.AlertWebhook != "",
		"persistence":      cfg.DatabaseURL != "",
	}, "Starting phishguard proxy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Proxy failed")
	}

	log.Info(nil, "phishguard proxy stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()
	app := &Application{config: cfg}

	var pg *postgres.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pg = postgres.New(pool)
		app.closers = append(app.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			app.close()
			return nil, fmt.Errorf("failed to prepare database schema: %w", err)
		}
		log.Info(nil, "Postgres connection established")
	}

	source, err := buildSource(cfg, pg, logger, app)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to build blacklist source: %w", err)
	}

	blacklistCache, err := blacklist.New(ctx, blacklist.Options{
		Source:          source,
		Clock:           clk,
		Logger:          logger,
		RefreshInterval: cfg.BlacklistRefreshInterval(),
		BloomFactory:    bloom.NewFactory(),
		FPRate:          cfg.BlacklistFPRate,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create blacklist cache: %w", err)
	}

	decisions, err := decisioncache.New(cfg.CacheSize, cfg.CacheTTLDuration(), clk)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	log.Info(map[string]any{
		"type": "LRU",
		"size": cfg.CacheSize,
		"ttl":  cfg.CacheTTLDuration().String(),
	}, "Decision cache configured")

	threats := threatintel.New(threatintel.Options{
		APIKey:  cfg.ThreatIntelKey,
		URL:     cfg.ThreatIntelURL,
		Timeout: cfg.ThreatIntelTimeoutDuration(),
		Logger:  logger,
	})
	if !threats.Enabled() {
		log.Warn(nil, "Threat intelligence API key not set, lookups disabled")
	}
	prober := probe.New(probe.Options{Timeout: cfg.ProbeTimeoutDuration()})

	engine := admission.New(admission.Options{
		Blacklist:  blacklistCache,
		Cache:      decisions,
		Heuristics: admission.DefaultHeuristics(threats, prober),
		Clock:      clk,
		Logger:     logger,
	})

	template, err := handler.LoadTemplate(cfg.ForbiddenTemplate)
	if err != nil {
		log.Error(map[string]any{
			"path":  cfg.ForbiddenTemplate,
			"error": err,
		}, "Forbidden template unavailable, using built-in page")
	}

	opts := handler.Options{
		Admission: engine,
		Resolver:  resolve.New(resolve.Options{Logger: logger}),
		Relay: tunnel.New(tunnel.Options{
			IdleTimeout: cfg.SocketTimeoutDuration(),
			BufferSize:  cfg.BufferSize,
			Logger:      logger,
		}),
		Dial:          (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
		Clock:         clk,
		Logger:        logger,
		SocketTimeout: cfg.SocketTimeoutDuration(),
		BufferSize:    cfg.BufferSize,
		Template:      template,
	}
	if pg != nil {
		opts.Persistence = pg
	}
	if cfg.AlertWebhook != "" {
		hook, err := alert.New(alert.Options{URL: cfg.AlertWebhook, PerSecond: cfg.AlertRate})
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to create alert webhook: %w", err)
		}
		opts.Alerts = hook
	}

	app.handler, err = handler.New(opts)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create connection handler: %w", err)
	}

	app.transport = transport.NewTCPTransport(cfg.Listen, cfg.MaxConnections, logger)

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		app.metrics = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

// buildSource selects the blacklist backend named by the configuration.
func buildSource(cfg *config.AppConfig, pg *postgres.Store, logger log.Logger, app *Application) (blacklist.Source, error) {
	switch cfg.BlacklistSource {
	case config.SourcePostgres:
		if pg == nil {
			return nil, errors.New("postgres source requires a database url")
		}
		return pg, nil
	case config.SourceBolt:
		store, err := bolt.New(cfg.BlacklistDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open blacklist db %s: %w", cfg.BlacklistDB, err)
		}
		app.closers = append(app.closers, func() { _ = store.Close() })
		if cfg.BlacklistFile != "" {
			entries, err := file.New(cfg.BlacklistFile, logger).Load()
			if err != nil {
				return nil, err
			}
			if err := store.ReplaceAll(entries, time.Now().Unix()); err != nil {
				return nil, fmt.Errorf("failed to import deny list: %w", err)
			}
		}
		st := store.Stats()
		log.Info(map[string]any{
			"db":           cfg.BlacklistDB,
			"domains":      st.ActiveDomains,
			"cidrs":        st.ActiveCidrs,
			"updated_unix": st.UpdatedUnix,
			"seeded_from":  cfg.BlacklistFile,
		}, "Bolt blacklist opened")
		return store, nil
	case config.SourceFile:
		return file.New(cfg.BlacklistFile, logger), nil
	default:
		log.Warn(nil, "No blacklist source configured, blacklist is empty")
		return blacklist.NopSource{}, nil
	}
}

// Start binds the proxy listener and, if configured, the metrics endpoint.
func (app *Application) Start(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.handler); err != nil {
		return fmt.Errorf("failed to start TCP transport: %w", err)
	}
	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "TCP",
	}, "Proxy started")

	if app.metrics != nil {
		go func() {
			err := app.metrics.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(map[string]any{"error": err, "address": app.metrics.Addr}, "Metrics server failed")
			}
		}()
		log.Info(map[string]any{"address": app.metrics.Addr}, "Metrics endpoint started")
	}
	return nil
}

// Shutdown stops accepting, drains in-flight connections and closes the stores.
func (app *Application) Shutdown() error {
	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}
	if app.metrics != nil {
		if err := app.metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err}, "Error during metrics shutdown")
		}
	}

	err := app.transport.Wait(shutdownCtx)
	if err == nil {
		// alerts can outlive their connections
		err = app.handler.Wait(shutdownCtx)
	}
	app.close()
	if err != nil {
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
	log.Info(nil, "Graceful shutdown completed")
	return nil
}

// Run starts the proxy and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		app.close()
		return err
	}
	<-ctx.Done()
	return app.Shutdown()
}

func (app *Application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}
