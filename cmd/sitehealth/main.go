package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/sachin5713/unified-site-health-dashboard/db"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/auth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/debug"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/mux"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/routes"
	"github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth/classify"
	"github.com/sachin5713/unified-site-health-dashboard/internal/config"
	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/eventbus/kafka"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/eventbus/memory"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/hostcheck"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/probe/pagespeed"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage"
	memstore "github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage/sitehealth/memory"
	pgstore "github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage/sitehealth/postgres"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/otel"
)

var build = "develop"

const serviceType = "sitehealth"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("SITEHEALTH-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		Enabled:          cfg.Telemetry.Enabled,
		ServiceName:      serviceType,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(serviceType)
	mp := otel.GetMeterProvider()

	// -------------------------------------------------------------------------
	// Storage
	stores, closeStores, err := openStores(ctx, log, cfg.Storage, tracer)
	if err != nil {
		return err
	}
	defer closeStores()

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}

	var publisher events.DomainEventPublisher
	if cfg.Kafka.Enabled {
		log.Info(ctx, "startup", "status", "connecting kafka publisher", "brokers", cfg.Kafka.Brokers)
		kp, err := kafka.ConnectPublisher(&kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, log, apiMetrics, tracer)
		if err != nil {
			return fmt.Errorf("connecting kafka publisher: %w", err)
		}
		defer kp.Close()
		publisher = kp
	} else {
		publisher = memory.NewBroker(0)
	}

	// -------------------------------------------------------------------------
	// Scan pipeline
	table, err := loadCategoryTable(cfg.Scan.CategoryTable)
	if err != nil {
		return err
	}

	shMetrics, err := sitehealth.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating sitehealth metrics: %w", err)
	}

	probeCfg := pagespeed.DefaultConfig()
	probeCfg.Endpoint = cfg.PageSpeed.Endpoint
	probeCfg.Timeout = cfg.PageSpeed.Timeout
	probeCfg.RetryDelay = cfg.PageSpeed.RetryDelay
	probeCfg.MaxAttempts = cfg.PageSpeed.MaxAttempts
	probeCfg.RequestsPerMinute = cfg.PageSpeed.RequestsPerMinute
	prober := pagespeed.NewClient(probeCfg, nil, shMetrics, log, tracer)

	secrets, err := hostcheck.NewSecretScanner(tracer)
	if err != nil {
		return fmt.Errorf("creating secret scanner: %w", err)
	}

	deps := sitehealth.OrchestratorDeps{
		Runs:        stores.runs,
		Audits:      stores.audits,
		Queue:       stores.queue,
		Prober:      prober,
		Classifier:  classify.NewClassifier(table),
		Hosts:       hostcheck.NewChecker(secrets, stores.version, nil, log, tracer),
		Targets:     sitehealth.StaticTargets(cfg.Scan.DomainTargets()),
		Credentials: sitehealth.StaticCredentials{APIKey: cfg.PageSpeed.APIKey},
		Publisher:   publisher,
	}

	orchestrator := sitehealth.NewOrchestrator(sitehealth.OrchestratorConfig{
		BatchSize:         cfg.Scan.BatchSize,
		ContinuationDelay: cfg.Scan.ContinuationDelay,
		MaxCASRetries:     cfg.Scan.MaxCASRetries,
	}, deps, shMetrics, log, tracer)
	service := sitehealth.NewService(deps, shMetrics, log, tracer)

	components := []sitehealth.Runnable{
		sitehealth.NewRetention(stores.audits, cfg.Scan.RetentionDays, cfg.Scan.RetentionInterval, log, tracer),
	}
	if cfg.Worker.Enabled {
		components = append(components,
			sitehealth.NewWorker(sitehealth.WorkerConfig{
				PollInterval: cfg.Scan.PollInterval,
				Lease:        cfg.Scan.Lease,
			}, stores.queue, orchestrator, log, tracer),
			sitehealth.NewSupervisor(sitehealth.SupervisorConfig{
				CheckInterval: cfg.Scan.StaleCheckInterval,
				StaleAfter:    cfg.Scan.StaleAfter,
			}, stores.runs, stores.queue, publisher, shMetrics, log, tracer),
		)
	}
	if cfg.Scan.AutoScan {
		interval, err := sitehealth.ParseScanInterval(cfg.Scan.ScanInterval)
		if err != nil {
			return fmt.Errorf("parsing scan interval: %w", err)
		}
		components = append(components, sitehealth.NewAutoScanner(orchestrator, interval, log))
	}

	// -------------------------------------------------------------------------
	// Start Debug Service

	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.Web.DebugHost)

		if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	authn, err := auth.New(auth.Config{
		AdminToken:  cfg.Auth.AdminToken,
		NonceSecret: cfg.Auth.NonceSecret,
		NonceTTL:    cfg.Auth.NonceTTL,
	})
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfgMux := mux.Config{
		Build:   build,
		Log:     log,
		Tracer:  tracer,
		Metrics: apiMetrics,
		Auth:    authn,
		Scanner: orchestrator,
		Reader:  service,
	}
	if stores.pool != nil {
		cfgMux.DB = stores.pool
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 2)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	runCtx, stopRuntime := context.WithCancel(ctx)
	defer stopRuntime()

	go func() {
		log.Info(ctx, "startup", "status", "scan runtime started", "components", len(components))
		if err := sitehealth.NewRuntime(components...).Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrors <- fmt.Errorf("scan runtime: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		stopRuntime()

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

type storeSet struct {
	pool    *pgxpool.Pool
	runs    domain.RunRepository
	audits  domain.AuditRepository
	queue   domain.ContinuationQueue
	version domain.VersionReporter
}

func openStores(ctx context.Context, log *logger.Logger, cfg config.Storage, tracer trace.Tracer) (storeSet, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Info(ctx, "startup", "status", "using in-memory storage")
		audits := memstore.NewAuditStore()
		return storeSet{
			runs:    memstore.NewRunStore(),
			audits:  audits,
			queue:   memstore.NewContinuationQueue(),
			version: audits,
		}, func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return storeSet{}, nil, fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return storeSet{}, nil, fmt.Errorf("creating db pool: %w", err)
	}

	if cfg.MigrateOnBoot {
		log.Info(ctx, "startup", "status", "applying migrations")
		if err := storage.MigrateUpFS(pool, db.Migrations, db.MigrationsPath); err != nil {
			pool.Close()
			return storeSet{}, nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	audits := pgstore.NewAuditStore(pool, tracer)
	return storeSet{
		pool:    pool,
		runs:    pgstore.NewRunStore(pool, tracer),
		audits:  audits,
		queue:   pgstore.NewContinuationStore(pool, tracer),
		version: audits,
	}, pool.Close, nil
}

func loadCategoryTable(path string) (*classify.Table, error) {
	if path == "" {
		table, err := classify.DefaultTable()
		if err != nil {
			return nil, fmt.Errorf("loading default category table: %w", err)
		}
		return table, nil
	}
	table, err := classify.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("loading category table %s: %w", path, err)
	}
	return table, nil
}
