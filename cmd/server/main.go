// Roadwatch ingests traffic incident reports from operators and feeds,
// classifies and prioritizes them, and streams them to live dashboards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/joho/godotenv"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/prof"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/health"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/roadwatch/internal/advisory"
	rc "github.com/linnemanlabs/roadwatch/internal/cfg"
	"github.com/linnemanlabs/roadwatch/internal/dedup"
	"github.com/linnemanlabs/roadwatch/internal/enrich"
	"github.com/linnemanlabs/roadwatch/internal/events"
	"github.com/linnemanlabs/roadwatch/internal/feed"
	"github.com/linnemanlabs/roadwatch/internal/incident"
	"github.com/linnemanlabs/roadwatch/internal/incident/memstore"
	"github.com/linnemanlabs/roadwatch/internal/incident/pgstore"
	"github.com/linnemanlabs/roadwatch/internal/incident/sqlitestore"
	"github.com/linnemanlabs/roadwatch/internal/incidentapi"
	"github.com/linnemanlabs/roadwatch/internal/ingest"
	kafkamirror "github.com/linnemanlabs/roadwatch/internal/notify/kafka"
	"github.com/linnemanlabs/roadwatch/internal/notify/slack"
	"github.com/linnemanlabs/roadwatch/internal/postgres"
)

const appName = "roadwatch"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg    rc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Load the optional dotenv file first; it only sets variables that are
	// not already in the environment
	if appCfg.EnvFile != "" {
		if err := godotenv.Load(appCfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", appCfg.EnvFile, err)
		}
	}

	// Fill in config values from environment variables with prefix ROADWATCH_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "ROADWATCH_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// cross-cutting checks that only main can validate
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// create a logger with component field pre-filled for structured logging in this package
	L := lg.With("component", vi.Component)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"trace_sample", traceCfg.TraceSample,
		"trace_insecure", traceCfg.Insecure,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"pyro_server", profCfg.PyroServer,
		"pyro_tenant", profCfg.PyroTenantID,
		"include_error_links", logCfg.IncludeErrorLinks,
		"max_error_links", logCfg.MaxErrorLinks,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
		"store", appCfg.Store,
		"feed_source", appCfg.FeedSource,
		"feed_interval_seconds", appCfg.FeedIntervalSeconds,
		"timezone", appCfg.Timezone,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Link spans to pyroscope profiles so a slow ingest run can be opened
	// as a flame graph from its trace
	if profErr == nil && profCfg.EnablePyroscope {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Register per-query DB duration histogram and wire the observer.
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roadwatch_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, method, route, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
		},
	))

	// Initialize the incident store and the dedup ledger. Persistent stores
	// keep the ledger next to the incidents so restarts do not re-ingest
	// the whole feed.
	var (
		store     incident.Store
		ledger    dedup.Ledger
		compacter dedup.Compacter
	)
	switch appCfg.Store {
	case rc.StorePostgres:
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL, int32(appCfg.DBMaxConns)) //nolint:gosec // G115: validated >= 0, pool sizes are small
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pgStore, err := pgstore.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		pgLedger := pgStore.Ledger()
		store, ledger, compacter = pgStore, pgLedger, pgLedger
		L.Info(ctx, "using postgres store")
	case rc.StoreSQLite:
		sqlStore, err := sqlitestore.Open(ctx, appCfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite store init: %w", err)
		}
		defer func() { _ = sqlStore.Close() }()
		sqlLedger := sqlStore.Ledger()
		store, ledger, compacter = sqlStore, sqlLedger, sqlLedger
		L.Info(ctx, "using sqlite store", "path", appCfg.SQLitePath)
	default:
		memLedger := dedup.NewMemory(appCfg.DedupMaxKeys, appCfg.DedupRetention())
		store, ledger, compacter = memstore.New(), memLedger, memLedger
		L.Info(ctx, "using in-memory store (no persistent store configured)")
	}

	// Advisory templates: built-in set, optionally overridden from YAML
	templateSet := advisory.DefaultSet()
	if appCfg.TemplatesPath != "" {
		templateSet, err = advisory.LoadTemplates(appCfg.TemplatesPath)
		if err != nil {
			return fmt.Errorf("advisory templates: %w", err)
		}
		L.Info(ctx, "loaded advisory templates", "path", appCfg.TemplatesPath, "count", len(templateSet.Templates))
	}
	enricher := enrich.New(nil, nil, advisory.NewGenerator(templateSet))
	if err := store.SeedTemplates(ctx, enricher.Templates()); err != nil {
		return fmt.Errorf("seed advisory templates: %w", err)
	}

	// Event fan-out: live viewers, Slack for urgent incidents, Kafka mirror
	broker := events.NewBroker(appCfg.ReplaySize, appCfg.ViewerBuffer, L, events.NewMetrics(m.Registry()).Hooks())
	emitters := incident.Emitters{broker}

	var notifier *slack.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL, appCfg.SlackMinPriority, L)
		emitters = append(emitters, notifier)
		L.Info(ctx, "notifier enabled", "type", "slack", "min_priority", appCfg.SlackMinPriority)
	}

	var mirror *kafkamirror.Mirror
	if appCfg.EventsTopic != "" {
		mirrorCfg := kafkamirror.Config{Brokers: appCfg.Brokers(), Topic: appCfg.EventsTopic}
		mirror = kafkamirror.New(kafkamirror.NewWriter(&mirrorCfg), &mirrorCfg, L)
		emitters = append(emitters, mirror)
		L.Info(ctx, "notifier enabled", "type", "kafka", "topic", appCfg.EventsTopic)
	}

	// Initialize the incident service on the shared Prometheus registry.
	incidentSvc := incident.NewService(store, enricher, emitters, L, incident.NewMetrics(m.Registry()).Hooks())
	incidentSvc.SetTimezone(appCfg.Location())

	// Feed ingestion
	var (
		scheduler   *ingest.Scheduler
		kafkaSource *feed.KafkaSource
	)
	src, err := newFeedSource(ctx, &appCfg, L)
	if err != nil {
		return fmt.Errorf("feed source: %w", err)
	}
	if ks, ok := src.(*feed.KafkaSource); ok {
		kafkaSource = ks
	}
	if src != nil {
		pipeline := ingest.New(src, ledger, enricher, incidentSvc, L,
			ingest.NewMetrics(m.Registry()).Hooks(), ingest.Config{Stagger: appCfg.FeedStagger()})
		scheduler = ingest.NewScheduler(routedRunner{pipeline, "ingest"}, appCfg.FeedInterval(), L)
		scheduler.Start(ctx)
		defer func() { _ = scheduler.Stop(context.Background()) }()
		L.Info(ctx, "feed ingestion started", "source", src.Name(), "interval", appCfg.FeedInterval().String())
	}

	go dedup.RunCompactor(postgres.WithRoute(ctx, "dedup-compaction"), compacter,
		appCfg.DedupCompaction(), appCfg.DedupRetention(), L)

	// Manual runs share the scheduler but are rate limited
	var manualLimiter *rate.Limiter
	if appCfg.ManualRunsPerMinute > 0 {
		manualLimiter = rate.NewLimiter(rate.Limit(appCfg.ManualRunsPerMinute/60), 1)
	}
	var feedTrigger incidentapi.FeedTrigger
	if scheduler != nil {
		feedTrigger = scheduler
	}

	// setup toggle for server shutdown. this is used to fail readiness checks
	// during shutdown to drain connections from load balancer before killing the process.
	var shutdownGate health.ShutdownGate

	// setup readiness checks, currently just the shutdown gate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// start admin/ops listener. sg restricts inbound to internal monitoring infrastructure.
	// we reject connections from public ips and requests with x-forwarded set in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic here
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// setup main api chi router and middleware stack
	r := chi.NewRouter()

	// Annotate logger (and tracer if trace is recording) with http.route from chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// Stash HTTP method in context for DB query metrics labelling.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(postgres.WithHTTPMethod(req.Context(), req.Method)))
		})
	})

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Limit request body size, this is a wrapper around http.MaxBytesHandler which returns 413 if limit is exceeded
	r.Use(httpmw.MaxBody(1024 * 64)) // 64KB to start with may adjust after i see real traffic

	// add health check endpoints to main listener
	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	// register api routes
	incidentHTTP := incidentapi.New(L, incidentSvc, feedTrigger, manualLimiter)
	r.Group(func(r chi.Router) {
		// Compress text responses (we are JSON only for now)
		r.Use(middleware.Compress(5, "application/json"))
		incidentHTTP.RegisterRoutes(r)
	})

	// event stream stays outside Compress, the compressor buffers writes
	// and would hold back every event until the stream ends
	r.Get("/api/events", events.Handler(broker, appCfg.Heartbeat()))

	// middleware stack for main listener, order matters these are wrappers, outermost sees raw request
	// first and is last to see response, innermost is last to see request and first to see response but
	// has access to the full rich context from outer middleware and handlers
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, chi route, etc)
	h = httpmw.WithLogger(L)(h)

	// add trace-id and span-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// otel instrumentation for automatic spans and trace context propagation
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// dont trace health/readiness checks
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute will rename the span later to the final route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	// Metrics middleware for prometheus instrumentation
	h = m.Middleware(h)

	// Client IP resolution and spoofing protection middleware, outer so downstream middleware
	// and handlers can use the resolved client ip from context for consistency and security
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: httpmwCfg.TrustedProxyHops,
	})(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h) // request ID

	// Recovery middleware to recover and log panics and serve 500 response.
	// Outer to catch panics from any downstream middleware or handlers
	h = httpmw.Recover(L, nil)(h)

	// Security headers outermost to ensure they are served on every response
	h = httpmw.SecurityHeaders(h)

	// Configure http server options from config
	apiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	// Start api HTTP server with middleware and handlers
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		err := apiHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Wait for ctrl+c / sigterm
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// Wait for in-flight requests to finish and for load balancer
	// to detect unhealthy and stop sending new requests.
	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// Shutdown components with per-component budget sliced from total.
	// stopProf is synchronous and needs no context, so it's excluded.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	// Ingestion stops first so no new incidents are created, then the
	// broker ends open event streams so the api server can drain.
	var stopFns []stopFn
	if scheduler != nil {
		stopFns = append(stopFns, stopFn{"feed scheduler", scheduler.Stop})
	}
	stopFns = append(stopFns,
		stopFn{"event broker", func(context.Context) error { broker.Close(); return nil }},
		stopFn{"api http server", apiHTTPStop},
	)
	if notifier != nil {
		stopFns = append(stopFns, stopFn{"slack notifier", notifier.Wait})
	}
	if mirror != nil {
		stopFns = append(stopFns, stopFn{"kafka event mirror", mirror.Close})
	}
	if kafkaSource != nil {
		stopFns = append(stopFns, stopFn{"kafka feed", func(context.Context) error { return kafkaSource.Close() }})
	}
	stopFns = append(stopFns, stopFn{"ops http server", opsHTTPStop})
	if shutdownOtelx != nil {
		stopFns = append(stopFns, stopFn{"otel", shutdownOtelx})
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// routedRunner labels the DB queries of background runs with the job name
// and run ID, since they have no chi route to take the label from.
type routedRunner struct {
	runner ingest.Runner
	route  string
}

func (r routedRunner) Run(ctx context.Context, runID string) (*ingest.RunReport, error) {
	return r.runner.Run(postgres.WithRun(postgres.WithRoute(ctx, r.route), runID), runID)
}

// newFeedSource builds the configured feed source, or returns nil when
// ingestion is disabled.
func newFeedSource(ctx context.Context, c *rc.Config, L log.Logger) (feed.Source, error) {
	loc := c.Location()
	switch c.FeedSource {
	case rc.FeedFile:
		return feed.NewFileSource(c.FeedPath, loc), nil
	case rc.FeedS3:
		var opts []func(*awsconfig.LoadOptions) error
		if c.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(c.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if c.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(c.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		return feed.NewS3Source(client, c.S3Bucket, c.S3Key, loc), nil
	case rc.FeedKafka:
		kcfg := feed.KafkaConfig{
			Brokers: c.Brokers(),
			Topic:   c.KafkaTopic,
			GroupID: c.KafkaGroupID,
		}
		return feed.NewKafkaSource(feed.NewKafkaReader(&kcfg), &kcfg, loc, L), nil
	default:
		return nil, nil
	}
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
