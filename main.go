package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fenwick-ai/inferno/internal/adapter/breaker"
	"github.com/fenwick-ai/inferno/internal/adapter/engine"
	"github.com/fenwick-ai/inferno/internal/adapter/health"
	"github.com/fenwick-ai/inferno/internal/adapter/manager"
	"github.com/fenwick-ai/inferno/internal/adapter/metrics"
	"github.com/fenwick-ai/inferno/internal/adapter/pool"
	"github.com/fenwick-ai/inferno/internal/adapter/registry"
	"github.com/fenwick-ai/inferno/internal/adapter/worker"
	"github.com/fenwick-ai/inferno/internal/config"
	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/internal/server"
	"github.com/fenwick-ai/inferno/internal/version"
	"github.com/fenwick-ai/inferno/pkg/container"
	"github.com/fenwick-ai/inferno/pkg/format"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lcfg := &logger.Config{
		Level:      cfg.Logging.Level,
		FileOutput: cfg.Logging.FileOutput,
		LogDir:     cfg.Logging.LogDir,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Theme:      cfg.Logging.Theme,
	}
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "containerised", container.IsContainerised())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	app, err := buildApplication(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to build application", "error", err)
	}

	if err := app.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	styledLogger.Info("Inferno has shut down",
		"uptime", format.Duration(time.Since(startTime)),
		"heap_alloc", format.Bytes(mem.HeapAlloc),
	)
}

// application ties together the Engine Manager, Inference Worker, Health
// Monitor and HTTP surface so main can Start/Stop them as one unit.
type application struct {
	monitor ports.HealthMonitor
	worker  ports.InferenceWorker
	server  *server.Server
	pools   map[domain.EngineIdentity]ports.ConnectionPool
	logger  *logger.StyledLogger
}

func buildApplication(cfg *config.Config, log *logger.StyledLogger) (*application, error) {
	roster := make(map[domain.EngineIdentity]*domain.EngineEndpoint, len(cfg.Engines))
	adapters := make(map[domain.EngineIdentity]ports.EngineAdapter, len(cfg.Engines))
	breakers := make(map[domain.EngineIdentity]*breaker.Breaker, len(cfg.Engines))
	breakerPorts := make(map[domain.EngineIdentity]ports.CircuitBreaker, len(cfg.Engines))
	pools := make(map[domain.EngineIdentity]ports.ConnectionPool, len(cfg.Engines))
	poolFactory := pool.NewFactory()

	for _, ec := range cfg.Engines {
		identity := domain.EngineIdentity(ec.Identity)

		endpoint, err := buildEndpoint(identity, ec)
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", ec.Identity, err)
		}
		roster[identity] = endpoint

		poolCfg := domain.PoolConfig{
			MaxConcurrent:   ec.Pool.MaxConcurrent,
			ConnectTimeout:  ec.Pool.ConnectTimeout,
			RequestTimeout:  ec.Pool.RequestTimeout,
			IdleConnTimeout: ec.Pool.KeepAliveIdle,
		}
		p := poolFactory.NewPool(identity, poolCfg)
		pools[identity] = p

		httpPool, ok := p.(*pool.Pool)
		if !ok {
			return nil, fmt.Errorf("engine %s: pool factory returned unexpected type", ec.Identity)
		}
		adapters[identity] = buildAdapter(identity, httpPool.Client())

		b := breaker.New(identity, int64(ec.Breaker.FailureThreshold), ec.Breaker.RecoveryTimeout)
		breakers[identity] = b
		breakerPorts[identity] = b
	}

	modelRegistry := registry.NewMemoryModelRegistry(log)
	for _, mc := range cfg.Models {
		preference := make([]domain.EngineIdentity, 0, len(mc.EnginePreference))
		for _, identity := range mc.EnginePreference {
			preference = append(preference, domain.EngineIdentity(identity))
		}
		caps := make([]domain.Capability, 0, len(mc.Capabilities))
		for _, c := range mc.Capabilities {
			caps = append(caps, domain.Capability(c))
		}
		desc := &domain.ModelDescriptor{
			ModelID:          mc.ID,
			EnginePreference: preference,
			Capabilities:     domain.NewCapabilitySet(caps...),
		}
		if err := modelRegistry.Register(context.Background(), desc); err != nil {
			return nil, fmt.Errorf("model %s: %w", mc.ID, err)
		}
	}

	metricsTracker := metrics.New()

	mgr := manager.New(manager.Deps{
		Registry: modelRegistry,
		Roster:   roster,
		Adapters: adapters,
		Breakers: breakerPorts,
		Pools:    pools,
		Metrics:  metricsTracker,
		Logger:   log,
	})

	monitor := health.NewMonitor(adapters, breakers, metricsTracker, health.Config{
		CheckInterval: cfg.Monitor.ProbeInterval,
		Workers:       cfg.Monitor.Workers,
		QueueSize:     cfg.Monitor.QueueSize,
	}, nil, log)
	for _, endpoint := range roster {
		monitor.RegisterEndpoint(endpoint)
	}

	jobWorker := worker.New(mgr, worker.Config{
		Concurrency:              cfg.Worker.Concurrency,
		QueueCapacityPerPriority: cfg.Worker.QueueCapacityPerPriority,
		ExpiryWindow:             cfg.Worker.ExpiryWindow,
		StaleThreshold:           cfg.Worker.StaleThreshold,
		RetentionWindow:          cfg.Worker.RetentionWindow,
	}, log)

	httpServer := server.New(cfg.Server, mgr, jobWorker, monitor, log)

	return &application{
		monitor: monitor,
		worker:  jobWorker,
		server:  httpServer,
		pools:   pools,
		logger:  log,
	}, nil
}

func buildEndpoint(identity domain.EngineIdentity, ec config.EngineConfig) (*domain.EngineEndpoint, error) {
	parsed, err := url.Parse(ec.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url %q: %w", ec.BaseURL, err)
	}

	probePath := ec.ProbePath
	healthURL := *parsed
	healthURL.Path = probePath

	caps := make([]domain.Capability, 0, len(ec.Capabilities))
	for _, c := range ec.Capabilities {
		caps = append(caps, domain.Capability(c))
	}

	return &domain.EngineEndpoint{
		Identity:             identity,
		Name:                 ec.Name,
		URL:                  parsed,
		URLString:            parsed.String(),
		HealthCheckURL:       &healthURL,
		HealthCheckURLString: healthURL.String(),
		ProbePath:            probePath,
		DeclaredCapabilities: domain.NewCapabilitySet(caps...),
		Priority:             ec.Priority,
	}, nil
}

// buildAdapter picks the native Ollama adapter for the ollama identity and
// the generic OpenAI-compatible adapter for every other engine family
// (vllm, tgi, sglang, tensorrt, deepspeed, lmdeploy all speak its wire
// format).
func buildAdapter(identity domain.EngineIdentity, client *http.Client) ports.EngineAdapter {
	if identity == domain.EngineOllama {
		return engine.NewOllamaAdapter(client)
	}
	return engine.NewOpenAICompatAdapter(identity, client)
}

func (a *application) Start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}
	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("starting inference worker: %w", err)
	}
	return a.server.Start(ctx)
}

func (a *application) Stop(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(a.server.Stop(ctx))
	record(a.worker.Stop(ctx))
	record(a.monitor.Stop(ctx))

	for identity, p := range a.pools {
		if err := p.Close(); err != nil {
			a.logger.Warn("error closing pool", "engine", identity, "error", err)
		}
	}

	return firstErr
}
