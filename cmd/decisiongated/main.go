// decisiongated runs the Decision Gate tool surface as a standalone
// binary: it wires the evaluation engine, evidence registry, schema
// registry, and runpack sink behind the MCP-style tool surface and
// serves it over HTTP/SSE.
//
// Configuration loading, the CLI, and SDK code generation are external
// collaborators (§1); this binary builds a CoreConfig by hand from a
// small set of environment variables, mirroring
// cmd/control-plane/main.go's intentionally minimal loadConfig().
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	gatev1alpha1 "github.com/decisiongate/decisiongate/api/v1alpha1"
	"github.com/decisiongate/decisiongate/internal/engine"
	"github.com/decisiongate/decisiongate/internal/evidence/builtin"
	"github.com/decisiongate/decisiongate/internal/runpack"
	"github.com/decisiongate/decisiongate/internal/schemaregistry"
	"github.com/decisiongate/decisiongate/internal/telemetry"
	"github.com/decisiongate/decisiongate/internal/tickgen"
	"github.com/decisiongate/decisiongate/internal/toolsurface"

	evidencepkg "github.com/decisiongate/decisiongate/internal/evidence"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	toolsurface.Version = version

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, os.Getenv("DECISIONGATE_OTLP_ENDPOINT"), version)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open run store", zap.Error(err))
	}
	defer store.Close()

	registry := evidencepkg.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		logger.Fatal("failed to register built-in evidence providers", zap.Error(err))
	}
	registry.Freeze()

	eng := engine.New(store, registry)

	schemas, err := schemaregistry.NewStore(cfg.SchemaStorePath, cfg.Core.SchemaRegistry.MaxEntries, cfg.Core.SchemaRegistry.MaxEntryBytes)
	if err != nil {
		logger.Fatal("failed to open schema registry", zap.Error(err))
	}
	defer schemas.Close()

	sink, err := buildSink(cfg.Core.RunpackStorage)
	if err != nil {
		logger.Fatal("failed to build runpack sink", zap.Error(err))
	}

	srv, err := toolsurface.New(eng, registry, schemas, sink, cfg.Core, logger)
	if err != nil {
		logger.Fatal("failed to build tool surface", zap.Error(err))
	}

	if sched := buildTickScheduler(srv, cfg.TickSchedules, logger); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}

	httpSrv := &http.Server{
		Addr:         cfg.Core.Bind,
		Handler:      withHealthz(srv.Handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting decisiongated",
		zap.String("addr", cfg.Core.Bind),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func withHealthz(next http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/", next)
	return mux
}

// config is the binary-local bundle of everything CoreConfig doesn't
// carry (storage paths for the default SQLite backends).
type config struct {
	Core            toolsurface.CoreConfig
	StoreBackend    string
	StorePath       string
	StoreDSN        string
	StoreNamespace  string
	SchemaStorePath string
	TickSchedules   string
}

// loadConfig builds a runnable-demo configuration from environment
// variables. A production deployment's configuration loader is an
// external collaborator (§6.5); this is deliberately minimal, mirroring
// cmd/control-plane/main.go's own loadConfig.
func loadConfig() (config, error) {
	core := toolsurface.DefaultCoreConfig()

	if bind := os.Getenv("DECISIONGATE_BIND"); bind != "" {
		core.Bind = bind
	}
	if dir := os.Getenv("DECISIONGATE_RUNPACK_DIR"); dir != "" {
		core.RunpackStorage = toolsurface.RunpackStorageConfig{Backend: "fs", Key: dir}
	}

	storePath := os.Getenv("DECISIONGATE_STORE_PATH")
	if storePath == "" {
		storePath = "./decisiongate.db"
	}
	schemaStorePath := os.Getenv("DECISIONGATE_SCHEMA_STORE_PATH")
	if schemaStorePath == "" {
		schemaStorePath = "./decisiongate-schemas.db"
	}
	storeBackend := os.Getenv("DECISIONGATE_STORE_BACKEND")
	if storeBackend == "" {
		storeBackend = "sqlite"
	}
	storeNamespace := os.Getenv("DECISIONGATE_STORE_NAMESPACE")
	if storeNamespace == "" {
		storeNamespace = "default"
	}

	return config{
		Core:            core,
		StoreBackend:    storeBackend,
		StorePath:       storePath,
		StoreDSN:        os.Getenv("DECISIONGATE_STORE_DSN"),
		StoreNamespace:  storeNamespace,
		SchemaStorePath: schemaStorePath,
		TickSchedules:   os.Getenv("DECISIONGATE_TICK_SCHEDULES"),
	}, nil
}

// buildStore opens the run/spec store named by cfg.StoreBackend (§4.4.6:
// "pluggable... the interface is store-agnostic"). "sqlite" is the
// zero-config default; "postgres" and "mysql" speak to an external
// database via cfg.StoreDSN; "crd" stores run state as DecisionRun
// objects in the cluster decisiongated itself is running in, using
// whatever kubeconfig/in-cluster config controller-runtime resolves.
func buildStore(ctx context.Context, cfg config) (engine.Store, error) {
	switch cfg.StoreBackend {
	case "", "sqlite":
		return engine.NewSQLiteStore(cfg.StorePath)
	case "postgres":
		return engine.NewPGStore(ctx, cfg.StoreDSN)
	case "mysql":
		return engine.NewMySQLStore(ctx, cfg.StoreDSN)
	case "crd":
		scheme := runtime.NewScheme()
		if err := clientgoscheme.AddToScheme(scheme); err != nil {
			return nil, fmt.Errorf("decisiongated: register client-go scheme: %w", err)
		}
		if err := gatev1alpha1.AddToScheme(scheme); err != nil {
			return nil, fmt.Errorf("decisiongated: register decisiongate scheme: %w", err)
		}
		restCfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("decisiongated: load kubernetes config: %w", err)
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("decisiongated: build kubernetes client: %w", err)
		}
		return engine.NewCRDStore(c, cfg.StoreNamespace), nil
	default:
		return nil, fmt.Errorf("decisiongated: unknown store backend %q", cfg.StoreBackend)
	}
}

// buildTickScheduler parses a "run_id@cron_expr,run_id2@cron_expr2"
// list (DECISIONGATE_TICK_SCHEDULES) into a tickgen.Scheduler that fires
// Tick triggers against srv. Returns nil when raw is empty — periodic
// ticking is opt-in, most scenarios only ever advance on submit/evaluate.
func buildTickScheduler(srv *toolsurface.Server, raw string, logger *zap.Logger) *tickgen.Scheduler {
	if raw == "" {
		return nil
	}
	sched := tickgen.New(srv.Tick, 0, logger)
	for _, part := range splitList(raw, ',') {
		runID, cronExpr, ok := splitOnce(part, "@")
		if !ok || runID == "" || cronExpr == "" {
			logger.Warn("skipping malformed tick schedule entry", zap.String("entry", part))
			continue
		}
		if err := sched.Add(tickgen.Entry{RunID: runID, Schedule: cronExpr}); err != nil {
			logger.Warn("failed to schedule tick entry", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return sched
}

func splitList(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func buildSink(cfg toolsurface.RunpackStorageConfig) (runpack.Sink, error) {
	switch cfg.Backend {
	case "", "fs":
		dir := cfg.Key
		if dir == "" {
			dir = "./runpacks"
		}
		return runpack.NewFSSink(dir)
	case "oci":
		registryRef, path, found := splitOnce(cfg.Key, "|")
		if !found {
			return nil, fmt.Errorf("decisiongated: oci runpack sink key must be \"registry|path\", got %q", cfg.Key)
		}
		return runpack.NewOCISink(registryRef, path), nil
	default:
		return nil, fmt.Errorf("decisiongated: unknown runpack storage backend %q", cfg.Backend)
	}
}

func splitOnce(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}
