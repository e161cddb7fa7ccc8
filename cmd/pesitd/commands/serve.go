package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nexfin/pesitd/internal/logger"
	server "github.com/nexfin/pesitd/pkg/adapter/pesit"
	"github.com/nexfin/pesitd/pkg/cluster"
	"github.com/nexfin/pesitd/pkg/config"
	"github.com/nexfin/pesitd/pkg/metrics"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/secrets/aesgcm"
	"github.com/nexfin/pesitd/pkg/store"
	storelocal "github.com/nexfin/pesitd/pkg/store/local"
	stores3 "github.com/nexfin/pesitd/pkg/store/s3"
	"github.com/nexfin/pesitd/pkg/transfer"
	trackermemory "github.com/nexfin/pesitd/pkg/transfer/memory"
	trackersqlite "github.com/nexfin/pesitd/pkg/transfer/sqlite"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pesitd server",
	Long: `Start the pesitd PeSIT Hors-SIT server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process
supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/pesitd/config.yaml.

Examples:
  # Start in background (default)
  pesitd serve

  # Start in foreground
  pesitd serve --foreground

  # Start with custom config file
  pesitd serve --config /etc/pesitd/config.yaml

  # Start with environment variable overrides
  PESIT_LOGGING_LEVEL=DEBUG pesitd serve --foreground`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	serveCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/pesitd/pesitd.pid)")
	serveCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/pesitd/pesitd.log)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("pesitd starting", "version", Version)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	recorder, metricsShutdown, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer metricsShutdown(ctx)

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	st, err := buildStore(ctx, cfg.Server)
	if err != nil {
		return err
	}

	tracker, err := buildTracker(cfg.Tracker)
	if err != nil {
		return err
	}

	oracle, err := aesgcm.New(cfg.Secrets.Passphrase, cfg.Secrets.Salt)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets oracle: %w", err)
	}

	// Standalone deployments answer "yes" forever; a clustered deployment
	// would wire cluster.LeaderSignal to its own election mechanism here.
	leader := cluster.Static(true)

	adapter := server.New(cfg.Server, cfg.Server.ID, leader, recorder, reg, st, tracker, oracle)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- adapter.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, listening", "bind", cfg.Server.Bind, "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return config.GetDefaultConfigPath()
}

// startMetrics brings up the Prometheus registry and, when enabled, an HTTP
// server exposing /metrics for scraping (spec §6 "metrics.enabled" /
// "metrics.bind"). The returned shutdown func is always safe to call.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) (metrics.Recorder, func(context.Context), error) {
	noop := func(context.Context) {}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	metrics.InitRegistry()
	recorder := metrics.NewPrometheusRecorder()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Bind, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics endpoint enabled", "bind", cfg.Bind)

	shutdown := func(ctx context.Context) {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	return recorder, shutdown, nil
}

// buildRegistry constructs the partner/virtual-file registry and loads its
// initial catalog from the static config file (spec §6 "partners" /
// "virtual_files"). Further changes at runtime go through Registry's
// Set*/Remove* methods directly; there is no config-reload watch.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New(cfg.Server.StrictPartnerCheck, cfg.Server.StrictFileCheck)

	partners := make([]registry.PartnerRecord, 0, len(cfg.Partners))
	for _, p := range cfg.Partners {
		access, err := parseAccessType(p.Access)
		if err != nil {
			return nil, fmt.Errorf("config: partner %q: %w", p.ID, err)
		}
		partners = append(partners, registry.PartnerRecord{
			ID:       p.ID,
			Password: p.Password,
			Enabled:  p.Enabled,
			Access:   access,
		})
	}
	reg.LoadPartners(partners)

	files := make([]registry.VirtualFileRecord, 0, len(cfg.VirtualFiles))
	for _, f := range cfg.VirtualFiles {
		direction, err := parseAccessType(f.Direction)
		if err != nil {
			return nil, fmt.Errorf("config: virtual file %q: %w", f.Name, err)
		}
		files = append(files, registry.VirtualFileRecord{
			Name:            f.Name,
			Direction:       direction,
			ReceiveDir:      f.ReceiveDir,
			SendDir:         f.SendDir,
			FilenamePattern: f.FilenamePattern,
			Enabled:         f.Enabled,
			AllowedPartners: f.AllowedPartners,
		})
	}
	reg.LoadVirtualFiles(files)

	logger.Info("registry loaded", "partners", len(partners), "virtual_files", len(files))
	return reg, nil
}

func parseAccessType(s string) (registry.AccessType, error) {
	switch s {
	case "", "both":
		return registry.AccessBoth, nil
	case "read":
		return registry.AccessRead, nil
	case "write":
		return registry.AccessWrite, nil
	default:
		return 0, fmt.Errorf("unknown access type %q", s)
	}
}

// buildStore selects the storage backend named by server.storage_backend.
func buildStore(ctx context.Context, cfg config.ServerConfig) (store.Store, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return storelocal.New(), nil
	case "s3":
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3.Region)}
		if cfg.S3.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, "",
			)))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = &cfg.S3.Endpoint
				o.UsePathStyle = true
			}
		})
		return stores3.New(stores3.Config{Client: client, Bucket: cfg.S3.Bucket, KeyPrefix: cfg.S3.KeyPrefix})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildTracker selects the transfer tracker backend named by tracker.backend.
func buildTracker(cfg config.TrackerConfig) (transfer.Tracker, error) {
	switch cfg.Backend {
	case "", "memory":
		return trackermemory.New(), nil
	case "sqlite":
		return trackersqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown tracker backend %q", cfg.Backend)
	}
}
