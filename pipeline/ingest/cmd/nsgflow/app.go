package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/checkpoint"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	storeconfig "github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/format"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/audit"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/service"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/sinks"
)

// app owns the process-lifetime clients of one command
type app struct {
	cfg     *config.Config
	storage *storeconfig.Config
	deps    service.Dependencies

	closers []func()
}

// loadConfig reads --config, or the environment when no file is given
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfigFromFile(configPath)
	} else {
		cfg, err = config.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down gracefully")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// appOptions selects which clients a command needs
type appOptions struct {
	producer bool
	output   bool
}

// newApp loads configuration and builds the clients of a command
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

	rt := &app{cfg: cfg}
	if err := rt.init(ctx, opts); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *app) init(ctx context.Context, opts appOptions) error {
	cfg := rt.cfg

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	rt.onClose(func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	})

	storage, err := storeconfig.LoadConfig(cfg.StorageConfig)
	if err != nil {
		return faults.Configuration("nsgflow.init", "failed to load storage accounts: %w", err)
	}
	if err := checkStorageAccounts(cfg, storage); err != nil {
		return err
	}
	rt.storage = storage
	rt.deps.Sources = ingestion.NewAzureSourceFactory(storage)
	rt.deps.Metrics = observability.NewMetrics()

	store, err := openCheckpointStore(ctx, cfg.State, storage)
	if err != nil {
		return err
	}
	rt.deps.Checkpoints = store
	rt.onClose(func() { _ = store.Close() })

	if cfg.Audit.Enabled() {
		auditor, err := openAuditor(ctx, cfg.Audit, storage)
		if err != nil {
			return err
		}
		rt.deps.Auditor = auditor
	}

	if opts.producer {
		producer, err := ingestion.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		rt.deps.Producer = producer
		rt.onClose(func() {
			log.Info().Msg("Closing Kafka producer")
			producer.Flush(cfg.Kafka.Producer.FlushTimeoutMs)
			producer.Close()
		})
	}

	if opts.output {
		if err := cfg.ValidateOutput(); err != nil {
			return err
		}
		output, err := sinks.NewOutput(cfg.Output, format.Options{})
		if err != nil {
			return err
		}
		rt.deps.Output = output
		rt.onClose(func() { _ = output.Close() })
	}

	return nil
}

func (rt *app) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// Close releases clients in reverse order of creation
func (rt *app) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// serveMetrics exposes /metrics in the background when a listen address is set
func (rt *app) serveMetrics(ctx context.Context) {
	addr := rt.cfg.Metrics.ListenAddress
	if addr == "" {
		return
	}
	go func() {
		if err := service.Serve(ctx, addr, service.NewAPIHandler(rt.deps.Metrics, nil)); err != nil {
			log.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
}

// checkStorageAccounts fails before any data is read when the registry is
// malformed or lacks an account the configuration refers to
func checkStorageAccounts(cfg *config.Config, storage *storeconfig.Config) error {
	if valid, issues := storage.ValidateConfig(); !valid {
		return faults.Configuration("nsgflow.init", "invalid storage accounts: %s", strings.Join(issues, "; "))
	}

	type accountRef struct{ role, account string }
	refs := []accountRef{{"source", cfg.Source.Account}}
	if cfg.State.CheckpointBackend == config.CheckpointTable {
		refs = append(refs, accountRef{"state", cfg.State.Account})
	}
	if cfg.Audit.Enabled() {
		refs = append(refs, accountRef{"audit", cfg.Audit.Account})
	}

	for _, ref := range refs {
		safe, err := storage.GetStorageAccountSafe(ref.account)
		if err != nil {
			return faults.Configuration("nsgflow.init", "%s account: %w (configured: %s)",
				ref.role, err, strings.Join(storage.ListAccounts(), ", "))
		}
		log.Info().
			Str("role", ref.role).
			Str("account", ref.account).
			Str("account_name", safe.AccountName).
			Str("access_key", safe.AccessKey).
			Str("connection_string", safe.ConnectionString).
			Msg("Storage account resolved")
	}
	return nil
}

// openCheckpointStore opens the configured checkpoint backend
func openCheckpointStore(ctx context.Context, cfg config.StateConfig, storage *storeconfig.Config) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case config.CheckpointBolt:
		return checkpoint.NewBoltStore(cfg.BoltPath)
	case config.CheckpointMemory:
		log.Warn().Msg("Using in-memory checkpoints, progress is lost on exit")
		return checkpoint.NewMemoryStore(), nil
	case config.CheckpointTable, "":
		if storage == nil {
			return nil, fmt.Errorf("table checkpoints need the storage account registry")
		}
		account, err := storage.GetStorageAccount(cfg.Account)
		if err != nil {
			return nil, fmt.Errorf("checkpoint account: %w", err)
		}
		return checkpoint.NewTableStore(ctx, account, cfg.CheckpointTable)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}

// openAuditor connects the audit container of the audit account
func openAuditor(ctx context.Context, cfg config.AuditConfig, storage *storeconfig.Config) (*audit.Auditor, error) {
	account, err := storage.GetStorageAccount(cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("audit account: %w", err)
	}
	client, err := ingestion.NewAzureClient(account)
	if err != nil {
		return nil, err
	}
	uploader := audit.NewBlobUploader(client)
	if err := uploader.EnsureContainer(ctx, cfg.Container); err != nil {
		return nil, err
	}
	log.Info().
		Str("container", cfg.Container).
		Bool("incoming", cfg.LogIncomingJSON).
		Bool("outgoing", cfg.LogOutgoing).
		Bool("error_records", cfg.LogErrorRecords).
		Msg("Audit mirroring enabled")
	return audit.New(uploader, cfg), nil
}
