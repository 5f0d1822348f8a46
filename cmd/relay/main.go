// Command relay runs one node of the sync-relay fabric: the Stream
// Bootstrapper, the Relay Engine (subzone/zone tiers by default), and the
// Outbox Dispatcher (any tier with OUTBOX_ENABLED, the default), wired
// together the way
// apps/iam-service/cmd/api/main.go and apps/cdc-worker/cmd/worker/main.go
// wire their own components — env + Vault config, zap logging, graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/cache"
	relayconfig "github.com/arc-self/sync-relay/internal/config"
	"github.com/arc-self/sync-relay/internal/driftcheck"
	"github.com/arc-self/sync-relay/internal/health"
	"github.com/arc-self/sync-relay/internal/natsclient"
	"github.com/arc-self/sync-relay/internal/outbox"
	"github.com/arc-self/sync-relay/internal/publish"
	"github.com/arc-self/sync-relay/internal/relay"
	"github.com/arc-self/sync-relay/internal/streams"
	"github.com/arc-self/sync-relay/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	var streamSpecPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run this node's bootstrapper, relay engine and outbox dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(streamSpecPath)
		},
	}
	cmd.Flags().StringVar(&streamSpecPath, "stream-spec", "", "path to a YAML stream-spec override file (optional)")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:  "relay [command]",
		Long: "sync-relay: hierarchical store-and-forward event relay fabric over NATS JetStream",
	}
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve(streamSpecPath string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := relayconfig.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logger.With(
		zap.String("tier", string(cfg.Identity.Tier)),
		zap.String("zone", cfg.Identity.Zone),
		zap.String("subzone", cfg.Identity.Subzone),
		zap.String("node", cfg.Identity.Node),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "sync-relay", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		mp, err := telemetry.InitMeterProvider(ctx, "sync-relay", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}
	metrics, err := telemetry.NewRelayMetrics()
	if err != nil {
		logger.Warn("relay metrics registration failed, continuing without them", zap.Error(err))
	}

	vaultManager, err := relayconfig.NewSecretManager(cfg.VaultAddr, cfg.VaultToken)
	if err != nil {
		return fmt.Errorf("vault connection failed: %w", err)
	}
	brokerCreds, err := relayconfig.LoadBrokerCreds(vaultManager, cfg.SecretPath)
	if err != nil {
		logger.Warn("no broker creds in vault, connecting unauthenticated", zap.Error(err))
	}

	natsClient, err := natsclient.NewClient(natsclient.Options{
		URL:   cfg.NatsURL,
		Creds: brokerCreds.CredsFile,
		Token: brokerCreds.Token,
	}, logger)
	if err != nil {
		return fmt.Errorf("NATS connection failed: %w", err)
	}
	defer natsClient.Close()

	publisher := publish.NewJetStreamPublisher(natsClient.JS, logger)

	specFile, err := relayconfig.LoadStreamSpecFile(streamSpecPath)
	if err != nil {
		return fmt.Errorf("load stream spec file: %w", err)
	}
	var streamKeys []streams.Key
	for _, k := range cfg.Bootstrap.StreamKeys {
		streamKeys = append(streamKeys, streams.Key(k))
	}
	specs, err := relayconfig.ApplyOverrides(streams.DefaultSpecs(), specFile)
	if err != nil {
		return fmt.Errorf("apply stream spec overrides: %w", err)
	}

	bootstrapper := streams.NewBootstrapper(natsClient.JS, logger, cfg.Bootstrap.FailOnMismatch, streamKeys)
	if err := bootstrapper.Run(specs); err != nil {
		return fmt.Errorf("stream bootstrap failed: %w", err)
	}

	checker := driftcheck.NewDriftChecker(bootstrapper, specs, metrics.BootstrapDrift, logger)
	if err := checker.Start(); err != nil {
		logger.Warn("drift checker failed to start", zap.Error(err))
	} else {
		defer checker.Stop()
	}

	var relayEngine *relay.Engine
	if cfg.Relay.Enabled {
		links := relay.LinksForTier(cfg.Identity, cfg.Relay.ZoneHasSubzones)
		relayEngine = relay.NewEngine(natsClient.JS, publisher, cfg.Identity, links, relay.EngineConfig{
			BatchSize: cfg.Relay.BatchSize,
			FetchWait: cfg.Relay.FetchWait(),
		}, logger, bootstrapper.Complete(), metrics.RelayRepublished, metrics.RelayNaked)
		go relayEngine.Run(ctx)
	}

	if cfg.Outbox.Enabled {
		dsn, err := relayconfig.LoadDatabaseDSN(vaultManager, cfg.SecretPath)
		if err != nil {
			return fmt.Errorf("load database dsn: %w", err)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return fmt.Errorf("parse database dsn: %w", err)
		}
		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to database (OTel-instrumented)")

		var dedupHint func(string) bool
		if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
			defer rdb.Close()
			hint := cache.NewDedupHint(rdb, 10*time.Minute)
			dedupHint = hint.Seen(ctx)
		}

		if cfg.Outbox.UseCDC {
			cdcDispatcher := outbox.NewCDCDispatcher(outbox.CDCConfig{
				ReplicationURL: dsn,
			}, publisher, logger, metrics.OutboxDispatched)
			go func() {
				if err := cdcDispatcher.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("cdc dispatcher stopped with error", zap.Error(err))
				}
			}()
		} else {
			store := outbox.NewStore(pool)
			dispatcher := outbox.NewDispatcher(store, publisher, outbox.DispatcherConfig{
				BatchSize:    cfg.Outbox.BatchSize,
				PollInterval: cfg.Outbox.PollInterval(),
				MaxRetries:   cfg.Outbox.MaxRetries,
			}, logger, dedupHint, metrics.OutboxDispatched, metrics.OutboxFailed)
			go dispatcher.Run(ctx)
		}
	}

	healthServer := health.NewServer("sync-relay", func() bool {
		select {
		case <-bootstrapper.Complete():
			return true
		default:
			return false
		}
	}, logger)
	go healthServer.Start(cfg.HealthAddr)

	logger.Info("sync-relay node started")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", zap.Error(err))
	}
	return nil
}
