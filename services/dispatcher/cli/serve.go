package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archers7727/rokey5/internal/actuation"
	"github.com/archers7727/rokey5/internal/feed"
	"github.com/archers7727/rokey5/internal/handlers"
	"github.com/archers7727/rokey5/internal/kafka"
	"github.com/archers7727/rokey5/internal/postgres"
	redisstore "github.com/archers7727/rokey5/internal/redis"
	"github.com/archers7727/rokey5/internal/version"
	"github.com/archers7727/rokey5/pkg/telemetry"
	"github.com/archers7727/rokey5/services/dispatcher"
	"github.com/archers7727/rokey5/services/dispatcher/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher",
	Long: `Subscribe to the command feed and execute every pending command.

The feed is either PostgreSQL LISTEN/NOTIFY on ros2_commands (--feed postgres,
requires "migrate up") or a Kafka CDC topic (--feed kafka). Runs until SIGINT
or SIGTERM, then waits up to --shutdown-grace for running commands.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("feed", config.FeedPostgres, "change feed: postgres | kafka")
	f.String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	f.String("feed-topic", feed.DefaultTopic, "Kafka CDC topic (--feed kafka)")
	f.String("feed-group", "parking-dispatcher", "Kafka consumer group (--feed kafka)")
	f.String("actuation", config.ActuationKafka, "actuation sink: kafka | log")
	f.String("redis-addr", "", "Redis address for the status mirror (empty disables it)")
	f.Int("max-concurrency", 16, "max commands executing at once")
	f.Duration("handler-timeout", 2*time.Minute, "handler deadline on top of the handler's own hold time (0 = none)")
	f.Duration("shutdown-grace", 30*time.Second, "how long shutdown waits for running commands")
	f.Bool("gate-lock", true, "serialize commands that target the same gate")
	f.Duration("guide-settle", handlers.DefaultGuideSettle, "parking guide settle time")
	f.String("maintenance-schedule", "@every 1m", "cron spec for replay/reap sweeps (empty disables)")
	f.Duration("replay-grace", 30*time.Second, "age before a pending command is replayed")
	f.Duration("reap-after", 10*time.Minute, "age before an unowned processing command is failed")
	f.String("metrics-addr", ":9094", "ops server address (/metrics, /healthz, /readyz, /v1)")
	f.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	for key, flag := range map[string]string{
		"feed":                 "feed",
		"kafka_brokers":        "kafka-brokers",
		"feed_topic":           "feed-topic",
		"feed_group":           "feed-group",
		"actuation":            "actuation",
		"redis_addr":           "redis-addr",
		"max_concurrency":      "max-concurrency",
		"handler_timeout":      "handler-timeout",
		"shutdown_grace":       "shutdown-grace",
		"gate_lock":            "gate-lock",
		"guide_settle":         "guide-settle",
		"maintenance_schedule": "maintenance-schedule",
		"replay_grace":         "replay-grace",
		"reap_after":           "reap-after",
		"metrics_addr":         "metrics-addr",
		"otel_endpoint":        "otel-endpoint",
	} {
		bindFlag(key, f, flag)
	}
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, version.Version, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(connectCtx, cfg.PostgresDSN)
	cancelConnect()
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	publisher, closePublisher := buildPublisher(cfg, logger)
	defer closePublisher()

	opts := []dispatcher.Option{
		dispatcher.WithLister(repo),
		dispatcher.WithHandlerTimeout(cfg.HandlerTimeout),
		dispatcher.WithMaxConcurrency(cfg.MaxConcurrency),
		dispatcher.WithLogger(logger),
	}
	var mirrorReader dispatcher.MirrorReader
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		mirror := redisstore.NewStatusMirror(redisClient, redisstore.DefaultTTL)
		opts = append(opts, dispatcher.WithMirror(mirror))
		mirrorReader = mirror
		logger.Info("status mirror enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	registry := handlers.NewDefaultRegistry(handlers.Options{
		Publisher:   publisher,
		GateLock:    cfg.GateLock,
		GuideSettle: cfg.GuideSettle,
		Logger:      logger,
	})
	d := dispatcher.NewDispatcher(repo, registry, opts...)

	api := dispatcher.NewOpsAPI(d, repo, mirrorReader, logger)
	ready := func(ctx context.Context) error { return pool.Ping(ctx) }
	telemetry.StartOpsServer(ctx, cfg.MetricsAddr, telemetry.NewOpsRouter(logger, ready, api.Mount), logger)

	src := buildSource(cfg, pool, repo, logger)
	defer func() { _ = src.Close() }()

	stopMaintenance := func() {}
	if cfg.MaintenanceSchedule != "" {
		stopMaintenance, err = d.StartMaintenance(ctx, dispatcher.MaintenanceConfig{
			Schedule:    cfg.MaintenanceSchedule,
			ReplayGrace: cfg.ReplayGrace,
			ReapAfter:   cfg.ReapAfter,
		})
		if err != nil {
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case <-quit:
			logger.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("dispatcher starting",
		slog.String("feed", cfg.Feed),
		slog.String("actuation", cfg.Actuation),
		slog.Any("command_types", registry.Types()),
	)
	runErr := d.Run(ctx, src)
	if runErr != nil {
		logger.Error("feed stopped", slog.String("error", runErr.Error()))
		cancel()
	}

	stopMaintenance()

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelGrace()
	if err := d.Shutdown(graceCtx); err != nil {
		logger.Warn("shutdown grace expired", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return fmt.Errorf("dispatcher: %w", runErr)
	}
	logger.Info("stopped")
	return nil
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (actuation.Publisher, func()) {
	if cfg.Actuation == config.ActuationLog {
		return actuation.NewLogPublisher(logger), func() {}
	}
	producer := kafka.NewProducer(cfg.Brokers())
	return actuation.NewKafkaPublisher(producer), func() { _ = producer.Close() }
}

func buildSource(cfg config.Config, pool *pgxpool.Pool, repo *postgres.CommandRepository, logger *slog.Logger) feed.Source {
	if cfg.Feed == config.FeedKafka {
		consumer := kafka.NewConsumer(cfg.Brokers(), cfg.FeedTopic, cfg.FeedGroup, logger)
		return feed.NewKafkaSource(consumer, logger)
	}
	return postgres.NewListener(pool, repo, logger)
}
