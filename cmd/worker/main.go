package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-expander/internal/expander"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/config"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/email"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/localfs"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-frame-expander/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-expander/internal/usecase"
	"github.com/fiapx/fiapx-frame-expander/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-frame-expander worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		SourceBucket:  cfg.MinIOSourceBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	uc := usecase.NewExpandFramesUseCase(usecase.ExpandFramesDeps{
		Repo:      postgres.NewJobRepository(pool),
		Storage:   storage,
		Lister:    localfs.NewLister(cfg.SourceExtension),
		Expander:  expander.New(),
		Archiver:  archive.NewZipCreator(),
		Publisher: rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue),
		DLQ:       rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		Notifier:  email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
	}, log, usecase.ExpandFramesConfig{
		TempDir:    cfg.TempDir,
		MaxRetries: cfg.MaxRetries,
	})

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExpansionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("worker started, consuming expansion requests", zap.String("queue", cfg.RabbitMQExpansionQueue))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-frame-expander worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
