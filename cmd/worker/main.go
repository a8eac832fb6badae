package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/config"
	"github.com/courtvision/analysis-client/internal/infra/email"
	"github.com/courtvision/analysis-client/internal/infra/ffmpeg"
	"github.com/courtvision/analysis-client/internal/infra/httpapi"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	miniostorage "github.com/courtvision/analysis-client/internal/infra/minio"
	"github.com/courtvision/analysis-client/internal/infra/postgres"
	"github.com/courtvision/analysis-client/internal/infra/rabbitmq"
	"github.com/courtvision/analysis-client/internal/infra/redis"
	"github.com/courtvision/analysis-client/internal/infra/render"
	"github.com/courtvision/analysis-client/internal/infra/tracing"
	"github.com/courtvision/analysis-client/internal/infra/websocket"
	"github.com/courtvision/analysis-client/internal/usecase"
	"github.com/courtvision/analysis-client/pkg/logger"
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

	log.Info("starting courtvision analysis worker", zap.String("api_url", cfg.APIURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, cfg.ServiceName+"-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()
	fatalOnErr(postgres.RunMigrations(ctx, pool), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		VideoBucket:   cfg.MinIOVideoBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Redis
	rdb, err := redis.Connect(ctx, cfg.RedisURL)
	fatalOnErr(err, "connect to redis")
	defer rdb.Close()

	// Analysis server
	api := httpapi.NewClient(httpapi.ClientConfig{
		BaseURL:       cfg.APIURL,
		Mode:          cfg.APIMode,
		Timeout:       cfg.HTTPTimeout,
		UploadTimeout: cfg.UploadTimeout,
	}, log.Named("httpapi"))
	dialer := websocket.NewDialer(websocket.DefaultDialerConfig(), log.Named("websocket"))

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	codec := render.NewCodec(cfg.LiveJPEGQuality, cfg.LiveMaxWidth)
	recorders := func(dir string) (port.RecordingSurface, error) {
		return render.NewRecorder(dir, cfg.LiveJPEGQuality)
	}

	uc := usecase.NewProcessAnalysisUseCase(usecase.ProcessAnalysisDeps{
		Repo:      postgres.NewRecordRepository(pool),
		Storage:   storage,
		API:       api,
		Dialer:    dialer,
		Codec:     codec,
		Recorders: recorders,
		Prober:    ffmpeg.NewProber(),
		Zipper:    ffmpeg.NewArchiveWriter(),
		Dedup:     redis.NewDeduplicator(rdb),
		Publisher: rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusKey),
		DLQ:       rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		Notifier:  email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log.Named("email")),
	}, log, usecase.ProcessAnalysisConfig{
		TempDir:    cfg.TempDir,
		MaxRetries: cfg.MaxRetries,
		DedupTTL:   cfg.DedupTTL,
		Rules:      cfg.VideoRules(),
		Poll: usecase.PollerConfig{
			Interval:    cfg.PollInterval,
			MaxDuration: cfg.PollMaxDuration,
		},
		Team:      entity.TeamAnalysisParams{JerseyColor: cfg.TeamJersey, TeamSide: cfg.TeamSide},
		StreamURL: api.RecordedStreamURL,
	})

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:               cfg.RabbitMQURL,
		Queue:             cfg.RabbitMQRequestQueue,
		Exchange:          cfg.RabbitMQExchange,
		DLQ:               cfg.RabbitMQDLQ,
		StatusQueue:       cfg.RabbitMQStatusQueue,
		RequestRoutingKey: cfg.RabbitMQRequestKey,
		StatusRoutingKey:  cfg.RabbitMQStatusKey,
		Prefetch:          cfg.RabbitMQPrefetch,
		WorkerCount:       cfg.WorkerCount,
		BaseDelayMs:       cfg.RetryBaseDelayMs,
	}, uc.Execute, log.Named("consumer"))
	fatalOnErr(err, "create consumer")
	defer consumer.Close()

	metricsSrv := metrics.StartServer(ctx, cfg.MetricsPort, nil, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("worker started, consuming analysis requests", zap.String("queue", cfg.RabbitMQRequestQueue))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info("courtvision analysis worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
