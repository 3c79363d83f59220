package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dallylee/pt-authority-hub-landing/internal/api"
	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
	"github.com/dallylee/pt-authority-hub-landing/internal/cache"
	"github.com/dallylee/pt-authority-hub-landing/internal/config"
	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/outbox"
	persistence "github.com/dallylee/pt-authority-hub-landing/internal/persistence/postgres"
	"github.com/dallylee/pt-authority-hub-landing/internal/reviews"
	"github.com/dallylee/pt-authority-hub-landing/internal/signing"
	"github.com/dallylee/pt-authority-hub-landing/internal/storage"
	httptransport "github.com/dallylee/pt-authority-hub-landing/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zl := logger.NewZap(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = zl.Sync() }()
	log := logger.FromZap(zl).With("service", "pt-hub-api")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("api exited", nil)
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	notifier := notify.NewNotifier(notify.NewSESMailer(ses.NewFromConfig(awsCfg), cfg.EmailFrom), cfg.EmailTo)

	signer, err := signing.NewSigner(cfg.DownloadTokenSecret)
	if err != nil {
		return fmt.Errorf("download signer: %w", err)
	}

	var spots cache.Store
	if cfg.RedisURL != "" {
		rc, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		spots = rc
	} else {
		log.Info("REDIS_URL not set, spots override and review caching disabled", nil)
	}

	repo := persistence.NewRepository(pool)
	leads := domain.NewService(repo, notifier, log)
	links := auth.NewService(persistence.NewAuthStore(pool), notifier, cfg.AuthTokenSecret, cfg.SessionSecret, log)
	objects := storage.NewS3Store(storage.NewS3Client(awsCfg, cfg.S3Endpoint), cfg.UploadBucket)
	reviewSvc := reviews.NewService(reviews.Config{
		APIKey:   cfg.GooglePlacesAPIKey,
		PlaceID:  cfg.GooglePlaceID,
		CacheTTL: cfg.ReviewsCacheTTL,
	}, spots, nil, log)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry,
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithLogger(log),
	)
	go dispatcher.Start(ctx)

	handler := api.NewHandler(api.Config{
		WorkspaceID:        cfg.WorkspaceID,
		PublicBaseURL:      cfg.PublicBaseURL,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		UploadMaxBytes:     cfg.UploadMaxBytes,
		UploadAllowedTypes: cfg.UploadAllowedTypes,
		SpotsRemaining:     cfg.SpotsRemaining,
	}, api.Deps{
		Leads:   leads,
		Links:   links,
		Objects: objects,
		Signer:  signer,
		Mailer:  notifier,
		Spots:   spots,
		Reviews: reviewSvc,
		Log:     log,
	})
	mw := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, links, cfg.WorkspaceID)

	server := httptransport.NewServer(httptransport.APIDefaults(cfg.HTTPAddress), handler.Routes(mw), log)
	err = server.Run(ctx)
	stop()
	dispatcher.Wait()
	log.Info("api stopped", nil)
	return err
}
