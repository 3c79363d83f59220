package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/dallylee/pt-authority-hub-landing/internal/alert"
	"github.com/dallylee/pt-authority-hub-landing/internal/config"
	"github.com/dallylee/pt-authority-hub-landing/internal/consumer"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
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
	log := logger.FromZap(zl).With("service", "pt-hub-consumer")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("consumer exited", nil)
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
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

	var alerters alert.Multi
	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		discord, err := alert.NewDiscordAlerter(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			return err
		}
		alerters = append(alerters, discord)
	}
	if cfg.AlertSMSNumber != "" {
		alerters = append(alerters, alert.NewSMSAlerter(sns.NewFromConfig(awsCfg), cfg.AlertSMSNumber))
	}
	var hotLeads alert.Alerter
	if len(alerters) > 0 {
		hotLeads = alerters
	}

	// The audit insert is idempotent per offset, so it runs before the email.
	handler := consumer.Chain{
		consumer.NewAuditHandler(pool),
		consumer.NewNotificationHandler(notifier, hotLeads, log),
	}

	metrics := httptransport.NewServer(httptransport.MetricsDefaults(cfg.MetricsAddress), promhttp.Handler(), log)
	go func() {
		if err := metrics.Run(ctx); err != nil {
			log.WithError(err).Error("metrics server error", nil)
		}
	}()

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log.With("topic", topic)))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			log.Info("consumer started", map[string]interface{}{"topic": topic, "group": cfg.ConsumerGroupID})
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("consumer stopped", map[string]interface{}{"topic": topic})
			}
		}(topic, reader)
	}

	<-ctx.Done()
	log.Info("consumer shutdown requested", nil)
	wg.Wait()
	return nil
}
