package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"medicare_service/internal/config"
	sl "medicare_service/internal/lib/logger"
	mailSender "medicare_service/internal/mail"
	"medicare_service/internal/models"
	"medicare_service/internal/rabbitmq"

	"golang.org/x/time/rate"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type sender interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env))

	startConsumer(ctx, cfg, log)
}

func startConsumer(ctx context.Context, cfg *config.Config, log *slog.Logger) {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		return
	}
	defer r.Close()

	m := &mailSender.Mailer{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.Mail.From,
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Mail.RatePerSecond), 1)

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := r.StartReading(ctx, 1, handleMessage(log, limiter, m)); err != nil {
			log.Error("consumer stopped", sl.Err(err))
		}
	}()

	log.Info("consumer successfully started")

	select {
	case <-ctx.Done():
		log.Info("shutting down consumer...")
		<-done
	case <-done:
		log.Info("consumer finished the work")
	}

	log.Info("service gracefully stopped")
}

// handleMessage returns nil for malformed bodies so they are acked and dropped.
func handleMessage(log *slog.Logger, limiter *rate.Limiter, m sender) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg models.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Error("failed to unmarshal message", sl.Err(err))
			return nil
		}
		if msg.To == "" {
			log.Error("message without recipient dropped")
			return nil
		}

		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		if err := m.SendMessage(ctx, msg); err != nil {
			log.Error("failed to send message", sl.Err(err))
			return err
		}

		log.Info("message sent successfully", slog.String("subject", msg.Subject))

		return nil
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
