package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medicare_service/db/migrations"
	"medicare_service/internal/appointments"
	"medicare_service/internal/auth"
	"medicare_service/internal/config"
	"medicare_service/internal/http_server/handlers/appointment"
	"medicare_service/internal/http_server/handlers/doctors"
	"medicare_service/internal/http_server/handlers/health"
	sendOTP "medicare_service/internal/http_server/handlers/send_otp"
	"medicare_service/internal/http_server/handlers/signup"
	verifyOTP "medicare_service/internal/http_server/handlers/verify_otp"
	sl "medicare_service/internal/lib/logger"
	mailSender "medicare_service/internal/mail"
	rateLimit "medicare_service/internal/middleware/ratelimit"
	"medicare_service/internal/middleware/session"
	"medicare_service/internal/models"
	"medicare_service/internal/otp"
	"medicare_service/internal/rabbitmq"
	"medicare_service/internal/storage/postgres"
	"medicare_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting medicare service", slog.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	script, err := migrations.Script()
	if err != nil {
		log.Error("failed to load migrations", sl.Err(err))
		os.Exit(1)
	}
	if err := storage.Migrate(ctx, script); err != nil {
		log.Error("failed to apply migrations", sl.Err(err))
		os.Exit(1)
	}

	codes, closeCodes, err := setupOTPStore(ctx, cfg)
	if err != nil {
		log.Error("failed to init otp store", sl.Err(err))
		os.Exit(1)
	}
	defer closeCodes()

	publisher, closePublisher, err := setupPublisher(cfg)
	if err != nil {
		log.Error("failed to init mail transport", sl.Err(err))
		os.Exit(1)
	}
	defer closePublisher()

	authService := auth.New(log, storage, storage, codes, publisher, auth.Config{
		TokenSecret: cfg.Session.Secret,
		TokenTTL:    cfg.Session.TokenTTL,
		OTPTTL:      cfg.OTP.TTL,
	})

	appointmentService := appointments.New(log, storage, storage)

	router := setupRouter(log, cfg.Session.Secret, authService, appointmentService, storage)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address(),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupOTPStore(ctx context.Context, cfg *config.Config) (otp.Store, func(), error) {
	if cfg.OTP.Backend == config.OTPBackendRedis {
		store, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.OTP.MaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	store := otp.NewMemoryStore(cfg.OTP.MaxAttempts)
	go store.RunJanitor(ctx, time.Minute)

	return store, func() {}, nil
}

func setupPublisher(cfg *config.Config) (auth.Publisher, func(), error) {
	if cfg.Mail.Transport == config.MailTransportRabbitMQ {
		client, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}

	return &mailSender.Mailer{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.Mail.From,
	}, func() {}, nil
}

func setupRouter(
	log *slog.Logger,
	secret string,
	authService *auth.Auth,
	appointmentService *appointments.Service,
	doctorsProvider doctors.DoctorsProvider,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", health.New())
	r.Get("/doctors", doctors.New(log, doctorsProvider))

	r.With(rateLimit.SignUp()).Post("/signup",
		signup.New(log, authService, models.RolePatient),
	)
	r.With(rateLimit.SignUp()).Post("/doctor/signup",
		signup.New(log, authService, models.RoleDoctor),
	)

	r.With(rateLimit.SendOTP()).Post("/send-otp",
		sendOTP.New(log, authService, models.RolePatient),
	)
	r.With(rateLimit.SendOTP()).Post("/doctor/send-otp",
		sendOTP.New(log, authService, models.RoleDoctor),
	)
	r.With(rateLimit.SendOTP()).Post("/doctor-login",
		sendOTP.New(log, authService, models.RoleDoctor),
	)

	r.With(rateLimit.VerifyOTP()).Post("/verify-otp",
		verifyOTP.New(log, authService, models.RolePatient),
	)
	r.With(rateLimit.VerifyOTP()).Post("/doctor/verify-otp",
		verifyOTP.New(log, authService, models.RoleDoctor),
	)

	r.Group(func(r chi.Router) {
		r.Use(session.Authenticate(log, secret))
		r.Use(rateLimit.Appointments())

		r.With(session.RequireRole(models.RolePatient)).Post("/book-appointment",
			appointment.NewBook(log, appointmentService),
		)
		r.With(session.RequireRole(models.RolePatient)).Get("/appointments",
			appointment.NewList(log, appointmentService),
		)
		r.With(session.RequireRole(models.RoleDoctor)).Get("/doctor-appointments",
			appointment.NewList(log, appointmentService),
		)
		r.Post("/update-appointment",
			appointment.NewUpdateStatus(log, appointmentService),
		)
		r.Put("/appointments/{id}/cancel",
			appointment.NewCancel(log, appointmentService),
		)
		r.With(session.RequireRole(models.RolePatient)).Put("/appointments/{id}/reschedule",
			appointment.NewReschedule(log, appointmentService),
		)
	})

	return r
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
