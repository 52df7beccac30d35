package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medicare_service/internal/lib/jwt"
	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/models"
	"medicare_service/internal/otp"
	"medicare_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrDeliveryFailed     = errors.New("otp delivery failed")
	ErrInvalidRole        = errors.New("invalid role")
)

type Auth struct {
	log         *slog.Logger
	accSaver    AccountSaver
	accProvider AccountProvider
	codes       otp.Store
	publisher   Publisher
	cfg         Config
}

type AccountSaver interface {
	SaveAccount(ctx context.Context, acc models.Account) (int64, error)
}

type AccountProvider interface {
	Account(ctx context.Context, role models.Role, email string) (models.Account, error)
	AccountByID(ctx context.Context, role models.Role, id int64) (models.Account, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type Config struct {
	TokenSecret string
	TokenTTL    time.Duration
	OTPTTL      time.Duration
	// PasswordCost is the bcrypt cost, bcrypt.DefaultCost when zero.
	PasswordCost int
}

func New(
	log *slog.Logger,
	accSaver AccountSaver,
	accProvider AccountProvider,
	codes otp.Store,
	publisher Publisher,
	cfg Config,
) *Auth {
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}

	return &Auth{
		log:         log,
		accSaver:    accSaver,
		accProvider: accProvider,
		codes:       codes,
		publisher:   publisher,
		cfg:         cfg,
	}
}

// * RegisterAccount сохраняет пациента или врача с bcrypt-хешем пароля
func (a *Auth) RegisterAccount(
	ctx context.Context,
	name, email, password string,
	role models.Role,
	specialization string,
) (models.Account, error) {
	const op = "auth.RegisterAccount"

	log := a.log.With(
		slog.String("op", op),
		slog.String("role", string(role)),
	)

	if !role.Valid() {
		return models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	log.Info("Registering new account")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), a.cfg.PasswordCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	acc := models.Account{
		Role:     role,
		Name:     name,
		Email:    email,
		PassHash: passHash,
	}
	if role == models.RoleDoctor {
		acc.Specialization = specialization
	}

	id, err := a.accSaver.SaveAccount(ctx, acc)
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			log.Warn("Account already exists")

			return models.Account{}, fmt.Errorf("%s: %w", op, ErrAccountExists)
		}

		log.Error("Failed to save account", sl.Err(err))

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	acc.ID = id

	log.Info("Account registered", slog.Int64("id", id))

	return acc, nil
}

// * Authenticate проверяет пароль по хешу
func (a *Auth) Authenticate(
	ctx context.Context,
	email, password string,
	role models.Role,
) (models.Account, error) {
	const op = "auth.Authenticate"

	log := a.log.With(
		slog.String("op", op),
		slog.String("role", string(role)),
	)

	if !role.Valid() {
		return models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	acc, err := a.accProvider.Account(ctx, role, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return models.Account{}, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		log.Error("failed to get account", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(acc.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return acc, nil
}

// * SendOTP проверяет пароль, выпускает код и отправляет его на почту
func (a *Auth) SendOTP(
	ctx context.Context,
	email, password string,
	role models.Role,
) error {
	const op = "auth.SendOTP"

	log := a.log.With(
		slog.String("op", op),
		slog.String("role", string(role)),
	)

	acc, err := a.Authenticate(ctx, email, password, role)
	if err != nil {
		// unknown email and wrong password look the same to the caller
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := otp.Generate()
	if err != nil {
		log.Error("failed to generate otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	key := otp.Key(role, acc.Email)

	if err := a.codes.Save(ctx, key, code, a.cfg.OTPTTL); err != nil {
		log.Error("failed to store otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.publisher.SendMessage(ctx, otpMessage(acc, code, a.cfg.OTPTTL)); err != nil {
		log.Error("failed to send otp", sl.Err(err))

		if dErr := a.codes.Discard(context.WithoutCancel(ctx), key, code); dErr != nil {
			log.Error("failed to discard undelivered otp", sl.Err(dErr))
		}

		return fmt.Errorf("%s: %w: %v", op, ErrDeliveryFailed, err)
	}

	log.Info("otp sent", slog.Int64("uid", acc.ID))

	return nil
}

// * VerifyOTP погашает код и выдает токен сессии
func (a *Auth) VerifyOTP(
	ctx context.Context,
	email, code string,
	role models.Role,
) (string, models.Account, error) {
	const op = "auth.VerifyOTP"

	log := a.log.With(
		slog.String("op", op),
		slog.String("role", string(role)),
	)

	if !role.Valid() {
		return "", models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	ok, err := a.codes.Verify(ctx, otp.Key(role, email), code)
	if err != nil {
		log.Error("failed to verify otp", sl.Err(err))
		return "", models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Info("otp rejected")
		return "", models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidOTP)
	}

	acc, err := a.accProvider.Account(ctx, role, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account vanished after otp issue")
			return "", models.Account{}, fmt.Errorf("%s: %w", op, ErrInvalidOTP)
		}

		log.Error("failed to get account", sl.Err(err))
		return "", models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	token, err := jwt.NewToken(acc, a.cfg.TokenSecret, a.cfg.TokenTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", acc.ID))

	return token, acc, nil
}

func otpMessage(acc models.Account, code string, ttl time.Duration) models.Message {
	subject := "MediCare+ OTP Verification"
	if acc.Role == models.RoleDoctor {
		subject = "MediCare+ Doctor OTP"
	}

	return models.Message{
		To:      acc.Email,
		Subject: subject,
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour OTP is: %s\nIt expires in %d minutes.\n",
			acc.Name, code, int(ttl.Minutes()),
		),
	}
}
