package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"medicare_service/internal/auth"
	"medicare_service/internal/lib/jwt"
	"medicare_service/internal/models"
	"medicare_service/internal/otp"
	"medicare_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret"

// fakeAccounts is a map-backed AccountSaver/AccountProvider.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[models.Role]map[string]models.Account
	nextID   int64
	saveErr  error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: map[models.Role]map[string]models.Account{
			models.RolePatient: {},
			models.RoleDoctor:  {},
		},
	}
}

func (f *fakeAccounts) SaveAccount(_ context.Context, acc models.Account) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return 0, f.saveErr
	}
	if _, ok := f.accounts[acc.Role][acc.Email]; ok {
		return 0, storage.ErrAccountExists
	}

	f.nextID++
	acc.ID = f.nextID
	f.accounts[acc.Role][acc.Email] = acc

	return acc.ID, nil
}

func (f *fakeAccounts) Account(_ context.Context, role models.Role, email string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, ok := f.accounts[role][email]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeAccounts) AccountByID(_ context.Context, role models.Role, id int64) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, acc := range f.accounts[role] {
		if acc.ID == id {
			return acc, nil
		}
	}
	return models.Account{}, storage.ErrAccountNotFound
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (p *fakePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

var codeRe = regexp.MustCompile(`\b\d{6}\b`)

func (p *fakePublisher) lastCode(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sent) == 0 {
		t.Fatal("no message sent")
	}
	code := codeRe.FindString(p.sent[len(p.sent)-1].Body)
	if code == "" {
		t.Fatalf("no code in message body %q", p.sent[len(p.sent)-1].Body)
	}
	return code
}

type env struct {
	auth      *auth.Auth
	accounts  *fakeAccounts
	codes     *otp.MemoryStore
	publisher *fakePublisher
}

func newEnv() *env {
	e := &env{
		accounts:  newFakeAccounts(),
		codes:     otp.NewMemoryStore(5),
		publisher: &fakePublisher{},
	}
	e.auth = auth.New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		e.accounts,
		e.accounts,
		e.codes,
		e.publisher,
		auth.Config{
			TokenSecret:  secret,
			TokenTTL:     24 * time.Hour,
			OTPTTL:       5 * time.Minute,
			PasswordCost: bcrypt.MinCost,
		},
	)
	return e
}

func TestRegisterAccount(t *testing.T) {
	tests := []struct {
		name    string
		role    models.Role
		setup   func(*env)
		wantErr error
	}{
		{name: "patient", role: models.RolePatient},
		{name: "doctor", role: models.RoleDoctor},
		{
			name: "duplicate email same role",
			role: models.RolePatient,
			setup: func(e *env) {
				_, _ = e.auth.RegisterAccount(context.Background(), "First", "a@x.com", "secret123", models.RolePatient, "")
			},
			wantErr: auth.ErrAccountExists,
		},
		{
			name: "same email other role",
			role: models.RoleDoctor,
			setup: func(e *env) {
				_, _ = e.auth.RegisterAccount(context.Background(), "First", "a@x.com", "secret123", models.RolePatient, "")
			},
		},
		{name: "unknown role", role: "admin", wantErr: auth.ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			if tt.setup != nil {
				tt.setup(e)
			}

			acc, err := e.auth.RegisterAccount(context.Background(), "Alice", "a@x.com", "secret123", tt.role, "cardiology")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("register: %v", err)
			}
			if acc.ID == 0 {
				t.Error("expected account id")
			}

			stored, _ := e.accounts.Account(context.Background(), tt.role, "a@x.com")
			if string(stored.PassHash) == "secret123" {
				t.Fatal("raw password stored")
			}
			if bcrypt.CompareHashAndPassword(stored.PassHash, []byte("secret123")) != nil {
				t.Fatal("stored digest does not match password")
			}
			if tt.role == models.RolePatient && stored.Specialization != "" {
				t.Error("patient must not carry a specialization")
			}
			if tt.role == models.RoleDoctor && stored.Specialization != "cardiology" {
				t.Errorf("expected specialization, got %q", stored.Specialization)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, _ = e.auth.RegisterAccount(ctx, "Alice", "a@x.com", "secret123", models.RolePatient, "")

	if _, err := e.auth.Authenticate(ctx, "a@x.com", "secret123", models.RolePatient); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}

	_, err := e.auth.Authenticate(ctx, "a@x.com", "wrong", models.RolePatient)
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = e.auth.Authenticate(ctx, "nobody@x.com", "secret123", models.RolePatient)
	if !errors.Is(err, auth.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	_, err = e.auth.Authenticate(ctx, "a@x.com", "secret123", models.RoleDoctor)
	if !errors.Is(err, auth.ErrAccountNotFound) {
		t.Fatalf("patient must not authenticate as doctor, got %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	acc, _ := e.auth.RegisterAccount(ctx, "Dr. Bob", "bob@x.com", "secret123", models.RoleDoctor, "ENT")

	if err := e.auth.SendOTP(ctx, "bob@x.com", "secret123", models.RoleDoctor); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if got := e.publisher.sent[0].To; got != "bob@x.com" {
		t.Errorf("otp sent to %q", got)
	}

	code := e.publisher.lastCode(t)

	token, got, err := e.auth.VerifyOTP(ctx, "bob@x.com", code, models.RoleDoctor)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if got.ID != acc.ID {
		t.Errorf("expected account %d, got %d", acc.ID, got.ID)
	}

	claims, err := jwt.ParseToken(token, secret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != acc.ID || claims.Role != models.RoleDoctor {
		t.Errorf("unexpected claims %+v", claims)
	}

	_, _, err = e.auth.VerifyOTP(ctx, "bob@x.com", code, models.RoleDoctor)
	if !errors.Is(err, auth.ErrInvalidOTP) {
		t.Fatalf("code reused, got %v", err)
	}
}

func TestSendOTPHidesUnknownAccount(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, _ = e.auth.RegisterAccount(ctx, "Alice", "a@x.com", "secret123", models.RolePatient, "")

	errUnknown := e.auth.SendOTP(ctx, "nobody@x.com", "secret123", models.RolePatient)
	errWrong := e.auth.SendOTP(ctx, "a@x.com", "wrong", models.RolePatient)

	if !errors.Is(errUnknown, auth.ErrInvalidCredentials) || !errors.Is(errWrong, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", errUnknown, errWrong)
	}
	if len(e.publisher.sent) != 0 {
		t.Fatal("no otp may be sent without a password check")
	}
	if e.codes.Len() != 0 {
		t.Fatal("no challenge may be stored without a password check")
	}
}

func TestSendOTPDeliveryFailureLeavesNoChallenge(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, _ = e.auth.RegisterAccount(ctx, "Alice", "a@x.com", "secret123", models.RolePatient, "")

	e.publisher.err = errors.New("smtp down")

	err := e.auth.SendOTP(ctx, "a@x.com", "secret123", models.RolePatient)
	if !errors.Is(err, auth.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if e.codes.Len() != 0 {
		t.Fatal("undelivered challenge left in store")
	}
}

func TestVerifyOTPRoleAndEmailScoped(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, _ = e.auth.RegisterAccount(ctx, "Alice", "a@x.com", "secret123", models.RolePatient, "")
	_, _ = e.auth.RegisterAccount(ctx, "Alice", "a@x.com", "secret123", models.RoleDoctor, "GP")

	_ = e.auth.SendOTP(ctx, "a@x.com", "secret123", models.RolePatient)
	code := e.publisher.lastCode(t)

	if _, _, err := e.auth.VerifyOTP(ctx, "a@x.com", code, models.RoleDoctor); !errors.Is(err, auth.ErrInvalidOTP) {
		t.Fatalf("patient code accepted for doctor login: %v", err)
	}
	if _, _, err := e.auth.VerifyOTP(ctx, "b@x.com", code, models.RolePatient); !errors.Is(err, auth.ErrInvalidOTP) {
		t.Fatalf("code accepted for another email: %v", err)
	}
	if _, _, err := e.auth.VerifyOTP(ctx, "a@x.com", code, models.RolePatient); err != nil {
		t.Fatalf("valid code rejected after failed attempts: %v", err)
	}
}

func TestVerifyOTPWithoutChallenge(t *testing.T) {
	e := newEnv()

	_, _, err := e.auth.VerifyOTP(context.Background(), "a@x.com", "123456", models.RolePatient)
	if !errors.Is(err, auth.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
}
