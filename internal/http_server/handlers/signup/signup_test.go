package signup_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medicare_service/internal/auth"
	"medicare_service/internal/http_server/handlers/signup"
	"medicare_service/internal/models"
)

type fakeRegistrar struct {
	err     error
	gotSpecialization string
	called  bool
}

func (f *fakeRegistrar) RegisterAccount(_ context.Context, name, email, _ string, role models.Role, specialization string) (models.Account, error) {
	f.called = true
	f.gotSpecialization = specialization
	if f.err != nil {
		return models.Account{}, f.err
	}
	return models.Account{ID: 1, Name: name, Email: email, Role: role}, nil
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name     string
		role     models.Role
		body     string
		err      error
		wantCode int
	}{
		{name: "patient", role: models.RolePatient, body: `{"name":"Al","email":"a@x.com","password":"p"}`, wantCode: http.StatusCreated},
		{name: "doctor", role: models.RoleDoctor, body: `{"name":"Bo","email":"b@x.com","password":"p","specialization":"ENT"}`, wantCode: http.StatusCreated},
		{name: "doctor without specialization", role: models.RoleDoctor, body: `{"name":"Bo","email":"b@x.com","password":"p"}`, wantCode: http.StatusBadRequest},
		{name: "missing name", role: models.RolePatient, body: `{"email":"a@x.com","password":"p"}`, wantCode: http.StatusBadRequest},
		{name: "bad email", role: models.RolePatient, body: `{"name":"Al","email":"ax.com","password":"p"}`, wantCode: http.StatusBadRequest},
		{
			name:     "duplicate",
			role:     models.RolePatient,
			body:     `{"name":"Al","email":"a@x.com","password":"p"}`,
			err:      fmt.Errorf("auth.RegisterAccount: %w", auth.ErrAccountExists),
			wantCode: http.StatusConflict,
		},
		{name: "storage failure", role: models.RolePatient, body: `{"name":"Al","email":"a@x.com","password":"p"}`, err: fmt.Errorf("db"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRegistrar{err: tt.err}
			h := signup.New(slog.New(slog.NewTextHandler(io.Discard, nil)), f, tt.role)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(tt.body)))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantCode == http.StatusBadRequest && f.called {
				t.Error("invalid request reached the registrar")
			}
			if tt.wantCode == http.StatusCreated && !strings.Contains(rr.Body.String(), `"account_id":1`) {
				t.Errorf("missing account id: %s", rr.Body.String())
			}
			if tt.name == "doctor" && f.gotSpecialization != "ENT" {
				t.Errorf("specialization not passed through, got %q", f.gotSpecialization)
			}
		})
	}
}
