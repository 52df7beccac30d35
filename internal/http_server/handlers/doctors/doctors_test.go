package doctors_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"medicare_service/internal/http_server/handlers/doctors"
	"medicare_service/internal/models"
)

type fakeProvider struct {
	list []models.Doctor
	err  error
}

func (f fakeProvider) Doctors(context.Context) ([]models.Doctor, error) {
	return f.list, f.err
}

func TestDoctors(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := doctors.New(log, fakeProvider{list: []models.Doctor{{ID: 7, Name: "Dr. Seven", Specialization: "GP"}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/doctors", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out doctors.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || len(out.Doctors) != 1 || out.Doctors[0].Specialization != "GP" {
		t.Errorf("unexpected response %+v", out)
	}

	h = doctors.New(log, fakeProvider{err: errors.New("db down")})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/doctors", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
