package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/models"
	"medicare_service/internal/storage"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("appointment not found")
	ErrInvalidReference = errors.New("unknown patient or doctor")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSlotTaken        = errors.New("doctor already booked at this time")
	ErrConflict         = errors.New("appointment changed concurrently")
)

// Requester is the authenticated caller, taken from the session.
type Requester struct {
	ID   int64
	Role models.Role
}

type Storage interface {
	SaveAppointment(ctx context.Context, a models.Appointment) (models.Appointment, error)
	Appointment(ctx context.Context, id int64) (models.Appointment, error)
	PatientAppointments(ctx context.Context, patientID int64) ([]models.AppointmentView, error)
	DoctorAppointments(ctx context.Context, doctorID int64) ([]models.AppointmentView, error)
	SetAppointmentStatus(ctx context.Context, id int64, expected, next models.Status) (models.Appointment, error)
	SetAppointmentTime(ctx context.Context, id int64, expected models.Status, at time.Time) (models.Appointment, error)
}

type AccountProvider interface {
	AccountByID(ctx context.Context, role models.Role, id int64) (models.Account, error)
}

type Service struct {
	log      *slog.Logger
	storage  Storage
	accounts AccountProvider
}

func New(log *slog.Logger, storage Storage, accounts AccountProvider) *Service {
	return &Service{
		log:      log,
		storage:  storage,
		accounts: accounts,
	}
}

// timeLayouts are tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: appointment time is required", ErrInvalidInput)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unparseable appointment time %q", ErrInvalidInput, raw)
}

// Book creates a Pending appointment for the requesting patient.
func (s *Service) Book(
	ctx context.Context,
	requester Requester,
	doctorID int64,
	rawTime string,
) (models.Appointment, error) {
	const op = "appointments.Book"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("patient_id", requester.ID),
		slog.Int64("doctor_id", doctorID),
	)

	if requester.Role != models.RolePatient {
		return models.Appointment{}, fmt.Errorf("%s: only patients can book: %w", op, ErrForbidden)
	}

	at, err := ParseTime(rawTime)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.resolve(ctx, models.RolePatient, requester.ID); err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.resolve(ctx, models.RoleDoctor, doctorID); err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	a, err := s.storage.SaveAppointment(ctx, models.Appointment{
		PatientID:       requester.ID,
		DoctorID:        doctorID,
		AppointmentTime: at,
		Status:          models.StatusPending,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSlotTaken):
			log.Info("slot already taken")
			return models.Appointment{}, fmt.Errorf("%s: %w", op, ErrSlotTaken)
		case errors.Is(err, storage.ErrAccountNotFound):
			return models.Appointment{}, fmt.Errorf("%s: %w", op, ErrInvalidReference)
		}

		log.Error("failed to save appointment", sl.Err(err))
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("appointment booked", slog.Int64("id", a.ID))

	return a, nil
}

func (s *Service) resolve(ctx context.Context, role models.Role, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s id %d: %w", role, id, ErrInvalidReference)
	}

	if _, err := s.accounts.AccountByID(ctx, role, id); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return fmt.Errorf("%s id %d: %w", role, id, ErrInvalidReference)
		}
		return err
	}

	return nil
}

// ListForPatient returns the patient's appointments by ascending time,
// each with the doctor's name.
func (s *Service) ListForPatient(ctx context.Context, patientID int64) ([]models.AppointmentView, error) {
	const op = "appointments.ListForPatient"

	views, err := s.storage.PatientAppointments(ctx, patientID)
	if err != nil {
		s.log.Error("failed to list appointments", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return views, nil
}

// ListForDoctor returns the doctor's appointments by ascending time,
// each with the patient's name.
func (s *Service) ListForDoctor(ctx context.Context, doctorID int64) ([]models.AppointmentView, error) {
	const op = "appointments.ListForDoctor"

	views, err := s.storage.DoctorAppointments(ctx, doctorID)
	if err != nil {
		s.log.Error("failed to list appointments", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return views, nil
}

// UpdateStatus applies one transition of
//
//	Pending   --confirm (assigned doctor)-->              Confirmed
//	Pending   --cancel  (assigned doctor, owning patient)--> Cancelled
//	Confirmed --cancel  (assigned doctor, owning patient)--> Cancelled
//
// Cancelled is terminal.
func (s *Service) UpdateStatus(
	ctx context.Context,
	id int64,
	next models.Status,
	requester Requester,
) (models.Appointment, error) {
	const op = "appointments.UpdateStatus"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("id", id),
		slog.String("status", string(next)),
		slog.String("role", string(requester.Role)),
	)

	if next != models.StatusConfirmed && next != models.StatusCancelled {
		return models.Appointment{}, fmt.Errorf("%s: status %q: %w", op, next, ErrInvalidInput)
	}

	a, err := s.load(ctx, id)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	isDoctor := requester.Role == models.RoleDoctor && a.DoctorID == requester.ID
	isPatient := requester.Role == models.RolePatient && a.PatientID == requester.ID

	switch next {
	case models.StatusConfirmed:
		if !isDoctor {
			log.Warn("confirm by non-assigned requester")
			return models.Appointment{}, fmt.Errorf("%s: only the assigned doctor can confirm: %w", op, ErrForbidden)
		}
		if a.Status != models.StatusPending {
			return models.Appointment{}, fmt.Errorf("%s: cannot confirm %s appointment: %w", op, a.Status, ErrForbidden)
		}
	case models.StatusCancelled:
		if !isDoctor && !isPatient {
			log.Warn("cancel by unrelated requester")
			return models.Appointment{}, fmt.Errorf("%s: not a party to the appointment: %w", op, ErrForbidden)
		}
		if a.Status == models.StatusCancelled {
			return models.Appointment{}, fmt.Errorf("%s: appointment already cancelled: %w", op, ErrForbidden)
		}
	}

	updated, err := s.storage.SetAppointmentStatus(ctx, id, a.Status, next)
	if err != nil {
		if errors.Is(err, storage.ErrAppointmentNotFound) {
			log.Info("lost update race")
			return models.Appointment{}, fmt.Errorf("%s: %w", op, ErrConflict)
		}

		log.Error("failed to update status", sl.Err(err))
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("appointment status updated", slog.String("from", string(a.Status)))

	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id int64, requester Requester) (models.Appointment, error) {
	return s.UpdateStatus(ctx, id, models.StatusCancelled, requester)
}

// Reschedule moves the owning patient's appointment to a new time and keeps its status.
func (s *Service) Reschedule(
	ctx context.Context,
	id int64,
	rawTime string,
	requester Requester,
) (models.Appointment, error) {
	const op = "appointments.Reschedule"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("id", id),
	)

	if requester.Role != models.RolePatient {
		return models.Appointment{}, fmt.Errorf("%s: only patients can reschedule: %w", op, ErrForbidden)
	}

	at, err := ParseTime(rawTime)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	a, err := s.load(ctx, id)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	if a.PatientID != requester.ID {
		log.Warn("reschedule by non-owner")
		return models.Appointment{}, fmt.Errorf("%s: not the owning patient: %w", op, ErrForbidden)
	}
	if a.Status == models.StatusCancelled {
		return models.Appointment{}, fmt.Errorf("%s: appointment is cancelled: %w", op, ErrForbidden)
	}

	updated, err := s.storage.SetAppointmentTime(ctx, id, a.Status, at)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAppointmentNotFound):
			log.Info("lost update race")
			return models.Appointment{}, fmt.Errorf("%s: %w", op, ErrConflict)
		case errors.Is(err, storage.ErrSlotTaken):
			return models.Appointment{}, fmt.Errorf("%s: %w", op, ErrSlotTaken)
		}

		log.Error("failed to reschedule", sl.Err(err))
		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("appointment rescheduled")

	return updated, nil
}

func (s *Service) load(ctx context.Context, id int64) (models.Appointment, error) {
	a, err := s.storage.Appointment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrAppointmentNotFound) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	return a, nil
}
