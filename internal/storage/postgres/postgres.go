package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medicare_service/internal/config"
	"medicare_service/internal/models"
	"medicare_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

// Migrate executes a schema script. Statements must be idempotent.
func (r *PostgresRepo) Migrate(ctx context.Context, script string) error {
	const op = "storage.postgres.Migrate"

	if _, err := r.pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Patients and doctors live in separate tables. The table is chosen from
// this fixed set and never built from input.
type accountQueries struct {
	byEmail string
	byID    string
}

var accountQuerySet = map[models.Role]accountQueries{
	models.RolePatient: {
		byEmail: `
			SELECT id, name, email, password_hash, '' AS specialization, created_at
			FROM patients
			WHERE email = $1;
		`,
		byID: `
			SELECT id, name, email, password_hash, '' AS specialization, created_at
			FROM patients
			WHERE id = $1;
		`,
	},
	models.RoleDoctor: {
		byEmail: `
			SELECT id, name, email, password_hash, specialization, created_at
			FROM doctors
			WHERE email = $1;
		`,
		byID: `
			SELECT id, name, email, password_hash, specialization, created_at
			FROM doctors
			WHERE id = $1;
		`,
	},
}

func (r *PostgresRepo) SaveAccount(ctx context.Context, acc models.Account) (int64, error) {
	const op = "storage.postgres.SaveAccount"

	var row pgx.Row

	switch acc.Role {
	case models.RolePatient:
		row = r.pool.QueryRow(ctx, `
			INSERT INTO patients (name, email, password_hash)
			VALUES ($1, $2, $3)
			RETURNING id;
		`, acc.Name, acc.Email, string(acc.PassHash))
	case models.RoleDoctor:
		row = r.pool.QueryRow(ctx, `
			INSERT INTO doctors (name, specialization, email, password_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING id;
		`, acc.Name, acc.Specialization, acc.Email, string(acc.PassHash))
	default:
		return 0, fmt.Errorf("%s: unknown role %q", op, acc.Role)
	}

	var id int64

	if err := row.Scan(&id); err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return 0, storage.ErrAccountExists
		}

		return 0, fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) Account(ctx context.Context, role models.Role, email string) (models.Account, error) {
	const op = "storage.postgres.Account"

	q, ok := accountQuerySet[role]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: unknown role %q", op, role)
	}

	acc, err := scanAccount(r.pool.QueryRow(ctx, q.byEmail, email), role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (r *PostgresRepo) AccountByID(ctx context.Context, role models.Role, id int64) (models.Account, error) {
	const op = "storage.postgres.AccountByID"

	q, ok := accountQuerySet[role]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: unknown role %q", op, role)
	}

	acc, err := scanAccount(r.pool.QueryRow(ctx, q.byID, id), role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (r *PostgresRepo) Doctors(ctx context.Context) ([]models.Doctor, error) {
	const op = "storage.postgres.Doctors"

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization
		FROM doctors
		ORDER BY name, id;
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	doctors := make([]models.Doctor, 0)

	for rows.Next() {
		var d models.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialization); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doctors, nil
}

func (r *PostgresRepo) SaveAppointment(ctx context.Context, a models.Appointment) (models.Appointment, error) {
	const op = "storage.postgres.SaveAppointment"

	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, appointment_time, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at;
	`, a.PatientID, a.DoctorID, a.AppointmentTime, string(a.Status)).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return models.Appointment{}, storage.ErrSlotTaken
		}
		if isPgCode(err, codeForeignKeyViolation) {
			return models.Appointment{}, storage.ErrAccountNotFound
		}

		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_time, status, created_at, updated_at`

func (r *PostgresRepo) Appointment(ctx context.Context, id int64) (models.Appointment, error) {
	const op = "storage.postgres.Appointment"

	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, storage.ErrAppointmentNotFound
		}

		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (r *PostgresRepo) PatientAppointments(ctx context.Context, patientID int64) ([]models.AppointmentView, error) {
	const op = "storage.postgres.PatientAppointments"

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.appointment_time, a.status,
		       a.created_at, a.updated_at, d.name
		FROM appointments a
		JOIN doctors d ON a.doctor_id = d.id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_time ASC, a.id ASC;
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	views := make([]models.AppointmentView, 0)

	for rows.Next() {
		var (
			v      models.AppointmentView
			status string
		)
		if err := rows.Scan(
			&v.ID, &v.PatientID, &v.DoctorID, &v.AppointmentTime, &status,
			&v.CreatedAt, &v.UpdatedAt, &v.DoctorName,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v.Status = models.Status(status)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return views, nil
}

func (r *PostgresRepo) DoctorAppointments(ctx context.Context, doctorID int64) ([]models.AppointmentView, error) {
	const op = "storage.postgres.DoctorAppointments"

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.appointment_time, a.status,
		       a.created_at, a.updated_at, p.name
		FROM appointments a
		JOIN patients p ON a.patient_id = p.id
		WHERE a.doctor_id = $1
		ORDER BY a.appointment_time ASC, a.id ASC;
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	views := make([]models.AppointmentView, 0)

	for rows.Next() {
		var (
			v      models.AppointmentView
			status string
		)
		if err := rows.Scan(
			&v.ID, &v.PatientID, &v.DoctorID, &v.AppointmentTime, &status,
			&v.CreatedAt, &v.UpdatedAt, &v.PatientName,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v.Status = models.Status(status)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return views, nil
}

// SetAppointmentStatus moves the appointment to next only while it is still
// in expected. storage.ErrAppointmentNotFound means no row matched both.
func (r *PostgresRepo) SetAppointmentStatus(
	ctx context.Context,
	id int64,
	expected, next models.Status,
) (models.Appointment, error) {
	const op = "storage.postgres.SetAppointmentStatus"

	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+appointmentColumns,
		string(next), id, string(expected),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, storage.ErrAppointmentNotFound
		}
		if isPgCode(err, codeUniqueViolation) {
			return models.Appointment{}, storage.ErrSlotTaken
		}

		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (r *PostgresRepo) SetAppointmentTime(
	ctx context.Context,
	id int64,
	expected models.Status,
	at time.Time,
) (models.Appointment, error) {
	const op = "storage.postgres.SetAppointmentTime"

	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_time = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+appointmentColumns,
		at, id, string(expected),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, storage.ErrAppointmentNotFound
		}
		if isPgCode(err, codeUniqueViolation) {
			return models.Appointment{}, storage.ErrSlotTaken
		}

		return models.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func scanAccount(row pgx.Row, role models.Role) (models.Account, error) {
	var (
		acc      models.Account
		passHash string
	)

	err := row.Scan(&acc.ID, &acc.Name, &acc.Email, &passHash, &acc.Specialization, &acc.CreatedAt)
	if err != nil {
		return models.Account{}, err
	}

	acc.Role = role
	acc.PassHash = []byte(passHash)

	return acc, nil
}

func scanAppointment(row pgx.Row) (models.Appointment, error) {
	var (
		a      models.Appointment
		status string
	)

	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentTime, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Appointment{}, err
	}

	a.Status = models.Status(status)

	return a, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
