package specialists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no specialist matches the requested id.
var ErrNotFound = errors.New("specialists: not found")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for specialists.
type Repository struct {
	pool rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("specialists: pgx pool required")
	}
	return &Repository{pool: pool}
}

// NewRepositoryWithQuerier allows injecting a mock for tests.
func NewRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("specialists: querier required")
	}
	return &Repository{pool: q}
}

// Create inserts a specialist with the given profile and schedule.
func (r *Repository) Create(ctx context.Context, s *Specialist) (*Specialist, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	schedule, err := json.Marshal(s.Schedule)
	if err != nil {
		return nil, fmt.Errorf("specialists: marshal schedule: %w", err)
	}
	query := `
		INSERT INTO specialists (id, name, email, phone, timezone, schedule, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query, s.ID, s.Name, s.Email, s.Phone, s.Timezone, schedule, s.Active).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("specialists: insert: %w", err)
	}
	s.CreatedAt = createdAt
	return s, nil
}

// GetByID loads a specialist by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Specialist, error) {
	query := `
		SELECT id, name, email, phone, timezone, schedule, active,
		       COALESCE(calendar_id, ''), COALESCE(calendar_refresh_token, ''), created_at
		FROM specialists
		WHERE id = $1
	`
	var (
		s           Specialist
		scheduleRaw []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Email, &s.Phone, &s.Timezone, &scheduleRaw, &s.Active,
		&s.CalendarID, &s.CalendarRefreshToken, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("specialists: load by id: %w", err)
	}
	if len(scheduleRaw) > 0 {
		if err := json.Unmarshal(scheduleRaw, &s.Schedule); err != nil {
			return nil, fmt.Errorf("specialists: decode schedule: %w", err)
		}
	}
	return &s, nil
}

// UpdateSchedule replaces the specialist's working-hours schedule.
func (r *Repository) UpdateSchedule(ctx context.Context, id uuid.UUID, schedule WeekSchedule) error {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("specialists: marshal schedule: %w", err)
	}
	ct, err := r.pool.Exec(ctx, `UPDATE specialists SET schedule = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("specialists: update schedule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCalendarAccount links the specialist's Google Calendar account.
func (r *Repository) SetCalendarAccount(ctx context.Context, id uuid.UUID, calendarID, refreshToken string) error {
	query := `UPDATE specialists SET calendar_id = $2, calendar_refresh_token = $3 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, query, id, calendarID, refreshToken)
	if err != nil {
		return fmt.Errorf("specialists: set calendar account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
