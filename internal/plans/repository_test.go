package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepositoryWithQuerier(mock), mock
}

func TestMarkPaidFirstSettlementWins(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	paidAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "pi_1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	settled, err := repo.MarkPaid(context.Background(), id, "pi_1", paidAt)
	if err != nil || !settled {
		t.Fatalf("expected settlement, got settled=%v err=%v", settled, err)
	}

	// Second delivery matches no row because payment_status is already paid.
	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "pi_1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	settled, err = repo.MarkPaid(context.Background(), id, "pi_1", paidAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled {
		t.Fatal("duplicate settlement must report settled=false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfirmAppointmentGuardedUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "evt_1", "https://meet").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.ConfirmAppointment(context.Background(), id, "evt_1", "https://meet"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "evt_1", "https://meet").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.ConfirmAppointment(context.Background(), id, "evt_1", "https://meet")
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for already-completed plan, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAppointmentTimesRejectedWhenCompleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	start := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.UpdateAppointmentTimes(context.Background(), id, start, end)
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestSetCheckoutSessionGuard(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "cs_1", int64(19900)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.SetCheckoutSession(context.Background(), id, "cs_1", 19900); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "cs_2", int64(19900)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.SetCheckoutSession(context.Background(), id, "cs_2", 19900)
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestUpdateContactUnknownPlan(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE plans").
		WithArgs(id, "Ada", "Okafor", "ada@example.com", "+1555", 2, "warm weather").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.UpdateContact(context.Background(), id, "Ada", "Okafor", "ada@example.com", "+1555", 2, "warm weather")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetToDraft(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE plans").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.ResetToDraft(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
