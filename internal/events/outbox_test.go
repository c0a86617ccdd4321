package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStoreWithQuerier(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), EventPaymentSettled, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), EventPaymentSettled, PaymentSettledV1{PlanID: "p1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).AddRow(id, EventPaymentSettled, []byte(`{"plan_id":"p1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type stubHandler struct {
	handled []OutboxEntry
	err     error
}

func (s *stubHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if s.err != nil {
		return s.err
	}
	s.handled = append(s.handled, entry)
	return nil
}

func TestDelivererDrainMarksDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).AddRow(id, EventPaymentSettled, []byte(`{}`), time.Now().UTC())
	mock.ExpectQuery("SELECT id").WithArgs(int32(25)).WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &stubHandler{}
	d := NewDeliverer(NewOutboxStoreWithQuerier(mock), handler, nil)
	d.drain(context.Background())

	if len(handler.handled) != 1 {
		t.Fatalf("expected one delivery, got %d", len(handler.handled))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelivererLeavesFailedDeliveryPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).AddRow(uuid.New(), EventPaymentSettled, []byte(`{}`), time.Now().UTC())
	mock.ExpectQuery("SELECT id").WithArgs(int32(25)).WillReturnRows(rows)
	// No UPDATE expectation: a failed handler must not mark the row.

	d := NewDeliverer(NewOutboxStoreWithQuerier(mock), &stubHandler{err: context.DeadlineExceeded}, nil)
	d.drain(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedisPublisherDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), DefaultEventChannel)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedisPublisher(client, "")
	entry := OutboxEntry{
		ID:        uuid.New(),
		Type:      EventPaymentSettled,
		Payload:   json.RawMessage(`{"plan_id":"p1"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := pub.Handle(context.Background(), entry); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var env struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.ID != entry.ID.String() || env.Type != EventPaymentSettled {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
