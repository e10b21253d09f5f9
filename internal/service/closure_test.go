package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestBusinessDate_AfternoonIsSameDay(t *testing.T) {
	at := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	got := BusinessDate(at, 6)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Time.Equal(want) {
		t.Fatalf("business date = %v, want %v", got.Time, want)
	}
}

func TestBusinessDate_LateNightBelongsToPreviousDay(t *testing.T) {
	at := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	got := BusinessDate(at, 6)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Time.Equal(want) {
		t.Fatalf("business date = %v, want previous day %v", got.Time, want)
	}
}

func TestBusinessDate_CutoffHourStartsNewDay(t *testing.T) {
	at := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	got := BusinessDate(at, 6)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Time.Equal(want) {
		t.Fatalf("business date = %v, want %v", got.Time, want)
	}
}

func TestBusinessDate_ZeroCutoffIsCalendarDay(t *testing.T) {
	at := time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)
	got := BusinessDate(at, 0)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Time.Equal(want) {
		t.Fatalf("business date = %v, want %v", got.Time, want)
	}
}

// mockClosureStore implements ClosureStore with configurable behavior.
type mockClosureStore struct {
	getDailyClosureFn  func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	proposeClosureFn   func(ctx context.Context, arg database.ProposeClosureParams) (database.DailyClosure, error)
	approveClosureFn   func(ctx context.Context, arg database.ApproveClosureParams) (database.DailyClosure, error)
	reopenClosureFn    func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	createSessionFn    func(ctx context.Context, arg database.CreateCashierSessionParams) (database.CashierSession, error)
	getActiveSessionFn func(ctx context.Context, arg database.GetActiveSessionParams) (database.CashierSession, error)
	getSessionFn       func(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	closeSessionFn     func(ctx context.Context, arg database.CloseCashierSessionParams) (database.CashierSession, error)
	approveSessionFn   func(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	listSessionsFn     func(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error)
}

func (m *mockClosureStore) GetDailyClosure(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	return m.getDailyClosureFn(ctx, date)
}
func (m *mockClosureStore) ProposeClosure(ctx context.Context, arg database.ProposeClosureParams) (database.DailyClosure, error) {
	return m.proposeClosureFn(ctx, arg)
}
func (m *mockClosureStore) ApproveClosure(ctx context.Context, arg database.ApproveClosureParams) (database.DailyClosure, error) {
	return m.approveClosureFn(ctx, arg)
}
func (m *mockClosureStore) ReopenClosure(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	return m.reopenClosureFn(ctx, date)
}
func (m *mockClosureStore) CreateCashierSession(ctx context.Context, arg database.CreateCashierSessionParams) (database.CashierSession, error) {
	return m.createSessionFn(ctx, arg)
}
func (m *mockClosureStore) GetActiveSession(ctx context.Context, arg database.GetActiveSessionParams) (database.CashierSession, error) {
	return m.getActiveSessionFn(ctx, arg)
}
func (m *mockClosureStore) GetCashierSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
	return m.getSessionFn(ctx, id)
}
func (m *mockClosureStore) CloseCashierSession(ctx context.Context, arg database.CloseCashierSessionParams) (database.CashierSession, error) {
	return m.closeSessionFn(ctx, arg)
}
func (m *mockClosureStore) ApproveCashierSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
	return m.approveSessionFn(ctx, id)
}
func (m *mockClosureStore) ListSessionsForDate(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error) {
	return m.listSessionsFn(ctx, date)
}

func defaultClosureStore() *mockClosureStore {
	return &mockClosureStore{
		getDailyClosureFn: func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
			return database.DailyClosure{}, pgx.ErrNoRows
		},
		getActiveSessionFn: func(ctx context.Context, arg database.GetActiveSessionParams) (database.CashierSession, error) {
			return database.CashierSession{}, pgx.ErrNoRows
		},
		createSessionFn: func(ctx context.Context, arg database.CreateCashierSessionParams) (database.CashierSession, error) {
			return database.CashierSession{
				ID:           uuid.New(),
				UserID:       arg.UserID,
				BusinessDate: arg.BusinessDate,
				StartAmount:  arg.StartAmount,
				StartTime:    time.Now(),
				Status:       enum.SessionStatusOpen,
			}, nil
		},
	}
}

func TestStatus_NoRecordMeansOpen(t *testing.T) {
	svc := NewClosureService(defaultClosureStore(), 6)

	closure, err := svc.Status(context.Background(), svc.Today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closure.Status != enum.ClosureStatusOpen {
		t.Fatalf("status = %q, want open", closure.Status)
	}
}

func TestStatus_ReturnsStoredRecord(t *testing.T) {
	store := defaultClosureStore()
	store.getDailyClosureFn = func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
		return database.DailyClosure{ClosureDate: date, Status: enum.ClosureStatusPendingClosure}, nil
	}
	svc := NewClosureService(store, 6)

	closure, err := svc.Status(context.Background(), svc.Today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closure.Status != enum.ClosureStatusPendingClosure {
		t.Fatalf("status = %q, want pending_closure", closure.Status)
	}
}

func TestReopen_UnknownDate(t *testing.T) {
	store := defaultClosureStore()
	store.reopenClosureFn = func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
		return database.DailyClosure{}, pgx.ErrNoRows
	}
	svc := NewClosureService(store, 6)

	if _, err := svc.Reopen(context.Background(), svc.Today()); !errors.Is(err, ErrClosureNotFound) {
		t.Fatalf("expected ErrClosureNotFound, got: %v", err)
	}
}

func TestOpenSession_Succeeds(t *testing.T) {
	svc := NewClosureService(defaultClosureStore(), 6)

	session, err := svc.OpenSession(context.Background(), uuid.New(), dec("100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status != enum.SessionStatusOpen {
		t.Fatalf("status = %q, want open", session.Status)
	}
	if !NumericToDecimal(session.StartAmount).Equal(dec("100.00")) {
		t.Fatalf("start amount = %s, want 100.00", NumericToDecimal(session.StartAmount))
	}
}

func TestOpenSession_NegativeFloat(t *testing.T) {
	svc := NewClosureService(defaultClosureStore(), 6)

	if _, err := svc.OpenSession(context.Background(), uuid.New(), dec("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got: %v", err)
	}
}

func TestOpenSession_AlreadyOpen(t *testing.T) {
	store := defaultClosureStore()
	store.getActiveSessionFn = func(ctx context.Context, arg database.GetActiveSessionParams) (database.CashierSession, error) {
		return database.CashierSession{ID: uuid.New(), Status: enum.SessionStatusOpen}, nil
	}
	svc := NewClosureService(store, 6)

	if _, err := svc.OpenSession(context.Background(), uuid.New(), dec("50")); !errors.Is(err, ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen, got: %v", err)
	}
}

func TestCloseSession_UnknownSession(t *testing.T) {
	store := defaultClosureStore()
	store.closeSessionFn = func(ctx context.Context, arg database.CloseCashierSessionParams) (database.CashierSession, error) {
		return database.CashierSession{}, pgx.ErrNoRows
	}
	store.getSessionFn = func(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
		return database.CashierSession{}, pgx.ErrNoRows
	}
	svc := NewClosureService(store, 6)

	if _, err := svc.CloseSession(context.Background(), uuid.New(), dec("80")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got: %v", err)
	}
}

func TestCloseSession_NotOpen(t *testing.T) {
	store := defaultClosureStore()
	store.closeSessionFn = func(ctx context.Context, arg database.CloseCashierSessionParams) (database.CashierSession, error) {
		return database.CashierSession{}, pgx.ErrNoRows
	}
	store.getSessionFn = func(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
		return database.CashierSession{ID: id, Status: enum.SessionStatusPendingApproval}, nil
	}
	svc := NewClosureService(store, 6)

	if _, err := svc.CloseSession(context.Background(), uuid.New(), dec("80")); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got: %v", err)
	}
}

func TestApproveSession_NotPending(t *testing.T) {
	store := defaultClosureStore()
	store.approveSessionFn = func(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
		return database.CashierSession{}, pgx.ErrNoRows
	}
	store.getSessionFn = func(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
		return database.CashierSession{ID: id, Status: enum.SessionStatusOpen}, nil
	}
	svc := NewClosureService(store, 6)

	if _, err := svc.ApproveSession(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotPending) {
		t.Fatalf("expected ErrSessionNotPending, got: %v", err)
	}
}

func TestApproveSession_Succeeds(t *testing.T) {
	store := defaultClosureStore()
	store.approveSessionFn = func(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
		return database.CashierSession{ID: id, Status: enum.SessionStatusApproved, EndAmount: makeNumeric("80.00")}, nil
	}
	svc := NewClosureService(store, 6)

	session, err := svc.ApproveSession(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status != enum.SessionStatusApproved {
		t.Fatalf("status = %q, want approved", session.Status)
	}
}
