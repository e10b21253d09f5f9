package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/handler"
	"github.com/cangre-pos/api/internal/middleware"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type mockClosureService struct {
	today          pgtype.Date
	statusFn       func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	proposeFn      func(ctx context.Context, date pgtype.Date, proposedBy uuid.UUID) (database.DailyClosure, error)
	approveFn      func(ctx context.Context, date pgtype.Date, closedBy uuid.UUID) (database.DailyClosure, error)
	reopenFn       func(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	openSessionFn  func(ctx context.Context, userID uuid.UUID, startAmount decimal.Decimal) (database.CashierSession, error)
	closeSessionFn func(ctx context.Context, id uuid.UUID, endAmount decimal.Decimal) (database.CashierSession, error)
	approveSessFn  func(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	listSessionsFn func(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error)
}

func (m *mockClosureService) Today() pgtype.Date {
	if !m.today.Valid {
		return pgtype.Date{Time: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Valid: true}
	}
	return m.today
}

func (m *mockClosureService) Status(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, date)
	}
	return database.DailyClosure{ClosureDate: date, Status: enum.ClosureStatusOpen}, nil
}

func (m *mockClosureService) Propose(ctx context.Context, date pgtype.Date, proposedBy uuid.UUID) (database.DailyClosure, error) {
	return m.proposeFn(ctx, date, proposedBy)
}

func (m *mockClosureService) Approve(ctx context.Context, date pgtype.Date, closedBy uuid.UUID) (database.DailyClosure, error) {
	return m.approveFn(ctx, date, closedBy)
}

func (m *mockClosureService) Reopen(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	return m.reopenFn(ctx, date)
}

func (m *mockClosureService) OpenSession(ctx context.Context, userID uuid.UUID, startAmount decimal.Decimal) (database.CashierSession, error) {
	return m.openSessionFn(ctx, userID, startAmount)
}

func (m *mockClosureService) CloseSession(ctx context.Context, id uuid.UUID, endAmount decimal.Decimal) (database.CashierSession, error) {
	return m.closeSessionFn(ctx, id, endAmount)
}

func (m *mockClosureService) ApproveSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
	return m.approveSessFn(ctx, id)
}

func (m *mockClosureService) ListSessions(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, date)
	}
	return []database.CashierSession{}, nil
}

func setupClosureRouter(svc *mockClosureService) *chi.Mux {
	h := handler.NewClosureHandler(svc)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterRoutes(r)
		h.RegisterAdminRoutes(r)
	})
	return r
}

func sampleSession(userID uuid.UUID, status string) database.CashierSession {
	return database.CashierSession{
		ID:           uuid.New(),
		UserID:       userID,
		BusinessDate: pgtype.Date{Time: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Valid: true},
		StartAmount:  testNumeric("100.00"),
		StartTime:    time.Now(),
		Status:       status,
	}
}

func TestClosureToday_ReturnsOpenDay(t *testing.T) {
	router := setupClosureRouter(&mockClosureService{})

	rr := doAuthRequest(t, router, "GET", "/closures/today", nil, uuid.New(), enum.UserRoleCashier)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != enum.ClosureStatusOpen {
		t.Errorf("status = %v, want %s", resp["status"], enum.ClosureStatusOpen)
	}
	if resp["closure_date"] != "2025-03-14" {
		t.Errorf("closure_date = %v, want 2025-03-14", resp["closure_date"])
	}
}

func TestClosurePropose_RecordsProposer(t *testing.T) {
	cashierID := uuid.New()
	var gotProposer uuid.UUID
	svc := &mockClosureService{
		proposeFn: func(_ context.Context, date pgtype.Date, proposedBy uuid.UUID) (database.DailyClosure, error) {
			gotProposer = proposedBy
			return database.DailyClosure{
				ClosureDate: date,
				Status:      enum.ClosureStatusPendingClosure,
				ProposedBy:  pgtype.UUID{Bytes: proposedBy, Valid: true},
				ProposedAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
			}, nil
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/closures/2025-03-14/propose", nil, cashierID, enum.UserRoleCashier)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gotProposer != cashierID {
		t.Errorf("proposer = %s, want the token's user %s", gotProposer, cashierID)
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != enum.ClosureStatusPendingClosure {
		t.Errorf("status = %v, want %s", resp["status"], enum.ClosureStatusPendingClosure)
	}
}

func TestClosureStatus_InvalidDate(t *testing.T) {
	router := setupClosureRouter(&mockClosureService{})

	rr := doAuthRequest(t, router, "GET", "/closures/not-a-date", nil, uuid.New(), enum.UserRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestClosureReopen_NotFound(t *testing.T) {
	svc := &mockClosureService{
		reopenFn: func(_ context.Context, _ pgtype.Date) (database.DailyClosure, error) {
			return database.DailyClosure{}, service.ErrClosureNotFound
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/closures/2025-03-14/reopen", nil, uuid.New(), enum.UserRoleAdmin)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestOpenSession_Success(t *testing.T) {
	cashierID := uuid.New()
	svc := &mockClosureService{
		openSessionFn: func(_ context.Context, userID uuid.UUID, startAmount decimal.Decimal) (database.CashierSession, error) {
			s := sampleSession(userID, enum.SessionStatusOpen)
			s.StartAmount = service.DecimalToNumeric(startAmount)
			return s, nil
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/sessions",
		map[string]string{"start_amount": "150.00"}, cashierID, enum.UserRoleCashier)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["start_amount"] != "150.00" {
		t.Errorf("start_amount = %v, want 150.00", resp["start_amount"])
	}
	if resp["user_id"] != cashierID.String() {
		t.Errorf("user_id = %v, want %s", resp["user_id"], cashierID)
	}
}

func TestOpenSession_AlreadyOpen(t *testing.T) {
	svc := &mockClosureService{
		openSessionFn: func(_ context.Context, _ uuid.UUID, _ decimal.Decimal) (database.CashierSession, error) {
			return database.CashierSession{}, service.ErrSessionAlreadyOpen
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/sessions",
		map[string]string{"start_amount": "150.00"}, uuid.New(), enum.UserRoleCashier)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestOpenSession_NegativeAmount(t *testing.T) {
	svc := &mockClosureService{
		openSessionFn: func(_ context.Context, _ uuid.UUID, _ decimal.Decimal) (database.CashierSession, error) {
			return database.CashierSession{}, service.ErrInvalidAmount
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/sessions",
		map[string]string{"start_amount": "-5.00"}, uuid.New(), enum.UserRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCloseSession_NotOpen(t *testing.T) {
	svc := &mockClosureService{
		closeSessionFn: func(_ context.Context, _ uuid.UUID, _ decimal.Decimal) (database.CashierSession, error) {
			return database.CashierSession{}, service.ErrSessionNotOpen
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/sessions/"+uuid.NewString()+"/close",
		map[string]string{"end_amount": "200.00"}, uuid.New(), enum.UserRoleCashier)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestApproveSession_NotFound(t *testing.T) {
	svc := &mockClosureService{
		approveSessFn: func(_ context.Context, _ uuid.UUID) (database.CashierSession, error) {
			return database.CashierSession{}, service.ErrSessionNotFound
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/sessions/"+uuid.NewString()+"/approve",
		nil, uuid.New(), enum.UserRoleAdmin)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListSessions_DefaultsToToday(t *testing.T) {
	cashierID := uuid.New()
	var gotDate pgtype.Date
	svc := &mockClosureService{
		listSessionsFn: func(_ context.Context, date pgtype.Date) ([]database.CashierSession, error) {
			gotDate = date
			return []database.CashierSession{sampleSession(cashierID, enum.SessionStatusOpen)}, nil
		},
	}
	router := setupClosureRouter(svc)

	rr := doAuthRequest(t, router, "GET", "/sessions", nil, uuid.New(), enum.UserRoleAdmin)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gotDate.Time.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("date = %s, want today's business date", gotDate.Time.Format("2006-01-02"))
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 session, got %d", len(resp))
	}
	if resp[0]["business_date"] != "2025-03-14" {
		t.Errorf("business_date = %v, want 2025-03-14", resp[0]["business_date"])
	}
}
