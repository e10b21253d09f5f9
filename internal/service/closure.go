package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// BusinessDate maps a wall-clock instant to the business day it belongs to.
// Sales made after midnight but before the cutoff hour count toward the
// previous calendar day, matching how a late-night kitchen closes its books.
func BusinessDate(t time.Time, cutoffHour int) pgtype.Date {
	if t.Hour() < cutoffHour {
		t = t.AddDate(0, 0, -1)
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return pgtype.Date{Time: day, Valid: true}
}

// ClosureStore defines the DB methods needed for daily closures and
// cashier sessions. Satisfied by *database.Queries.
type ClosureStore interface {
	GetDailyClosure(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	ProposeClosure(ctx context.Context, arg database.ProposeClosureParams) (database.DailyClosure, error)
	ApproveClosure(ctx context.Context, arg database.ApproveClosureParams) (database.DailyClosure, error)
	ReopenClosure(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	CreateCashierSession(ctx context.Context, arg database.CreateCashierSessionParams) (database.CashierSession, error)
	GetActiveSession(ctx context.Context, arg database.GetActiveSessionParams) (database.CashierSession, error)
	GetCashierSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	CloseCashierSession(ctx context.Context, arg database.CloseCashierSessionParams) (database.CashierSession, error)
	ApproveCashierSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	ListSessionsForDate(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error)
}

// ClosureService drives the daily closure workflow and the cashier
// sessions that hang off each business day.
type ClosureService struct {
	store      ClosureStore
	cutoffHour int
	now        func() time.Time
}

// NewClosureService creates a new ClosureService.
func NewClosureService(store ClosureStore, cutoffHour int) *ClosureService {
	return &ClosureService{store: store, cutoffHour: cutoffHour, now: time.Now}
}

// Today returns the current business date.
func (s *ClosureService) Today() pgtype.Date {
	return BusinessDate(s.now(), s.cutoffHour)
}

// Status returns the closure record for a date. A day with no record yet
// is open.
func (s *ClosureService) Status(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	closure, err := s.store.GetDailyClosure(ctx, date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.DailyClosure{ClosureDate: date, Status: enum.ClosureStatusOpen}, nil
		}
		return database.DailyClosure{}, fmt.Errorf("get daily closure: %w", err)
	}
	return closure, nil
}

// Propose marks a business day pending closure. Days already pending or
// closed are returned unchanged.
func (s *ClosureService) Propose(ctx context.Context, date pgtype.Date, proposedBy uuid.UUID) (database.DailyClosure, error) {
	closure, err := s.store.ProposeClosure(ctx, database.ProposeClosureParams{ClosureDate: date, ProposedBy: proposedBy})
	if err != nil {
		return database.DailyClosure{}, fmt.Errorf("propose closure: %w", err)
	}
	return closure, nil
}

// Approve finalizes a business day. From then on the transaction engine
// rejects new orders for that day.
func (s *ClosureService) Approve(ctx context.Context, date pgtype.Date, closedBy uuid.UUID) (database.DailyClosure, error) {
	closure, err := s.store.ApproveClosure(ctx, database.ApproveClosureParams{ClosureDate: date, ClosedBy: closedBy})
	if err != nil {
		return database.DailyClosure{}, fmt.Errorf("approve closure: %w", err)
	}
	return closure, nil
}

// Reopen reverts a closed or pending day back to open so mistakes can be
// corrected before the books are regenerated.
func (s *ClosureService) Reopen(ctx context.Context, date pgtype.Date) (database.DailyClosure, error) {
	closure, err := s.store.ReopenClosure(ctx, date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.DailyClosure{}, ErrClosureNotFound
		}
		return database.DailyClosure{}, fmt.Errorf("reopen closure: %w", err)
	}
	return closure, nil
}

// OpenSession starts a cashier session for the current business day with a
// counted opening float. A cashier has at most one unapproved session per
// day.
func (s *ClosureService) OpenSession(ctx context.Context, userID uuid.UUID, startAmount decimal.Decimal) (database.CashierSession, error) {
	if startAmount.IsNegative() {
		return database.CashierSession{}, ErrInvalidAmount
	}
	date := s.Today()

	_, err := s.store.GetActiveSession(ctx, database.GetActiveSessionParams{UserID: userID, BusinessDate: date})
	if err == nil {
		return database.CashierSession{}, ErrSessionAlreadyOpen
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.CashierSession{}, fmt.Errorf("get active session: %w", err)
	}

	session, err := s.store.CreateCashierSession(ctx, database.CreateCashierSessionParams{
		UserID:       userID,
		BusinessDate: date,
		StartAmount:  DecimalToNumeric(startAmount),
	})
	if err != nil {
		return database.CashierSession{}, fmt.Errorf("create cashier session: %w", err)
	}
	return session, nil
}

// CloseSession counts the drawer and hands the session to an admin for
// approval.
func (s *ClosureService) CloseSession(ctx context.Context, id uuid.UUID, endAmount decimal.Decimal) (database.CashierSession, error) {
	if endAmount.IsNegative() {
		return database.CashierSession{}, ErrInvalidAmount
	}
	session, err := s.store.CloseCashierSession(ctx, database.CloseCashierSessionParams{ID: id, EndAmount: DecimalToNumeric(endAmount)})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CashierSession{}, s.sessionStateErr(ctx, id, enum.SessionStatusOpen)
		}
		return database.CashierSession{}, fmt.Errorf("close cashier session: %w", err)
	}
	return session, nil
}

// ApproveSession signs off a counted session.
func (s *ClosureService) ApproveSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error) {
	session, err := s.store.ApproveCashierSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CashierSession{}, s.sessionStateErr(ctx, id, enum.SessionStatusPendingApproval)
		}
		return database.CashierSession{}, fmt.Errorf("approve cashier session: %w", err)
	}
	return session, nil
}

// ListSessions returns every session opened against a business date.
func (s *ClosureService) ListSessions(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error) {
	sessions, err := s.store.ListSessionsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// sessionStateErr distinguishes a session that does not exist from one in
// the wrong state, after a guarded UPDATE matched no row.
func (s *ClosureService) sessionStateErr(ctx context.Context, id uuid.UUID, wanted string) error {
	_, err := s.store.GetCashierSession(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("get cashier session: %w", err)
	}
	if wanted == enum.SessionStatusOpen {
		return ErrSessionNotOpen
	}
	return ErrSessionNotPending
}
