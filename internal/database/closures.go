package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const closureColumns = `closure_date, status, proposed_by, proposed_at, closed_by, closed_at`

func scanClosure(row interface{ Scan(dest ...any) error }) (DailyClosure, error) {
	var c DailyClosure
	err := row.Scan(&c.ClosureDate, &c.Status, &c.ProposedBy, &c.ProposedAt, &c.ClosedBy, &c.ClosedAt)
	return c, err
}

func (q *Queries) GetDailyClosure(ctx context.Context, date pgtype.Date) (DailyClosure, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+closureColumns+` FROM daily_closures WHERE closure_date = $1`, date)
	return scanClosure(row)
}

type ProposeClosureParams struct {
	ClosureDate pgtype.Date
	ProposedBy  uuid.UUID
}

// ProposeClosure creates or advances the day's closure to pending_closure.
// A day that is already pending or closed is left untouched.
func (q *Queries) ProposeClosure(ctx context.Context, arg ProposeClosureParams) (DailyClosure, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO daily_closures (closure_date, status, proposed_by, proposed_at)
		VALUES ($1, 'pending_closure', $2, now())
		ON CONFLICT (closure_date) DO UPDATE SET
			status = CASE WHEN daily_closures.status = 'open' THEN 'pending_closure' ELSE daily_closures.status END,
			proposed_by = CASE WHEN daily_closures.status = 'open' THEN EXCLUDED.proposed_by ELSE daily_closures.proposed_by END,
			proposed_at = CASE WHEN daily_closures.status = 'open' THEN now() ELSE daily_closures.proposed_at END
		RETURNING `+closureColumns,
		arg.ClosureDate, arg.ProposedBy)
	return scanClosure(row)
}

type ApproveClosureParams struct {
	ClosureDate pgtype.Date
	ClosedBy    uuid.UUID
}

func (q *Queries) ApproveClosure(ctx context.Context, arg ApproveClosureParams) (DailyClosure, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO daily_closures (closure_date, status, closed_by, closed_at)
		VALUES ($1, 'closed', $2, now())
		ON CONFLICT (closure_date) DO UPDATE SET
			status = 'closed', closed_by = EXCLUDED.closed_by, closed_at = now()
		RETURNING `+closureColumns,
		arg.ClosureDate, arg.ClosedBy)
	return scanClosure(row)
}

func (q *Queries) ReopenClosure(ctx context.Context, date pgtype.Date) (DailyClosure, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE daily_closures
		SET status = 'open', closed_by = NULL, closed_at = NULL
		WHERE closure_date = $1
		RETURNING `+closureColumns, date)
	return scanClosure(row)
}

// ── Cashier sessions ──

const sessionColumns = `id, user_id, business_date, start_amount, start_time, end_amount, end_time, status`

func scanSession(row interface{ Scan(dest ...any) error }) (CashierSession, error) {
	var s CashierSession
	err := row.Scan(&s.ID, &s.UserID, &s.BusinessDate, &s.StartAmount, &s.StartTime,
		&s.EndAmount, &s.EndTime, &s.Status)
	return s, err
}

type CreateCashierSessionParams struct {
	UserID       uuid.UUID
	BusinessDate pgtype.Date
	StartAmount  pgtype.Numeric
}

func (q *Queries) CreateCashierSession(ctx context.Context, arg CreateCashierSessionParams) (CashierSession, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO cashier_sessions (user_id, business_date, start_amount, start_time, status)
		VALUES ($1, $2, $3, now(), 'open')
		RETURNING `+sessionColumns,
		arg.UserID, arg.BusinessDate, arg.StartAmount)
	return scanSession(row)
}

type GetActiveSessionParams struct {
	UserID       uuid.UUID
	BusinessDate pgtype.Date
}

// GetActiveSession returns the user's unapproved session for the business
// day, if any. At most one exists (partial unique index).
func (q *Queries) GetActiveSession(ctx context.Context, arg GetActiveSessionParams) (CashierSession, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM cashier_sessions
		WHERE user_id = $1 AND business_date = $2 AND status <> 'approved'
		LIMIT 1`, arg.UserID, arg.BusinessDate)
	return scanSession(row)
}

func (q *Queries) GetCashierSession(ctx context.Context, id uuid.UUID) (CashierSession, error) {
	row := q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions WHERE id = $1`, id)
	return scanSession(row)
}

type CloseCashierSessionParams struct {
	ID        uuid.UUID
	EndAmount pgtype.Numeric
}

// CloseCashierSession moves an open session to pending_approval. Returns
// pgx.ErrNoRows when the session is not open.
func (q *Queries) CloseCashierSession(ctx context.Context, arg CloseCashierSessionParams) (CashierSession, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE cashier_sessions
		SET end_amount = $2, end_time = now(), status = 'pending_approval'
		WHERE id = $1 AND status = 'open'
		RETURNING `+sessionColumns, arg.ID, arg.EndAmount)
	return scanSession(row)
}

// ApproveCashierSession confirms a counted drawer. Returns pgx.ErrNoRows
// when the session is not pending approval.
func (q *Queries) ApproveCashierSession(ctx context.Context, id uuid.UUID) (CashierSession, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE cashier_sessions
		SET status = 'approved'
		WHERE id = $1 AND status = 'pending_approval'
		RETURNING `+sessionColumns, id)
	return scanSession(row)
}

func (q *Queries) ListSessionsForDate(ctx context.Context, date pgtype.Date) ([]CashierSession, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM cashier_sessions
		WHERE business_date = $1
		ORDER BY start_time ASC`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CashierSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
