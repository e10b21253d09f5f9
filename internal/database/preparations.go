package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const preparationColumns = `id, name, usage_type, unit_of_measure, estimated_expiry_days, recipe_yield`

func scanPreparation(row interface{ Scan(dest ...any) error }) (Preparation, error) {
	var p Preparation
	err := row.Scan(&p.ID, &p.Name, &p.UsageType, &p.UnitOfMeasure, &p.EstimatedExpiryDays, &p.RecipeYield)
	return p, err
}

type CreatePreparationParams struct {
	Name                string
	UsageType           string
	UnitOfMeasure       string
	EstimatedExpiryDays int32
	RecipeYield         pgtype.Numeric
}

func (q *Queries) CreatePreparation(ctx context.Context, arg CreatePreparationParams) (Preparation, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO preparations (name, usage_type, unit_of_measure, estimated_expiry_days, recipe_yield)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+preparationColumns,
		arg.Name, arg.UsageType, arg.UnitOfMeasure, arg.EstimatedExpiryDays, arg.RecipeYield)
	return scanPreparation(row)
}

func (q *Queries) GetPreparation(ctx context.Context, id uuid.UUID) (Preparation, error) {
	row := q.db.QueryRow(ctx, `SELECT `+preparationColumns+` FROM preparations WHERE id = $1`, id)
	return scanPreparation(row)
}

func (q *Queries) ListPreparations(ctx context.Context) ([]Preparation, error) {
	rows, err := q.db.Query(ctx, `SELECT `+preparationColumns+` FROM preparations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Preparation
	for rows.Next() {
		p, err := scanPreparation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) DeletePreparation(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM preparations WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

func (q *Queries) DeletePreparationComponents(ctx context.Context, preparationID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM preparation_components WHERE preparation_id = $1`, preparationID)
	return err
}

type CreatePreparationComponentParams struct {
	PreparationID    uuid.UUID
	ComponentID      uuid.UUID
	ComponentType    string
	QuantityRequired pgtype.Numeric
}

func (q *Queries) CreatePreparationComponent(ctx context.Context, arg CreatePreparationComponentParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO preparation_components (preparation_id, component_id, component_type, quantity_required)
		VALUES ($1, $2, $3, $4)`,
		arg.PreparationID, arg.ComponentID, arg.ComponentType, arg.QuantityRequired)
	return err
}

func (q *Queries) ListPreparationComponents(ctx context.Context, preparationID uuid.UUID) ([]PreparationComponent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT preparation_id, component_id, component_type, quantity_required
		FROM preparation_components
		WHERE preparation_id = $1
		ORDER BY component_type ASC, component_id ASC`, preparationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PreparationComponent
	for rows.Next() {
		var c PreparationComponent
		if err := rows.Scan(&c.PreparationID, &c.ComponentID, &c.ComponentType, &c.QuantityRequired); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const lotColumns = `id, preparation_id, quantity_produced, quantity_remaining, cost_per_unit, production_date, expiry_date`

func scanLot(row interface{ Scan(dest ...any) error }) (PreparationLot, error) {
	var l PreparationLot
	err := row.Scan(&l.ID, &l.PreparationID, &l.QuantityProduced, &l.QuantityRemaining,
		&l.CostPerUnit, &l.ProductionDate, &l.ExpiryDate)
	return l, err
}

type CreatePreparationLotParams struct {
	PreparationID     uuid.UUID
	QuantityProduced  pgtype.Numeric
	QuantityRemaining pgtype.Numeric
	CostPerUnit       pgtype.Numeric
	ProductionDate    pgtype.Timestamptz
	ExpiryDate        pgtype.Timestamptz
}

func (q *Queries) CreatePreparationLot(ctx context.Context, arg CreatePreparationLotParams) (PreparationLot, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO preparation_lots (preparation_id, quantity_produced, quantity_remaining,
			cost_per_unit, production_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+lotColumns,
		arg.PreparationID, arg.QuantityProduced, arg.QuantityRemaining,
		arg.CostPerUnit, arg.ProductionDate, arg.ExpiryDate)
	return scanLot(row)
}

func (q *Queries) ListPreparationLots(ctx context.Context, preparationID uuid.UUID) ([]PreparationLot, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+lotColumns+`
		FROM preparation_lots
		WHERE preparation_id = $1
		ORDER BY expiry_date ASC, id ASC`, preparationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// LockOpenLots locks every lot with remaining quantity for the given
// preparations. Locks are taken in ascending lot id order; FIFO-by-expiry
// consumption order is decided in memory after the locks are held.
func (q *Queries) LockOpenLots(ctx context.Context, preparationIDs []uuid.UUID) ([]PreparationLot, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+lotColumns+`
		FROM preparation_lots
		WHERE preparation_id = ANY($1) AND quantity_remaining > 0
		ORDER BY id ASC
		FOR UPDATE`, preparationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// LockLots locks specific lots by id in ascending id order, including
// exhausted ones. Used by cancellation to credit back consumed lots.
func (q *Queries) LockLots(ctx context.Context, ids []uuid.UUID) ([]PreparationLot, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+lotColumns+`
		FROM preparation_lots
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

func collectLots(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]PreparationLot, error) {
	var items []PreparationLot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

type AdjustLotRemainingParams struct {
	ID    uuid.UUID
	Delta pgtype.Numeric
}

func (q *Queries) AdjustLotRemaining(ctx context.Context, arg AdjustLotRemainingParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE preparation_lots SET quantity_remaining = quantity_remaining + $2 WHERE id = $1`,
		arg.ID, arg.Delta)
	return err
}

// SumLotRemaining reports the total remaining quantity per preparation,
// used by the advisory availability computation.
func (q *Queries) SumLotRemaining(ctx context.Context, preparationIDs []uuid.UUID) (map[uuid.UUID]pgtype.Numeric, error) {
	rows, err := q.db.Query(ctx, `
		SELECT preparation_id, COALESCE(SUM(quantity_remaining), 0)
		FROM preparation_lots
		WHERE preparation_id = ANY($1)
		GROUP BY preparation_id`, preparationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[uuid.UUID]pgtype.Numeric)
	for rows.Next() {
		var id uuid.UUID
		var n pgtype.Numeric
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		sums[id] = n
	}
	return sums, rows.Err()
}
