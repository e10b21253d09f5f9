package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const ingredientColumns = `id, name, standard_unit, purchase_unit_name,
	purchase_to_standard_factor, stock, cost_per_purchase_unit, cost_per_standard_unit`

func scanIngredient(row interface{ Scan(dest ...any) error }) (Ingredient, error) {
	var i Ingredient
	err := row.Scan(&i.ID, &i.Name, &i.StandardUnit, &i.PurchaseUnitName,
		&i.PurchaseToStandardFactor, &i.Stock, &i.CostPerPurchaseUnit, &i.CostPerStandardUnit)
	return i, err
}

type CreateIngredientParams struct {
	Name                     string
	StandardUnit             string
	PurchaseUnitName         pgtype.Text
	PurchaseToStandardFactor pgtype.Numeric
	Stock                    pgtype.Numeric
	CostPerPurchaseUnit      pgtype.Numeric
	CostPerStandardUnit      pgtype.Numeric
}

func (q *Queries) CreateIngredient(ctx context.Context, arg CreateIngredientParams) (Ingredient, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO ingredients (name, standard_unit, purchase_unit_name,
			purchase_to_standard_factor, stock, cost_per_purchase_unit, cost_per_standard_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ingredientColumns,
		arg.Name, arg.StandardUnit, arg.PurchaseUnitName, arg.PurchaseToStandardFactor,
		arg.Stock, arg.CostPerPurchaseUnit, arg.CostPerStandardUnit)
	return scanIngredient(row)
}

type UpdateIngredientParams struct {
	ID                       uuid.UUID
	Name                     string
	StandardUnit             string
	PurchaseUnitName         pgtype.Text
	PurchaseToStandardFactor pgtype.Numeric
	Stock                    pgtype.Numeric
	CostPerPurchaseUnit      pgtype.Numeric
	CostPerStandardUnit      pgtype.Numeric
}

func (q *Queries) UpdateIngredient(ctx context.Context, arg UpdateIngredientParams) (Ingredient, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE ingredients
		SET name = $2, standard_unit = $3, purchase_unit_name = $4,
			purchase_to_standard_factor = $5, stock = $6,
			cost_per_purchase_unit = $7, cost_per_standard_unit = $8
		WHERE id = $1
		RETURNING `+ingredientColumns,
		arg.ID, arg.Name, arg.StandardUnit, arg.PurchaseUnitName,
		arg.PurchaseToStandardFactor, arg.Stock, arg.CostPerPurchaseUnit, arg.CostPerStandardUnit)
	return scanIngredient(row)
}

func (q *Queries) DeleteIngredient(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

func (q *Queries) GetIngredient(ctx context.Context, id uuid.UUID) (Ingredient, error) {
	row := q.db.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id)
	return scanIngredient(row)
}

func (q *Queries) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, `SELECT `+ingredientColumns+` FROM ingredients ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// LockIngredients acquires exclusive row locks in ascending id order.
// Every transaction that touches ingredient stock must go through this
// query so lock acquisition order stays canonical.
func (q *Queries) LockIngredients(ctx context.Context, ids []uuid.UUID) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type AdjustIngredientStockParams struct {
	ID    uuid.UUID
	Delta pgtype.Numeric
}

// AdjustIngredientStock adds Delta (which may be negative) to the stored
// stock. Callers must hold the row lock and have validated the resulting
// stock is non-negative; the CHECK constraint is the last line of defense.
func (q *Queries) AdjustIngredientStock(ctx context.Context, arg AdjustIngredientStockParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE ingredients SET stock = stock + $2 WHERE id = $1`, arg.ID, arg.Delta)
	return err
}

type UpsertUnitConversionParams struct {
	IngredientID     uuid.UUID
	RecipeUnitName   string
	ConversionFactor pgtype.Numeric
}

func (q *Queries) UpsertUnitConversion(ctx context.Context, arg UpsertUnitConversionParams) (UnitConversion, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO unit_conversions (ingredient_id, recipe_unit_name, conversion_factor)
		VALUES ($1, $2, $3)
		ON CONFLICT (ingredient_id, recipe_unit_name)
		DO UPDATE SET conversion_factor = EXCLUDED.conversion_factor
		RETURNING id, ingredient_id, recipe_unit_name, conversion_factor`,
		arg.IngredientID, arg.RecipeUnitName, arg.ConversionFactor)
	var c UnitConversion
	err := row.Scan(&c.ID, &c.IngredientID, &c.RecipeUnitName, &c.ConversionFactor)
	return c, err
}

func (q *Queries) ListUnitConversions(ctx context.Context, ingredientID uuid.UUID) ([]UnitConversion, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, ingredient_id, recipe_unit_name, conversion_factor
		FROM unit_conversions
		WHERE ingredient_id = $1
		ORDER BY recipe_unit_name ASC`, ingredientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UnitConversion
	for rows.Next() {
		var c UnitConversion
		if err := rows.Scan(&c.ID, &c.IngredientID, &c.RecipeUnitName, &c.ConversionFactor); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) DeleteUnitConversion(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM unit_conversions WHERE id = $1`, id)
	return tag.RowsAffected(), err
}
