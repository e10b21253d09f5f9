package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, price, category_id, stock_type, stock`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.StockType, &p.Stock)
	return p, err
}

type CreateProductParams struct {
	Name       string
	Price      pgtype.Numeric
	CategoryID uuid.UUID
	StockType  string
	Stock      int32
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (name, price, category_id, stock_type, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		arg.Name, arg.Price, arg.CategoryID, arg.StockType, arg.Stock)
	return scanProduct(row)
}

type UpdateProductParams struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	CategoryID uuid.UUID
	StockType  string
	Stock      int32
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET name = $2, price = $3, category_id = $4, stock_type = $5, stock = $6
		WHERE id = $1
		RETURNING `+productColumns,
		arg.ID, arg.Name, arg.Price, arg.CategoryID, arg.StockType, arg.Stock)
	return scanProduct(row)
}

func (q *Queries) DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// MenuProduct is a product joined with its category for the public menu.
type MenuProduct struct {
	Product
	CategoryName   string
	IsCustomizable bool
}

func (q *Queries) ListMenuProducts(ctx context.Context) ([]MenuProduct, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.id, p.name, p.price, p.category_id, p.stock_type, p.stock,
			c.name, c.is_customizable
		FROM products p
		JOIN categories c ON p.category_id = c.id
		ORDER BY c.display_order ASC, p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuProduct
	for rows.Next() {
		var m MenuProduct
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.CategoryID, &m.StockType, &m.Stock,
			&m.CategoryName, &m.IsCustomizable); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (q *Queries) ListCompoundProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products WHERE stock_type = 'COMPOUND' ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// LockProducts acquires exclusive row locks in ascending id order. Products
// are always the first table locked by an order transaction.
func (q *Queries) LockProducts(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type AdjustProductStockParams struct {
	ID    uuid.UUID
	Delta int32
}

func (q *Queries) AdjustProductStock(ctx context.Context, arg AdjustProductStockParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`, arg.ID, arg.Delta)
	return err
}

func (q *Queries) DeleteProductComponents(ctx context.Context, productID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM product_components WHERE product_id = $1`, productID)
	return err
}

type CreateProductComponentParams struct {
	ProductID        uuid.UUID
	ComponentID      uuid.UUID
	ComponentType    string
	QuantityRequired pgtype.Numeric
}

func (q *Queries) CreateProductComponent(ctx context.Context, arg CreateProductComponentParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO product_components (product_id, component_id, component_type, quantity_required)
		VALUES ($1, $2, $3, $4)`,
		arg.ProductID, arg.ComponentID, arg.ComponentType, arg.QuantityRequired)
	return err
}

func (q *Queries) ListProductComponents(ctx context.Context, productIDs []uuid.UUID) ([]ProductComponent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT product_id, component_id, component_type, quantity_required
		FROM product_components
		WHERE product_id = ANY($1)
		ORDER BY product_id ASC, component_type ASC, component_id ASC`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductComponent
	for rows.Next() {
		var c ProductComponent
		if err := rows.Scan(&c.ProductID, &c.ComponentID, &c.ComponentType, &c.QuantityRequired); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
