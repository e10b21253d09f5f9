package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, customer_name, total, notes, status, payment_method, user_id, created_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.Total, &o.Notes,
		&o.Status, &o.PaymentMethod, &o.UserID, &o.CreatedAt)
	return o, err
}

type CreateOrderParams struct {
	CustomerID    pgtype.UUID
	CustomerName  string
	Total         pgtype.Numeric
	Notes         pgtype.Text
	Status        string
	PaymentMethod pgtype.Text
	UserID        uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (customer_id, customer_name, total, notes, status, payment_method, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		arg.CustomerID, arg.CustomerName, arg.Total, arg.Notes, arg.Status, arg.PaymentMethod, arg.UserID)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	Quantity    int32
	PriceAtTime pgtype.Numeric
	Sauces      []byte
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_time, sauces)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_id, product_id, quantity, price_at_time, sauces`,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.PriceAtTime, arg.Sauces)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Quantity, &i.PriceAtTime, &i.Sauces)
	return i, err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for a lifecycle transition. The
// order row is always locked before any product/ingredient/lot row.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price_at_time, sauces
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Quantity, &i.PriceAtTime, &i.Sauces); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.Status)
	return scanOrder(row)
}

type SetOrderPaidParams struct {
	ID            uuid.UUID
	PaymentMethod pgtype.Text
}

func (q *Queries) SetOrderPaid(ctx context.Context, arg SetOrderPaidParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'paid', payment_method = COALESCE(payment_method, $2)
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.PaymentMethod)
	return scanOrder(row)
}

type UpdateOrderTotalParams struct {
	ID     uuid.UUID
	Total  pgtype.Numeric
	Status string
}

func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET total = $2, status = $3 WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.Total, arg.Status)
	return scanOrder(row)
}

type CreateOrderLotConsumptionParams struct {
	OrderID       uuid.UUID
	OrderItemID   uuid.UUID
	LotID         uuid.UUID
	PreparationID uuid.UUID
	Quantity      pgtype.Numeric
}

func (q *Queries) CreateOrderLotConsumption(ctx context.Context, arg CreateOrderLotConsumptionParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO order_lot_consumptions (order_id, order_item_id, lot_id, preparation_id, quantity)
		VALUES ($1, $2, $3, $4, $5)`,
		arg.OrderID, arg.OrderItemID, arg.LotID, arg.PreparationID, arg.Quantity)
	return err
}

func (q *Queries) ListOrderLotConsumptions(ctx context.Context, orderID uuid.UUID) ([]OrderLotConsumption, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, order_item_id, lot_id, preparation_id, quantity
		FROM order_lot_consumptions
		WHERE order_id = $1
		ORDER BY lot_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLotConsumption
	for rows.Next() {
		var c OrderLotConsumption
		if err := rows.Scan(&c.ID, &c.OrderID, &c.OrderItemID, &c.LotID, &c.PreparationID, &c.Quantity); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// PendingOrderItem carries the product name for kitchen tickets.
type PendingOrderItem struct {
	OrderID     uuid.UUID
	ProductName string
	Quantity    int32
	Sauces      []byte
}

func (q *Queries) ListPendingOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (q *Queries) ListPendingOrderItems(ctx context.Context, orderIDs []uuid.UUID) ([]PendingOrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT oi.order_id, p.name, oi.quantity, oi.sauces
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id ASC, oi.id ASC`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingOrderItem
	for rows.Next() {
		var i PendingOrderItem
		if err := rows.Scan(&i.OrderID, &i.ProductName, &i.Quantity, &i.Sauces); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// ── Reporting queries ──

type DateRangeParams struct {
	Start pgtype.Timestamptz
	End   pgtype.Timestamptz
	// UserID filters to one cashier's orders when valid (cashiers only see
	// their own sales; admins see everything).
	UserID pgtype.UUID
}

func (q *Queries) SumSales(ctx context.Context, arg DateRangeParams) (pgtype.Numeric, error) {
	row := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
			AND status <> 'cancelled'
			AND ($3::uuid IS NULL OR user_id = $3)`,
		arg.Start, arg.End, arg.UserID)
	var n pgtype.Numeric
	err := row.Scan(&n)
	return n, err
}

func (q *Queries) ListOrdersInRange(ctx context.Context, arg DateRangeParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
			AND ($3::uuid IS NULL OR user_id = $3)
		ORDER BY created_at DESC`,
		arg.Start, arg.End, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

type ProductSalesRow struct {
	Name         string
	TotalSold    int64
	TotalRevenue pgtype.Numeric
}

func (q *Queries) ProductSalesReport(ctx context.Context, arg DateRangeParams) ([]ProductSalesRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.name, SUM(oi.quantity), SUM(oi.quantity * oi.price_at_time)
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		JOIN orders o ON oi.order_id = o.id
		WHERE o.created_at >= $1 AND o.created_at < $2
			AND o.status <> 'cancelled'
			AND ($3::uuid IS NULL OR o.user_id = $3)
		GROUP BY p.id, p.name
		ORDER BY SUM(oi.quantity) DESC`,
		arg.Start, arg.End, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductSalesRow
	for rows.Next() {
		var r ProductSalesRow
		if err := rows.Scan(&r.Name, &r.TotalSold, &r.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type PaymentMethodRow struct {
	PaymentMethod    string
	TransactionCount int64
	TotalRevenue     pgtype.Numeric
}

func (q *Queries) PaymentMethodReport(ctx context.Context, arg DateRangeParams) ([]PaymentMethodRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT payment_method, COUNT(*), SUM(total)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
			AND status <> 'cancelled'
			AND payment_method IS NOT NULL
			AND ($3::uuid IS NULL OR user_id = $3)
		GROUP BY payment_method
		ORDER BY SUM(total) DESC`,
		arg.Start, arg.End, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentMethodRow
	for rows.Next() {
		var r PaymentMethodRow
		if err := rows.Scan(&r.PaymentMethod, &r.TransactionCount, &r.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
