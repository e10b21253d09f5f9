package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, username, password_hash, full_name, role, is_active`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.IsActive)
	return u, err
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = $1 AND is_active = true`, username)
	return scanUser(row)
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
	FullName     string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING `+userColumns,
		arg.Username, arg.PasswordHash, arg.FullName, arg.Role)
	return scanUser(row)
}

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// ── Categories ──

const categoryColumns = `id, name, display_name, display_order, is_customizable`

func scanCategory(row interface{ Scan(dest ...any) error }) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.DisplayOrder, &c.IsCustomizable)
	return c, err
}

type CreateCategoryParams struct {
	Name           string
	DisplayName    string
	DisplayOrder   int32
	IsCustomizable bool
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO categories (name, display_name, display_order, is_customizable)
		VALUES ($1, $2, $3, $4)
		RETURNING `+categoryColumns,
		arg.Name, arg.DisplayName, arg.DisplayOrder, arg.IsCustomizable)
	return scanCategory(row)
}

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+categoryColumns+` FROM categories ORDER BY display_order ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

// ── Sauces ──

func (q *Queries) CreateSauce(ctx context.Context, name string) (Sauce, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO sauces (name) VALUES ($1) RETURNING id, name`, name)
	var s Sauce
	err := row.Scan(&s.ID, &s.Name)
	return s, err
}

func (q *Queries) ListSauces(ctx context.Context) ([]Sauce, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name FROM sauces ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sauce
	for rows.Next() {
		var s Sauce
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (q *Queries) DeleteSauce(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM sauces WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

// ── Payment methods ──

func (q *Queries) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name FROM payment_methods ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
