package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Validation errors, rejected before any lock is taken.
var (
	ErrEmptyItems        = errors.New("items are required")
	ErrInvalidQuantity   = errors.New("quantity must be > 0")
	ErrInvalidProductID  = errors.New("invalid product_id")
	ErrInvalidUnitPrice  = errors.New("invalid unit_price")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCustomerID = errors.New("invalid customer_id")
	ErrMissingPayment    = errors.New("payment_method is required")
)

// Business-rule errors.
var (
	ErrDayClosed            = errors.New("the business day is closed, no new orders are accepted")
	ErrProductNotFound      = errors.New("product not found")
	ErrIngredientNotFound   = errors.New("ingredient not found")
	ErrPreparationNotFound  = errors.New("preparation not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotPending      = errors.New("order is not pending")
	ErrOrderNotPayable      = errors.New("order is not awaiting payment")
	ErrOrderNotModifiable   = errors.New("order can no longer be modified")
	ErrOrderNotCancellable  = errors.New("order cannot be cancelled")
	ErrOrderCancelled       = errors.New("order is already cancelled")
	ErrSessionAlreadyOpen   = errors.New("a cashier session is already open for this business day")
	ErrSessionNotFound      = errors.New("cashier session not found")
	ErrSessionNotOpen       = errors.New("cashier session is not open")
	ErrSessionNotPending    = errors.New("cashier session is not pending approval")
	ErrClosureNotFound      = errors.New("no closure record for that date")
	ErrUnknownRecipeUnit    = errors.New("no conversion defined for recipe unit")
	ErrNoPurchaseFactor     = errors.New("purchase-to-standard factor is not set")
	ErrInvalidComponentType = errors.New("invalid component_type")
)

// ErrLockTimeout is transient: the transaction could not acquire its row
// locks within the configured bound. Safe to retry; stock is untouched.
var ErrLockTimeout = errors.New("could not lock stock rows in time, please retry")

// InsufficientStockError reports the first violated stock constraint found
// while validating an order. Resource is "product", "ingredient" or
// "preparation".
type InsufficientStockError struct {
	Resource  string
	ID        uuid.UUID
	Name      string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %s %q: need %s, have %s",
		e.Resource, e.Name, e.Required.String(), e.Available.String())
}

// UnsellableProductError marks a COMPOUND product with no recipe. Such a
// product is unsellable, not free.
type UnsellableProductError struct {
	ID   uuid.UUID
	Name string
}

func (e *UnsellableProductError) Error() string {
	return fmt.Sprintf("product %q has no recipe and cannot be sold", e.Name)
}

// MissingRecipeError marks a preparation whose recipe is empty at
// production or resolution time.
type MissingRecipeError struct {
	ID   uuid.UUID
	Name string
}

func (e *MissingRecipeError) Error() string {
	return fmt.Sprintf("preparation %q has no recipe", e.Name)
}

// CyclicRecipeError reports a preparation that transitively contains
// itself. Checked when a recipe is saved and again whenever the graph
// is resolved.
type CyclicRecipeError struct {
	PreparationID uuid.UUID
}

func (e *CyclicRecipeError) Error() string {
	return fmt.Sprintf("recipe cycle detected through preparation %s", e.PreparationID)
}

// isLockNotAvailable matches PostgreSQL's lock_timeout error (55P03).
func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// mapLockErr folds lock-timeout failures into the retryable sentinel and
// leaves every other error untouched.
func mapLockErr(err error) error {
	if isLockNotAvailable(err) {
		return ErrLockTimeout
	}
	return err
}
