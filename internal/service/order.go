package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order engine.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	SetLocalLockTimeout(ctx context.Context, d time.Duration) error
	GetDailyClosure(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	ListProductComponents(ctx context.Context, productIDs []uuid.UUID) ([]database.ProductComponent, error)
	LockIngredients(ctx context.Context, ids []uuid.UUID) ([]database.Ingredient, error)
	LockOpenLots(ctx context.Context, preparationIDs []uuid.UUID) ([]database.PreparationLot, error)
	LockLots(ctx context.Context, ids []uuid.UUID) ([]database.PreparationLot, error)
	GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error)
	AdjustProductStock(ctx context.Context, arg database.AdjustProductStockParams) error
	AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) error
	AdjustLotRemaining(ctx context.Context, arg database.AdjustLotRemainingParams) error
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderLotConsumption(ctx context.Context, arg database.CreateOrderLotConsumptionParams) error
	ListOrderLotConsumptions(ctx context.Context, orderID uuid.UUID) ([]database.OrderLotConsumption, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetOrderPaid(ctx context.Context, arg database.SetOrderPaidParams) (database.Order, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// KitchenTicket is the payload pushed to the kitchen display after an
// order (or an addition to one) commits.
type KitchenTicket struct {
	OrderID      uuid.UUID           `json:"order_id"`
	CustomerName string              `json:"customer_name"`
	Notes        string              `json:"notes,omitempty"`
	IsAddition   bool                `json:"is_addition"`
	CreatedAt    time.Time           `json:"created_at"`
	Items        []KitchenTicketItem `json:"items"`
}

// KitchenTicketItem is one line on a kitchen ticket.
type KitchenTicketItem struct {
	ProductName string   `json:"product_name"`
	Quantity    int32    `json:"quantity"`
	Sauces      []string `json:"sauces,omitempty"`
}

// KitchenNotifier delivers events to the kitchen display. Implementations
// must be non-blocking; the engine calls them only after commit and ignores
// delivery failures.
type KitchenNotifier interface {
	NotifyNewOrder(ticket KitchenTicket)
	NotifyOrderReady(orderID uuid.UUID)
	NotifyOrderRemoved(orderID uuid.UUID)
}

// SubmitOrderRequest is the validated input for submitting an order.
type SubmitOrderRequest struct {
	CustomerName  string
	CustomerID    string
	Notes         string
	PaymentMethod string
	UserID        uuid.UUID
	Items         []SubmitOrderItem
}

// SubmitOrderItem is a single line in a submitted order.
type SubmitOrderItem struct {
	ProductID string
	Quantity  int32
	Sauces    []string
}

// OrderResult is an order with its line items.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService is the order and inventory transaction engine. All stock
// mutation in the system goes through it (or through LotService, which
// follows the same locking discipline).
type OrderService struct {
	pool        TxBeginner
	newStore    NewOrderStore
	kitchen     KitchenNotifier
	lockTimeout time.Duration
	cutoffHour  int
	now         func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, kitchen KitchenNotifier, lockTimeout time.Duration, cutoffHour int) *OrderService {
	return &OrderService{
		pool:        pool,
		newStore:    newStore,
		kitchen:     kitchen,
		lockTimeout: lockTimeout,
		cutoffHour:  cutoffHour,
		now:         time.Now,
	}
}

// parsedItem is a request line after cheap validation, before any locking.
type parsedItem struct {
	productID uuid.UUID
	quantity  int32
	sauces    []string
}

// lotDraw is a planned consumption from one preparation lot.
type lotDraw struct {
	lotID         uuid.UUID
	preparationID uuid.UUID
	quantity      decimal.Decimal
}

// plannedItem is a fully validated line with its stock consequences.
type plannedItem struct {
	productID   uuid.UUID
	productName string
	quantity    int32
	unitPrice   decimal.Decimal
	sauces      []string
	lotDraws    []lotDraw
}

// lotState tracks one locked lot's remaining quantity during planning.
type lotState struct {
	lot       database.PreparationLot
	remaining decimal.Decimal
}

// stockPlan accumulates validated decrements across all lines of a request,
// so several lines drawing on the same resource are checked against the
// running remainder, not the starting stock.
type stockPlan struct {
	products    map[uuid.UUID]database.Product
	productLeft map[uuid.UUID]int32
	productUsed map[uuid.UUID]int32

	components map[uuid.UUID][]database.ProductComponent

	ingredients map[uuid.UUID]database.Ingredient
	ingLeft     map[uuid.UUID]decimal.Decimal
	ingUsed     map[uuid.UUID]decimal.Decimal

	prepNames map[uuid.UUID]string
	lots      map[uuid.UUID][]*lotState // preparation id -> lots in consumption order
	lotUsed   map[uuid.UUID]decimal.Decimal
}

// Submit validates an incoming order against live stock, decrements stock
// and lots, persists the order with its items, and notifies the kitchen.
// Everything up to the notification happens in one transaction under row
// locks; the kitchen ticket fires strictly after commit.
func (s *OrderService) Submit(ctx context.Context, req SubmitOrderRequest) (*OrderResult, error) {
	parsed, err := parseItems(req.Items)
	if err != nil {
		return nil, err
	}

	var customerID pgtype.UUID
	if req.CustomerID != "" {
		cid, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, ErrInvalidCustomerID
		}
		customerID = pgtype.UUID{Bytes: cid, Valid: true}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLocalLockTimeout(ctx, s.lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	if err := s.assertDayOpen(ctx, store); err != nil {
		return nil, err
	}

	plan, items, total, err := s.lockAndPlan(ctx, store, parsed)
	if err != nil {
		return nil, err
	}

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}
	payment := pgtype.Text{}
	if req.PaymentMethod != "" {
		payment = pgtype.Text{String: req.PaymentMethod, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:    customerID,
		CustomerName:  req.CustomerName,
		Total:         DecimalToNumeric(total),
		Notes:         notes,
		Status:        enum.OrderStatusPending,
		PaymentMethod: payment,
		UserID:        req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	created, err := s.apply(ctx, store, order.ID, plan, items)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifyTicket(order, items, false)

	return &OrderResult{Order: order, Items: created}, nil
}

// AddItems appends lines to an existing order, consuming stock for the new
// lines only. The order returns to pending so the kitchen makes the
// addition, and the stored total grows by the added lines.
func (s *OrderService) AddItems(ctx context.Context, orderID uuid.UUID, reqItems []SubmitOrderItem) (*OrderResult, error) {
	parsed, err := parseItems(reqItems)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLocalLockTimeout(ctx, s.lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	if err := s.assertDayOpen(ctx, store); err != nil {
		return nil, err
	}

	// Order row first, then stock rows, same as every other path.
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapLockErr(err)
	}
	switch order.Status {
	case enum.OrderStatusPaid, enum.OrderStatusCancelled:
		return nil, ErrOrderNotModifiable
	}

	plan, items, added, err := s.lockAndPlan(ctx, store, parsed)
	if err != nil {
		return nil, err
	}

	created, err := s.apply(ctx, store, order.ID, plan, items)
	if err != nil {
		return nil, err
	}

	total := NumericToDecimal(order.Total).Add(added)
	order, err = store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:     order.ID,
		Total:  DecimalToNumeric(total),
		Status: enum.OrderStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("update order total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifyTicket(order, items, true)

	return &OrderResult{Order: order, Items: created}, nil
}

// MarkReady moves a pending order out of the kitchen: to serving when the
// payment method is still unknown, straight to completed when it was fixed
// at submission.
func (s *OrderService) MarkReady(ctx context.Context, orderID uuid.UUID) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapLockErr(err)
	}
	if order.Status != enum.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	next := enum.OrderStatusServing
	if order.PaymentMethod.Valid {
		next = enum.OrderStatusCompleted
	}
	order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: orderID, Status: next})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if s.kitchen != nil {
		s.kitchen.NotifyOrderReady(orderID)
	}
	return &order, nil
}

// Pay settles a serving or completed order, fixing the payment method if it
// was not chosen at submission.
func (s *OrderService) Pay(ctx context.Context, orderID uuid.UUID, paymentMethod string) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapLockErr(err)
	}
	switch order.Status {
	case enum.OrderStatusServing, enum.OrderStatusCompleted:
	case enum.OrderStatusCancelled:
		return nil, ErrOrderCancelled
	default:
		return nil, ErrOrderNotPayable
	}
	if !order.PaymentMethod.Valid && paymentMethod == "" {
		return nil, ErrMissingPayment
	}

	method := pgtype.Text{}
	if paymentMethod != "" {
		method = pgtype.Text{String: paymentMethod, Valid: true}
	}
	order, err = store.SetOrderPaid(ctx, database.SetOrderPaidParams{ID: orderID, PaymentMethod: method})
	if err != nil {
		return nil, fmt.Errorf("set order paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &order, nil
}

// Cancel voids an order and credits back every unit of stock it consumed:
// SIMPLE product counters and recipe ingredients by re-expanding the stored
// lines, preparation lots exactly as recorded when the order was taken.
// Paid and already-cancelled orders are rejected, never double-credited.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLocalLockTimeout(ctx, s.lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapLockErr(err)
	}
	switch order.Status {
	case enum.OrderStatusPaid:
		return nil, ErrOrderNotCancellable
	case enum.OrderStatusCancelled:
		return nil, ErrOrderCancelled
	}

	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	consumptions, err := store.ListOrderLotConsumptions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list lot consumptions: %w", err)
	}

	productIDs := distinct(items, func(it database.OrderItem) uuid.UUID { return it.ProductID })
	products, err := store.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, mapLockErr(err)
	}
	productByID := make(map[uuid.UUID]database.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	var compoundIDs []uuid.UUID
	for _, p := range products {
		if p.StockType == enum.StockTypeCompound {
			compoundIDs = append(compoundIDs, p.ID)
		}
	}
	components := map[uuid.UUID][]database.ProductComponent{}
	if len(compoundIDs) > 0 {
		rows, err := store.ListProductComponents(ctx, compoundIDs)
		if err != nil {
			return nil, fmt.Errorf("list product components: %w", err)
		}
		for _, c := range rows {
			components[c.ProductID] = append(components[c.ProductID], c)
		}
	}

	// Ingredient credit = re-expansion of each line's recipe.
	ingCredit := map[uuid.UUID]decimal.Decimal{}
	productCredit := map[uuid.UUID]int32{}
	for _, it := range items {
		p, ok := productByID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.StockType == enum.StockTypeSimple {
			productCredit[p.ID] += it.Quantity
			continue
		}
		qty := decimal.NewFromInt32(it.Quantity)
		for _, c := range components[p.ID] {
			if c.ComponentType != enum.ComponentTypeIngredient {
				continue
			}
			ingCredit[c.ComponentID] = ingCredit[c.ComponentID].Add(NumericToDecimal(c.QuantityRequired).Mul(qty))
		}
	}

	ingIDs := make([]uuid.UUID, 0, len(ingCredit))
	for id := range ingCredit {
		ingIDs = append(ingIDs, id)
	}
	if len(ingIDs) > 0 {
		if _, err := store.LockIngredients(ctx, ingIDs); err != nil {
			return nil, mapLockErr(err)
		}
	}

	lotCredit := map[uuid.UUID]decimal.Decimal{}
	for _, c := range consumptions {
		lotCredit[c.LotID] = lotCredit[c.LotID].Add(NumericToDecimal(c.Quantity))
	}
	lotIDs := make([]uuid.UUID, 0, len(lotCredit))
	for id := range lotCredit {
		lotIDs = append(lotIDs, id)
	}
	if len(lotIDs) > 0 {
		if _, err := store.LockLots(ctx, lotIDs); err != nil {
			return nil, mapLockErr(err)
		}
	}

	for id, qty := range productCredit {
		if err := store.AdjustProductStock(ctx, database.AdjustProductStockParams{ID: id, Delta: qty}); err != nil {
			return nil, fmt.Errorf("credit product stock: %w", err)
		}
	}
	for id, qty := range ingCredit {
		if err := store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{ID: id, Delta: QuantityToNumeric(qty)}); err != nil {
			return nil, fmt.Errorf("credit ingredient stock: %w", err)
		}
	}
	for id, qty := range lotCredit {
		if err := store.AdjustLotRemaining(ctx, database.AdjustLotRemainingParams{ID: id, Delta: QuantityToNumeric(qty)}); err != nil {
			return nil, fmt.Errorf("credit lot: %w", err)
		}
	}

	order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: orderID, Status: enum.OrderStatusCancelled})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if s.kitchen != nil {
		s.kitchen.NotifyOrderRemoved(orderID)
	}
	return &order, nil
}

// assertDayOpen rejects writes for a business day whose closure is final.
func (s *OrderService) assertDayOpen(ctx context.Context, store OrderStore) error {
	date := BusinessDate(s.now(), s.cutoffHour)
	closure, err := store.GetDailyClosure(ctx, date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // no closure row yet, day is open
		}
		return fmt.Errorf("get daily closure: %w", err)
	}
	if closure.Status == enum.ClosureStatusClosed {
		return ErrDayClosed
	}
	return nil
}

func parseItems(items []SubmitOrderItem) ([]parsedItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	parsed := make([]parsedItem, 0, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}
		parsed = append(parsed, parsedItem{productID: pid, quantity: it.Quantity, sauces: it.Sauces})
	}
	return parsed, nil
}

// lockAndPlan locks every product, ingredient and open lot the request
// touches (each group in ascending id order) and walks the lines in request
// order, checking each against the running remainder. The first shortfall
// aborts the whole request. Returns the plan, the per-line consequences and
// the order total.
func (s *OrderService) lockAndPlan(ctx context.Context, store OrderStore, parsed []parsedItem) (*stockPlan, []plannedItem, decimal.Decimal, error) {
	plan := &stockPlan{
		products:    map[uuid.UUID]database.Product{},
		productLeft: map[uuid.UUID]int32{},
		productUsed: map[uuid.UUID]int32{},
		components:  map[uuid.UUID][]database.ProductComponent{},
		ingredients: map[uuid.UUID]database.Ingredient{},
		ingLeft:     map[uuid.UUID]decimal.Decimal{},
		ingUsed:     map[uuid.UUID]decimal.Decimal{},
		prepNames:   map[uuid.UUID]string{},
		lots:        map[uuid.UUID][]*lotState{},
		lotUsed:     map[uuid.UUID]decimal.Decimal{},
	}

	productIDs := distinct(parsed, func(it parsedItem) uuid.UUID { return it.productID })
	products, err := store.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, nil, decimal.Zero, mapLockErr(err)
	}
	for _, p := range products {
		plan.products[p.ID] = p
		plan.productLeft[p.ID] = p.Stock
	}
	for i, it := range parsed {
		if _, ok := plan.products[it.productID]; !ok {
			return nil, nil, decimal.Zero, fmt.Errorf("item[%d]: %w", i, ErrProductNotFound)
		}
	}

	var compoundIDs []uuid.UUID
	for _, p := range products {
		if p.StockType == enum.StockTypeCompound {
			compoundIDs = append(compoundIDs, p.ID)
		}
	}
	var ingIDs, prepIDs []uuid.UUID
	if len(compoundIDs) > 0 {
		rows, err := store.ListProductComponents(ctx, compoundIDs)
		if err != nil {
			return nil, nil, decimal.Zero, fmt.Errorf("list product components: %w", err)
		}
		seenIng := map[uuid.UUID]bool{}
		seenPrep := map[uuid.UUID]bool{}
		for _, c := range rows {
			plan.components[c.ProductID] = append(plan.components[c.ProductID], c)
			switch c.ComponentType {
			case enum.ComponentTypeIngredient:
				if !seenIng[c.ComponentID] {
					seenIng[c.ComponentID] = true
					ingIDs = append(ingIDs, c.ComponentID)
				}
			case enum.ComponentTypePreparation:
				if !seenPrep[c.ComponentID] {
					seenPrep[c.ComponentID] = true
					prepIDs = append(prepIDs, c.ComponentID)
				}
			default:
				return nil, nil, decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidComponentType, c.ComponentType)
			}
		}
	}

	// Ingredient rows before lot rows, both ascending by id.
	if len(ingIDs) > 0 {
		ingredients, err := store.LockIngredients(ctx, ingIDs)
		if err != nil {
			return nil, nil, decimal.Zero, mapLockErr(err)
		}
		for _, ing := range ingredients {
			plan.ingredients[ing.ID] = ing
			plan.ingLeft[ing.ID] = NumericToDecimal(ing.Stock)
		}
		for _, id := range ingIDs {
			if _, ok := plan.ingredients[id]; !ok {
				return nil, nil, decimal.Zero, fmt.Errorf("%w: %s", ErrIngredientNotFound, id)
			}
		}
	}
	if len(prepIDs) > 0 {
		for _, id := range prepIDs {
			prep, err := store.GetPreparation(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, nil, decimal.Zero, fmt.Errorf("%w: %s", ErrPreparationNotFound, id)
				}
				return nil, nil, decimal.Zero, fmt.Errorf("get preparation: %w", err)
			}
			plan.prepNames[id] = prep.Name
		}
		lots, err := store.LockOpenLots(ctx, prepIDs)
		if err != nil {
			return nil, nil, decimal.Zero, mapLockErr(err)
		}
		for _, lot := range lots {
			plan.lots[lot.PreparationID] = append(plan.lots[lot.PreparationID], &lotState{
				lot:       lot,
				remaining: NumericToDecimal(lot.QuantityRemaining),
			})
		}
		// Locks are taken by id; consumption order is earliest expiry first.
		for _, states := range plan.lots {
			sort.Slice(states, func(a, b int) bool {
				if !states[a].lot.ExpiryDate.Equal(states[b].lot.ExpiryDate) {
					return states[a].lot.ExpiryDate.Before(states[b].lot.ExpiryDate)
				}
				return states[a].lot.ID.String() < states[b].lot.ID.String()
			})
		}
	}

	total := decimal.Zero
	items := make([]plannedItem, 0, len(parsed))
	for i, it := range parsed {
		p := plan.products[it.productID]
		item := plannedItem{
			productID:   p.ID,
			productName: p.Name,
			quantity:    it.quantity,
			unitPrice:   NumericToDecimal(p.Price),
			sauces:      it.sauces,
		}

		switch p.StockType {
		case enum.StockTypeSimple:
			if plan.productLeft[p.ID] < it.quantity {
				return nil, nil, decimal.Zero, &InsufficientStockError{
					Resource:  "product",
					ID:        p.ID,
					Name:      p.Name,
					Available: decimal.NewFromInt32(plan.productLeft[p.ID]),
					Required:  decimal.NewFromInt32(it.quantity),
				}
			}
			plan.productLeft[p.ID] -= it.quantity
			plan.productUsed[p.ID] += it.quantity

		case enum.StockTypeCompound:
			comps := plan.components[p.ID]
			if len(comps) == 0 {
				return nil, nil, decimal.Zero, &UnsellableProductError{ID: p.ID, Name: p.Name}
			}
			qty := decimal.NewFromInt32(it.quantity)
			for _, c := range comps {
				required := NumericToDecimal(c.QuantityRequired).Mul(qty)
				switch c.ComponentType {
				case enum.ComponentTypeIngredient:
					ing := plan.ingredients[c.ComponentID]
					left := plan.ingLeft[c.ComponentID]
					if left.LessThan(required) {
						return nil, nil, decimal.Zero, &InsufficientStockError{
							Resource:  "ingredient",
							ID:        ing.ID,
							Name:      ing.Name,
							Available: left,
							Required:  required,
						}
					}
					plan.ingLeft[c.ComponentID] = left.Sub(required)
					plan.ingUsed[c.ComponentID] = plan.ingUsed[c.ComponentID].Add(required)

				case enum.ComponentTypePreparation:
					draws, err := drawFromLots(plan, c.ComponentID, required)
					if err != nil {
						return nil, nil, decimal.Zero, err
					}
					item.lotDraws = append(item.lotDraws, draws...)
				}
			}

		default:
			return nil, nil, decimal.Zero, fmt.Errorf("item[%d]: unknown stock type %q", i, p.StockType)
		}

		total = total.Add(item.unitPrice.Mul(decimal.NewFromInt32(it.quantity)))
		items = append(items, item)
	}

	return plan, items, total, nil
}

// drawFromLots takes required units of a preparation from its open lots,
// earliest expiry first, mutating the plan's running remainders.
func drawFromLots(plan *stockPlan, prepID uuid.UUID, required decimal.Decimal) ([]lotDraw, error) {
	available := decimal.Zero
	for _, st := range plan.lots[prepID] {
		available = available.Add(st.remaining)
	}
	if available.LessThan(required) {
		return nil, &InsufficientStockError{
			Resource:  "preparation",
			ID:        prepID,
			Name:      plan.prepNames[prepID],
			Available: available,
			Required:  required,
		}
	}

	var draws []lotDraw
	left := required
	for _, st := range plan.lots[prepID] {
		if left.LessThanOrEqual(decimal.Zero) {
			break
		}
		if st.remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(st.remaining, left)
		st.remaining = st.remaining.Sub(take)
		left = left.Sub(take)
		plan.lotUsed[st.lot.ID] = plan.lotUsed[st.lot.ID].Add(take)
		draws = append(draws, lotDraw{lotID: st.lot.ID, preparationID: prepID, quantity: take})
	}
	return draws, nil
}

// apply persists the planned items and decrements every touched resource.
// Must run inside the transaction that planned them.
func (s *OrderService) apply(ctx context.Context, store OrderStore, orderID uuid.UUID, plan *stockPlan, items []plannedItem) ([]database.OrderItem, error) {
	created := make([]database.OrderItem, 0, len(items))
	for i, it := range items {
		sauces := it.sauces
		if sauces == nil {
			sauces = []string{}
		}
		saucesJSON, err := json.Marshal(sauces)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: marshal sauces: %w", i, err)
		}
		row, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     orderID,
			ProductID:   it.productID,
			Quantity:    it.quantity,
			PriceAtTime: DecimalToNumeric(it.unitPrice),
			Sauces:      saucesJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order item: %w", i, err)
		}
		for _, d := range it.lotDraws {
			err := store.CreateOrderLotConsumption(ctx, database.CreateOrderLotConsumptionParams{
				OrderID:       orderID,
				OrderItemID:   row.ID,
				LotID:         d.lotID,
				PreparationID: d.preparationID,
				Quantity:      QuantityToNumeric(d.quantity),
			})
			if err != nil {
				return nil, fmt.Errorf("item[%d]: record lot consumption: %w", i, err)
			}
		}
		created = append(created, row)
	}

	for id, used := range plan.productUsed {
		if err := store.AdjustProductStock(ctx, database.AdjustProductStockParams{ID: id, Delta: -used}); err != nil {
			return nil, fmt.Errorf("decrement product stock: %w", err)
		}
	}
	for id, used := range plan.ingUsed {
		if err := store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{ID: id, Delta: QuantityToNumeric(used.Neg())}); err != nil {
			return nil, fmt.Errorf("decrement ingredient stock: %w", err)
		}
	}
	for id, used := range plan.lotUsed {
		if err := store.AdjustLotRemaining(ctx, database.AdjustLotRemainingParams{ID: id, Delta: QuantityToNumeric(used.Neg())}); err != nil {
			return nil, fmt.Errorf("decrement lot: %w", err)
		}
	}
	return created, nil
}

func (s *OrderService) notifyTicket(order database.Order, items []plannedItem, isAddition bool) {
	if s.kitchen == nil {
		return
	}
	ticket := KitchenTicket{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		Notes:        order.Notes.String,
		IsAddition:   isAddition,
		CreatedAt:    order.CreatedAt,
	}
	for _, it := range items {
		ticket.Items = append(ticket.Items, KitchenTicketItem{
			ProductName: it.productName,
			Quantity:    it.quantity,
			Sauces:      it.sauces,
		})
	}
	s.kitchen.NotifyNewOrder(ticket)
}

// distinct collects unique ids from a slice, preserving first-seen order.
// The lock queries sort server-side, so input order does not matter.
func distinct[T any](items []T, id func(T) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		k := id(it)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
