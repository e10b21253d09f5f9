package service

import (
	"context"
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

// ProductionStore defines the DB methods needed to produce lots.
// Satisfied by *database.Queries (and its WithTx variant).
type ProductionStore interface {
	SetLocalLockTimeout(ctx context.Context, d time.Duration) error
	GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error)
	ListPreparationComponents(ctx context.Context, preparationID uuid.UUID) ([]database.PreparationComponent, error)
	LockIngredients(ctx context.Context, ids []uuid.UUID) ([]database.Ingredient, error)
	LockOpenLots(ctx context.Context, preparationIDs []uuid.UUID) ([]database.PreparationLot, error)
	AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) error
	AdjustLotRemaining(ctx context.Context, arg database.AdjustLotRemainingParams) error
	CreatePreparationLot(ctx context.Context, arg database.CreatePreparationLotParams) (database.PreparationLot, error)
}

// NewProductionStore creates a ProductionStore from a DBTX (pool or tx).
type NewProductionStore func(db database.DBTX) ProductionStore

// LotService produces preparation lots, consuming the recipe's ingredients
// and any nested preparations' open lots under the same locking discipline
// as order submission.
type LotService struct {
	pool        TxBeginner
	newStore    NewProductionStore
	lockTimeout time.Duration
	now         func() time.Time
}

// NewLotService creates a new LotService.
func NewLotService(pool TxBeginner, newStore NewProductionStore, lockTimeout time.Duration) *LotService {
	return &LotService{pool: pool, newStore: newStore, lockTimeout: lockTimeout, now: time.Now}
}

// ProduceLot makes `batches` batches of a preparation. One batch consumes
// the recipe as stored and yields recipe_yield output units. The new lot's
// cost per unit is the consumed ingredient and lot cost divided by the
// output quantity, and its expiry follows the preparation's shelf life.
func (s *LotService) ProduceLot(ctx context.Context, preparationID uuid.UUID, batches int32) (*database.PreparationLot, error) {
	if batches <= 0 {
		return nil, ErrInvalidQuantity
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

	prep, err := store.GetPreparation(ctx, preparationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreparationNotFound
		}
		return nil, fmt.Errorf("get preparation: %w", err)
	}

	comps, err := store.ListPreparationComponents(ctx, preparationID)
	if err != nil {
		return nil, fmt.Errorf("list preparation components: %w", err)
	}
	if len(comps) == 0 {
		return nil, &MissingRecipeError{ID: prep.ID, Name: prep.Name}
	}

	scale := decimal.NewFromInt32(batches)
	var ingIDs, prepIDs []uuid.UUID
	ingNeed := map[uuid.UUID]decimal.Decimal{}
	prepNeed := map[uuid.UUID]decimal.Decimal{}
	for _, c := range comps {
		required := NumericToDecimal(c.QuantityRequired).Mul(scale)
		switch c.ComponentType {
		case enum.ComponentTypeIngredient:
			if _, ok := ingNeed[c.ComponentID]; !ok {
				ingIDs = append(ingIDs, c.ComponentID)
			}
			ingNeed[c.ComponentID] = ingNeed[c.ComponentID].Add(required)
		case enum.ComponentTypePreparation:
			if _, ok := prepNeed[c.ComponentID]; !ok {
				prepIDs = append(prepIDs, c.ComponentID)
			}
			prepNeed[c.ComponentID] = prepNeed[c.ComponentID].Add(required)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidComponentType, c.ComponentType)
		}
	}

	totalCost := decimal.Zero

	if len(ingIDs) > 0 {
		ingredients, err := store.LockIngredients(ctx, ingIDs)
		if err != nil {
			return nil, mapLockErr(err)
		}
		byID := make(map[uuid.UUID]database.Ingredient, len(ingredients))
		for _, ing := range ingredients {
			byID[ing.ID] = ing
		}
		for _, id := range ingIDs {
			ing, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, id)
			}
			need := ingNeed[id]
			stock := NumericToDecimal(ing.Stock)
			if stock.LessThan(need) {
				return nil, &InsufficientStockError{
					Resource:  "ingredient",
					ID:        ing.ID,
					Name:      ing.Name,
					Available: stock,
					Required:  need,
				}
			}
			totalCost = totalCost.Add(NumericToDecimal(ing.CostPerStandardUnit).Mul(need))
		}
	}

	var draws []lotDraw
	if len(prepIDs) > 0 {
		lots, err := store.LockOpenLots(ctx, prepIDs)
		if err != nil {
			return nil, mapLockErr(err)
		}
		states := map[uuid.UUID][]*lotState{}
		costs := map[uuid.UUID]decimal.Decimal{}
		for _, lot := range lots {
			states[lot.PreparationID] = append(states[lot.PreparationID], &lotState{
				lot:       lot,
				remaining: NumericToDecimal(lot.QuantityRemaining),
			})
			costs[lot.ID] = NumericToDecimal(lot.CostPerUnit)
		}
		for _, sts := range states {
			sort.Slice(sts, func(a, b int) bool {
				if !sts[a].lot.ExpiryDate.Equal(sts[b].lot.ExpiryDate) {
					return sts[a].lot.ExpiryDate.Before(sts[b].lot.ExpiryDate)
				}
				return sts[a].lot.ID.String() < sts[b].lot.ID.String()
			})
		}
		for _, id := range prepIDs {
			sub, err := store.GetPreparation(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("%w: %s", ErrPreparationNotFound, id)
				}
				return nil, fmt.Errorf("get preparation: %w", err)
			}
			plan := &stockPlan{
				prepNames: map[uuid.UUID]string{id: sub.Name},
				lots:      states,
				lotUsed:   map[uuid.UUID]decimal.Decimal{},
			}
			subDraws, err := drawFromLots(plan, id, prepNeed[id])
			if err != nil {
				return nil, err
			}
			for _, d := range subDraws {
				totalCost = totalCost.Add(costs[d.lotID].Mul(d.quantity))
			}
			draws = append(draws, subDraws...)
		}
	}

	yield := NumericToDecimal(prep.RecipeYield)
	if yield.LessThanOrEqual(decimal.Zero) {
		yield = decimal.NewFromInt(1)
	}
	output := yield.Mul(scale)
	costPerUnit := totalCost.DivRound(output, 6)

	for id, need := range ingNeed {
		if err := store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{ID: id, Delta: QuantityToNumeric(need.Neg())}); err != nil {
			return nil, fmt.Errorf("decrement ingredient stock: %w", err)
		}
	}
	for _, d := range draws {
		if err := store.AdjustLotRemaining(ctx, database.AdjustLotRemainingParams{ID: d.lotID, Delta: QuantityToNumeric(d.quantity.Neg())}); err != nil {
			return nil, fmt.Errorf("decrement lot: %w", err)
		}
	}

	now := s.now()
	lot, err := store.CreatePreparationLot(ctx, database.CreatePreparationLotParams{
		PreparationID:     prep.ID,
		QuantityProduced:  QuantityToNumeric(output),
		QuantityRemaining: QuantityToNumeric(output),
		CostPerUnit:       CostToNumeric(costPerUnit),
		ProductionDate:    pgtype.Timestamptz{Time: now, Valid: true},
		ExpiryDate:        pgtype.Timestamptz{Time: now.AddDate(0, 0, int(prep.EstimatedExpiryDays)), Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &lot, nil
}
