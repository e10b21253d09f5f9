package service

import (
	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductAvailability computes the maximum sellable quantity of a product.
//
// SIMPLE products carry their own counter. COMPOUND products are limited by
// the scarcest component: ingredients by stock on hand, preparations by the
// summed remaining quantity across open lots. A COMPOUND product with no
// recipe is unsellable and reports zero.
//
// The numbers are advisory (menu display, dashboard). The transaction engine
// re-checks everything under row locks before committing an order.
func ProductAvailability(
	product database.Product,
	components []database.ProductComponent,
	ingredientStock map[uuid.UUID]decimal.Decimal,
	lotRemaining map[uuid.UUID]decimal.Decimal,
) int32 {
	if product.StockType == enum.StockTypeSimple {
		return product.Stock
	}
	if len(components) == 0 {
		return 0
	}

	min := int64(-1)
	for _, c := range components {
		perUnit := NumericToDecimal(c.QuantityRequired)
		if perUnit.LessThanOrEqual(decimal.Zero) {
			continue
		}

		var onHand decimal.Decimal
		switch c.ComponentType {
		case enum.ComponentTypeIngredient:
			onHand = ingredientStock[c.ComponentID]
		case enum.ComponentTypePreparation:
			onHand = lotRemaining[c.ComponentID]
		default:
			return 0
		}

		units := onHand.Div(perUnit).IntPart()
		if units < 0 {
			units = 0
		}
		if min == -1 || units < min {
			min = units
		}
	}
	if min < 0 {
		min = 0
	}
	if min > int64(maxInt32) {
		min = int64(maxInt32)
	}
	return int32(min)
}

const maxInt32 = 1<<31 - 1
