package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ComponentRef identifies a recipe component without the loosely-typed
// (component_id, component_type) pair leaking past the database layer.
type ComponentRef struct {
	Type string // enum.ComponentTypeIngredient or enum.ComponentTypePreparation
	ID   uuid.UUID
}

func IngredientRef(id uuid.UUID) ComponentRef {
	return ComponentRef{Type: enum.ComponentTypeIngredient, ID: id}
}

func PreparationRef(id uuid.UUID) ComponentRef {
	return ComponentRef{Type: enum.ComponentTypePreparation, ID: id}
}

// RecipeStore is the slice of database.Queries the resolver needs.
type RecipeStore interface {
	ListProductComponents(ctx context.Context, productIDs []uuid.UUID) ([]database.ProductComponent, error)
	ListPreparationComponents(ctx context.Context, preparationID uuid.UUID) ([]database.PreparationComponent, error)
	GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error)
}

// RecipeResolver expands product and preparation recipes into flat
// per-unit leaf-ingredient requirements.
type RecipeResolver struct {
	store RecipeStore
}

func NewRecipeResolver(store RecipeStore) *RecipeResolver {
	return &RecipeResolver{store: store}
}

// FlattenProduct returns ingredient id -> standard-unit quantity needed to
// make one unit of the product, expanding nested preparations all the way
// down. Contributions of an ingredient reached through several paths are
// summed. A COMPOUND product with no components is unsellable.
func (r *RecipeResolver) FlattenProduct(ctx context.Context, product database.Product) (map[uuid.UUID]decimal.Decimal, error) {
	comps, err := r.store.ListProductComponents(ctx, []uuid.UUID{product.ID})
	if err != nil {
		return nil, fmt.Errorf("list product components: %w", err)
	}
	if len(comps) == 0 {
		return nil, &UnsellableProductError{ID: product.ID, Name: product.Name}
	}

	acc := make(map[uuid.UUID]decimal.Decimal)
	for _, c := range comps {
		qty := NumericToDecimal(c.QuantityRequired)
		if err := r.expand(ctx, ComponentRef{Type: c.ComponentType, ID: c.ComponentID}, qty, map[uuid.UUID]bool{}, acc); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// FlattenPreparation returns the leaf-ingredient requirement for ONE output
// unit of the preparation (the stored recipe makes recipe_yield units).
func (r *RecipeResolver) FlattenPreparation(ctx context.Context, preparationID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	acc := make(map[uuid.UUID]decimal.Decimal)
	if err := r.expand(ctx, PreparationRef(preparationID), decimal.NewFromInt(1), map[uuid.UUID]bool{}, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// expand adds qty units of ref to acc, recursing through preparations.
// onPath holds the preparation ids on the current traversal path; a revisit
// means the component graph has a cycle.
func (r *RecipeResolver) expand(ctx context.Context, ref ComponentRef, qty decimal.Decimal, onPath map[uuid.UUID]bool, acc map[uuid.UUID]decimal.Decimal) error {
	switch ref.Type {
	case enum.ComponentTypeIngredient:
		acc[ref.ID] = acc[ref.ID].Add(qty)
		return nil

	case enum.ComponentTypePreparation:
		if onPath[ref.ID] {
			return &CyclicRecipeError{PreparationID: ref.ID}
		}

		prep, err := r.store.GetPreparation(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrPreparationNotFound, ref.ID)
			}
			return fmt.Errorf("get preparation: %w", err)
		}

		comps, err := r.store.ListPreparationComponents(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("list preparation components: %w", err)
		}
		if len(comps) == 0 {
			return &MissingRecipeError{ID: prep.ID, Name: prep.Name}
		}

		yield := NumericToDecimal(prep.RecipeYield)
		if yield.LessThanOrEqual(decimal.Zero) {
			yield = decimal.NewFromInt(1)
		}

		onPath[ref.ID] = true
		for _, c := range comps {
			// The recipe makes `yield` units, so one unit needs 1/yield of it.
			perUnit := NumericToDecimal(c.QuantityRequired).DivRound(yield, 6)
			child := ComponentRef{Type: c.ComponentType, ID: c.ComponentID}
			if err := r.expand(ctx, child, qty.Mul(perUnit), onPath, acc); err != nil {
				return err
			}
		}
		delete(onPath, ref.ID)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrInvalidComponentType, ref.Type)
	}
}

// ValidateComponents rejects a proposed recipe for ownerPrep when any of
// its preparation components would (transitively) reach ownerPrep again.
// Called when a recipe is saved; the resolver's own path check catches
// anything that slips through older data.
func (r *RecipeResolver) ValidateComponents(ctx context.Context, ownerPrep uuid.UUID, refs []ComponentRef) error {
	for _, ref := range refs {
		if ref.Type != enum.ComponentTypePreparation {
			continue
		}
		if ref.ID == ownerPrep {
			return &CyclicRecipeError{PreparationID: ownerPrep}
		}
		if err := r.walk(ctx, ref.ID, ownerPrep, map[uuid.UUID]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (r *RecipeResolver) walk(ctx context.Context, from, target uuid.UUID, seen map[uuid.UUID]bool) error {
	if from == target {
		return &CyclicRecipeError{PreparationID: target}
	}
	if seen[from] {
		return nil
	}
	seen[from] = true

	comps, err := r.store.ListPreparationComponents(ctx, from)
	if err != nil {
		return fmt.Errorf("list preparation components: %w", err)
	}
	for _, c := range comps {
		if c.ComponentType != enum.ComponentTypePreparation {
			continue
		}
		if err := r.walk(ctx, c.ComponentID, target, seen); err != nil {
			return err
		}
	}
	return nil
}
