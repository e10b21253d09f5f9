package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	FullName     string
	Role         string
	IsActive     bool
}

type Category struct {
	ID             uuid.UUID
	Name           string
	DisplayName    string
	DisplayOrder   int32
	IsCustomizable bool
}

type Sauce struct {
	ID   uuid.UUID
	Name string
}

type PaymentMethod struct {
	ID   uuid.UUID
	Name string
}

type Ingredient struct {
	ID                       uuid.UUID
	Name                     string
	StandardUnit             string
	PurchaseUnitName         pgtype.Text
	PurchaseToStandardFactor pgtype.Numeric
	Stock                    pgtype.Numeric
	CostPerPurchaseUnit      pgtype.Numeric
	CostPerStandardUnit      pgtype.Numeric
}

type UnitConversion struct {
	ID               uuid.UUID
	IngredientID     uuid.UUID
	RecipeUnitName   string
	ConversionFactor pgtype.Numeric
}

type Preparation struct {
	ID                  uuid.UUID
	Name                string
	UsageType           string
	UnitOfMeasure       string
	EstimatedExpiryDays int32
	RecipeYield         pgtype.Numeric
}

type PreparationComponent struct {
	PreparationID    uuid.UUID
	ComponentID      uuid.UUID
	ComponentType    string
	QuantityRequired pgtype.Numeric
}

type PreparationLot struct {
	ID                uuid.UUID
	PreparationID     uuid.UUID
	QuantityProduced  pgtype.Numeric
	QuantityRemaining pgtype.Numeric
	CostPerUnit       pgtype.Numeric
	ProductionDate    time.Time
	ExpiryDate        time.Time
}

type Product struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	CategoryID uuid.UUID
	StockType  string
	Stock      int32
}

type ProductComponent struct {
	ProductID        uuid.UUID
	ComponentID      uuid.UUID
	ComponentType    string
	QuantityRequired pgtype.Numeric
}

type Order struct {
	ID            uuid.UUID
	CustomerID    pgtype.UUID
	CustomerName  string
	Total         pgtype.Numeric
	Notes         pgtype.Text
	Status        string
	PaymentMethod pgtype.Text
	UserID        uuid.UUID
	CreatedAt     time.Time
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	Quantity    int32
	PriceAtTime pgtype.Numeric
	Sauces      []byte
}

// OrderLotConsumption records which preparation lot an order item drew from,
// so cancellation can credit back exactly the lots that were consumed.
type OrderLotConsumption struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	OrderItemID   uuid.UUID
	LotID         uuid.UUID
	PreparationID uuid.UUID
	Quantity      pgtype.Numeric
}

type DailyClosure struct {
	ClosureDate pgtype.Date
	Status      string
	ProposedBy  pgtype.UUID
	ProposedAt  pgtype.Timestamptz
	ClosedBy    pgtype.UUID
	ClosedAt    pgtype.Timestamptz
}

type CashierSession struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	BusinessDate pgtype.Date
	StartAmount  pgtype.Numeric
	StartTime    time.Time
	EndAmount    pgtype.Numeric
	EndTime      pgtype.Timestamptz
	Status       string
}
