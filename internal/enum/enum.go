package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusServing   = "serving"
	OrderStatusCompleted = "completed"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

const (
	ClosureStatusOpen           = "open"
	ClosureStatusPendingClosure = "pending_closure"
	ClosureStatusClosed         = "closed"
)

const (
	SessionStatusOpen            = "open"
	SessionStatusPendingApproval = "pending_approval"
	SessionStatusApproved        = "approved"
)

// ── Discriminators (CHECK constrained in DB) ──

const (
	StockTypeSimple   = "SIMPLE"
	StockTypeCompound = "COMPOUND"
)

const (
	ComponentTypeIngredient  = "ingredient"
	ComponentTypePreparation = "preparation"
)

const (
	PreparationUsageIngredient = "ingredient"
	PreparationUsageDressing   = "dressing"
)

const (
	UserRoleAdmin   = "admin"
	UserRoleCashier = "cashier"
	UserRoleKitchen = "kitchen"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodYape   = "yape"
	PaymentMethodPlin   = "plin"
	PaymentMethodCredit = "credit"
)
