package database

import (
	"context"
	"errors"
	"time"

	"github.com/sahilchouksey/learnbridge/model"
)

// Sentinel errors shared by all store implementations
var (
	ErrNotFound        = errors.New("record not found")
	ErrSettingNotFound = errors.New("setting not found")
)

// OrderStore persists orders and their line items
type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	// FindByPaymentID looks an order up by its external payment intent id.
	// With forUpdate set it takes a row-level lock so concurrent webhook
	// deliveries for the same order serialize on the status transition.
	FindByPaymentID(ctx context.Context, paymentID string, forUpdate bool) (*model.Order, error)
	// LockByID loads the order under a row-level lock. Refunds serialize
	// on it so the already-refunded guard cannot race.
	LockByID(ctx context.Context, id uint) (*model.Order, error)
	SetPaymentIntent(ctx context.Context, orderID uint, gateway model.PaymentGateway, paymentID string) error
	UpdateStatus(ctx context.Context, orderID uint, payment model.PaymentStatus, status model.OrderStatus) error
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error)
}

// TransactionStore persists the immutable monetary ledger
type TransactionStore interface {
	Create(ctx context.Context, txn *model.Transaction) error
	FindByID(ctx context.Context, id uint) (*model.Transaction, error)
	FindByOrderID(ctx context.Context, orderID uint) ([]model.Transaction, error)
	UpdateStatus(ctx context.Context, id uint, status model.TransactionStatus, metadata map[string]interface{}) error
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.Transaction, int64, error)
	// HasRevenueShare reports whether distribution output already exists
	// for the order (the distribution idempotency key).
	HasRevenueShare(ctx context.Context, orderID uint) (bool, error)
	// HasRefundFor reports whether a refund was already recorded against
	// the given purchase transaction.
	HasRefundFor(ctx context.Context, purchaseTxnID uint) (bool, error)
}

// WalletStore persists per-user balances. Credit and Debit must be
// atomic increments executed inside the caller's transaction.
type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uint) (*model.Wallet, error)
	Get(ctx context.Context, userID uint) (*model.Wallet, error)
	Credit(ctx context.Context, userID uint, amount int64) error
	Debit(ctx context.Context, userID uint, amount int64) error
}

// EnrollmentStore persists course access records
type EnrollmentStore interface {
	// Create inserts the enrollment, treating a duplicate as a no-op so
	// webhook retries stay conflict-free.
	Create(ctx context.Context, userID, courseID uint) error
	Exists(ctx context.Context, userID, courseID uint) (bool, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Enrollment, error)
}

// CourseStore reads catalog data needed by the purchase path
type CourseStore interface {
	FindByID(ctx context.Context, id uint) (*model.Course, error)
	FindPublishedByID(ctx context.Context, id uint) (*model.Course, error)
}

// UserStore reads user records needed by the purchase path
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// SettingStore reads application settings
type SettingStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Stores bundles every store contract that can participate in one
// transactional unit
type Stores interface {
	Orders() OrderStore
	Transactions() TransactionStore
	Wallets() WalletStore
	Enrollments() EnrollmentStore
	Courses() CourseStore
	Users() UserStore
	Settings() SettingStore
}

// TxRunner runs closures over the stores inside a single database
// transaction: every write inside fn commits or rolls back together.
// Reads outside a transaction use the embedded Stores directly.
type TxRunner interface {
	Stores
	WithinTransaction(ctx context.Context, fn func(s Stores) error) error
}
