package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionType classifies the monetary movement
type TransactionType string

const (
	TransactionTypePurchase TransactionType = "PURCHASE"
	TransactionTypeRefund   TransactionType = "REFUND"
)

// TransactionStatus is the lifecycle of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Metadata keys used to tag ledger entries
const (
	MetaKindKey          = "kind"
	MetaKindRevenueShare = "revenue_share"
	MetaKindRefundDebit  = "refund_debit"
	MetaKindExpiry       = "expiry"
	MetaShareKey         = "share" // "platform" | "creator"
	MetaRefundOfKey      = "refund_of"
)

// Transaction is an immutable record of one monetary movement tied to a
// user. Amount never changes after creation; only status and metadata
// may be updated. Revenue distribution fans a purchase out into one
// credit transaction per beneficiary so the ledger stays auditable.
type Transaction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `gorm:"index" json:"-"`
	OrderID        *uint             `gorm:"index" json:"order_id,omitempty"`
	UserID         uint              `gorm:"not null;index" json:"user_id"`
	Amount         int64             `gorm:"not null" json:"amount"` // minor units, immutable
	Type           TransactionType   `gorm:"type:varchar(20);not null" json:"type"`
	Status         TransactionStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	PaymentGateway PaymentGateway    `gorm:"type:varchar(20)" json:"payment_gateway,omitempty"`
	CourseID       *uint             `gorm:"index" json:"course_id,omitempty"`
	TransactionID  *string           `gorm:"type:varchar(100);index" json:"transaction_id,omitempty"` // provider transaction id
	Metadata       datatypes.JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Relationships
	User  User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Order *Order `gorm:"foreignKey:OrderID" json:"-"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transaction_history"
}
