package model

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus is the payment lifecycle of an order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Terminal reports whether the webhook path may no longer transition this status
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// OrderStatus is the fulfilment lifecycle of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentGateway identifies the external processor an order went through
type PaymentGateway string

const (
	GatewayStripe   PaymentGateway = "STRIPE"
	GatewayPaypal   PaymentGateway = "PAYPAL"
	GatewayRazorpay PaymentGateway = "RAZORPAY"
)

// Valid reports whether the gateway is one of the supported processors
func (g PaymentGateway) Valid() bool {
	switch g {
	case GatewayStripe, GatewayPaypal, GatewayRazorpay:
		return true
	}
	return false
}

// Order is a checkout-time aggregation of course purchases for one user.
// Amount always equals the sum of line item net prices at creation time;
// line items snapshot the course title and price so later catalog edits
// never change what was sold.
type Order struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	ReceiptNumber  string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"receipt_number"`
	Amount         int64          `gorm:"not null" json:"amount"` // minor units, sum of item net prices
	PaymentStatus  PaymentStatus  `gorm:"type:varchar(20);not null;default:'PENDING'" json:"payment_status"`
	OrderStatus    OrderStatus    `gorm:"type:varchar(20);not null;default:'PENDING'" json:"order_status"`
	PaymentGateway PaymentGateway `gorm:"type:varchar(20)" json:"payment_gateway,omitempty"`
	PaymentID      *string        `gorm:"type:varchar(100);uniqueIndex" json:"payment_id,omitempty"` // external payment intent id

	// Relationships
	User  User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// OrderItem is one course entry within an order with prices snapshotted
// at checkout time
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	CourseID    uint      `gorm:"not null;index" json:"course_id"`
	CourseTitle string    `gorm:"not null" json:"course_title"`        // snapshot
	CoursePrice int64     `gorm:"not null" json:"course_price"`        // snapshot, minor units
	Discount    *int64    `json:"discount,omitempty"`                  // minor units, nil when none applied
	CouponID    *uint     `gorm:"index" json:"coupon_id,omitempty"`

	// Relationships
	Course Course `gorm:"foreignKey:CourseID" json:"-"`
}

// NetPrice returns the snapshot price net of discount
func (i *OrderItem) NetPrice() int64 {
	if i.Discount != nil {
		return i.CoursePrice - *i.Discount
	}
	return i.CoursePrice
}
