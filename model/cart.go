package model

import (
	"time"

	"gorm.io/gorm"
)

// CartItem is one course a user intends to buy. The cart holds no price;
// prices are read live and snapshotted into the order at checkout.
type CartItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_cart_user_course" json:"user_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_cart_user_course" json:"course_id"`
	CouponID  *uint     `json:"coupon_id,omitempty"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for CartItem
func (CartItem) TableName() string {
	return "cart_items"
}

// Coupon is a flat discount applied to a single line item at checkout
type Coupon struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Code      string         `gorm:"uniqueIndex;not null;type:varchar(50)" json:"code"`
	Discount  int64          `gorm:"not null" json:"discount"` // minor units off the course price
	Active    bool           `gorm:"default:true" json:"active"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Usable reports whether the coupon can still be applied
func (c *Coupon) Usable(now time.Time) bool {
	if !c.Active {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
