package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationEventType is what happened
type NotificationEventType string

const (
	NotificationEventPaymentSuccess  NotificationEventType = "payment_success"
	NotificationEventPaymentFailed   NotificationEventType = "payment_failed"
	NotificationEventRefundIssued    NotificationEventType = "refund_issued"
	NotificationEventRevenueEarned   NotificationEventType = "revenue_earned"
	NotificationEventNewMessage      NotificationEventType = "new_message"
	NotificationEventCoursePublished NotificationEventType = "course_published"
)

// NotificationEntityType is what the notification points at
type NotificationEntityType string

const (
	NotificationEntityOrder  NotificationEntityType = "order"
	NotificationEntityCourse NotificationEntityType = "course"
	NotificationEntityChat   NotificationEntityType = "chat"
	NotificationEntityWallet NotificationEntityType = "wallet"
)

// UserNotification represents a notification for a user
type UserNotification struct {
	ID         uint                   `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	DeletedAt  gorm.DeletedAt         `gorm:"index" json:"deleted_at,omitempty"`
	UserID     uint                   `gorm:"index;not null" json:"user_id"`
	EventType  NotificationEventType  `gorm:"type:varchar(30);not null" json:"event_type"`
	EntityType NotificationEntityType `gorm:"type:varchar(30);not null" json:"entity_type"`
	EntityID   uint                   `gorm:"index" json:"entity_id"`
	Message    string                 `gorm:"type:text;not null" json:"message"`
	Link       string                 `gorm:"type:varchar(500)" json:"link,omitempty"`
	Read       bool                   `gorm:"default:false" json:"read"`
	Metadata   datatypes.JSON         `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UserNotification
func (UserNotification) TableName() string {
	return "user_notifications"
}
