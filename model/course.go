package model

import (
	"time"

	"gorm.io/gorm"
)

// DefaultAdminSharePercentage is the platform cut applied when neither
// the course nor the settings table overrides it
const DefaultAdminSharePercentage = 20

// Course represents a published course in the marketplace.
// Prices are stored in minor units (paise) to avoid floating point drift.
type Course struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
	CreatorID            uint           `gorm:"not null;index" json:"creator_id"`
	Title                string         `gorm:"not null" json:"title"`
	Description          string         `gorm:"type:text" json:"description"`
	Price                int64          `gorm:"not null" json:"price"`                 // minor units
	OfferPrice           *int64         `json:"offer_price,omitempty"`                 // minor units, nil when no offer is running
	AdminSharePercentage int            `gorm:"not null;default:20" json:"admin_share_percentage"` // 0-100, validated at write time
	Published            bool           `gorm:"default:false;index" json:"published"`
	ThumbnailKey         string         `gorm:"type:varchar(500)" json:"thumbnail_key,omitempty"`

	// Relationships
	Creator     User         `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// EffectivePrice returns the price a buyer pays right now (offer price wins when set)
func (c *Course) EffectivePrice() int64 {
	if c.OfferPrice != nil && *c.OfferPrice < c.Price {
		return *c.OfferPrice
	}
	return c.Price
}

// Enrollment records that a user gained access to a course.
// Created only after a payment completes; unique per (user, course).
type Enrollment struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	CourseID   uint      `gorm:"primaryKey" json:"course_id"`
	EnrolledAt time.Time `gorm:"autoCreateTime" json:"enrolled_at"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}
