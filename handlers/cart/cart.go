package cart

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"github.com/sahilchouksey/learnbridge/utils/validation"
	"gorm.io/gorm"
)

// CartHandler handles cart-related requests
type CartHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewCartHandler creates a new cart handler
func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// AddItemRequest represents the request body for adding a cart item
type AddItemRequest struct {
	CourseID uint `json:"course_id" validate:"required,min=1"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var items []model.CartItem
	if err := h.db.Preload("Course").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch cart")
	}

	var total int64
	for _, item := range items {
		total += item.Course.EffectivePrice()
	}

	return response.Success(c, fiber.Map{
		"items": items,
		"total": total,
	})
}

// AddItem handles POST /api/v1/cart
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req AddItemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Only published courses can be carted
	var course model.Course
	if err := h.db.Where("published = ?", true).First(&course, req.CourseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID == user.ID {
		return response.BadRequest(c, "You cannot buy your own course")
	}

	// Already enrolled users have nothing to buy
	var enrolled int64
	if err := h.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		Count(&enrolled).Error; err != nil {
		return response.InternalServerError(c, "Failed to check enrollment")
	}
	if enrolled > 0 {
		return response.Conflict(c, "You are already enrolled in this course")
	}

	var existing model.CartItem
	if err := h.db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		First(&existing).Error; err == nil {
		return response.Conflict(c, "Course is already in your cart")
	}

	item := model.CartItem{
		UserID:   user.ID,
		CourseID: course.ID,
	}
	if err := h.db.Create(&item).Error; err != nil {
		return response.InternalServerError(c, "Failed to add course to cart")
	}

	h.db.Preload("Course").First(&item, item.ID)

	return response.Created(c, item)
}

// RemoveItem handles DELETE /api/v1/cart/:courseID
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID := c.Params("courseID")

	result := h.db.Where("user_id = ? AND course_id = ?", user.ID, courseID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to remove course from cart")
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "Course is not in your cart")
	}

	return response.SuccessWithMessage(c, "Course removed from cart", nil)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	if err := h.db.Where("user_id = ?", user.ID).Delete(&model.CartItem{}).Error; err != nil {
		return response.InternalServerError(c, "Failed to clear cart")
	}

	return response.SuccessWithMessage(c, "Cart cleared", nil)
}
