package payment

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"github.com/sahilchouksey/learnbridge/utils/validation"
	"gorm.io/gorm"
)

// PaymentHandler handles checkout, orders and refunds
type PaymentHandler struct {
	db        *gorm.DB
	payments  *services.PaymentService
	validator *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		db:        db,
		payments:  payments,
		validator: validation.NewValidator(),
	}
}

// CheckoutRequest represents the request body for checkout. With no
// items the user's cart is used.
type CheckoutRequest struct {
	Items      []CheckoutItemRequest `json:"items" validate:"omitempty,dive"`
	CouponCode string                `json:"coupon_code" validate:"omitempty,min=3,max=50"`
}

// CheckoutItemRequest is one course in an explicit checkout
type CheckoutItemRequest struct {
	CourseID uint `json:"course_id" validate:"required,min=1"`
}

// Checkout handles POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CheckoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			return response.ValidationError(c, err)
		}
	}

	courseIDs := make([]uint, 0, len(req.Items))
	for _, item := range req.Items {
		courseIDs = append(courseIDs, item.CourseID)
	}

	fromCart := false
	if len(courseIDs) == 0 {
		// Fall back to the cart
		var cartItems []model.CartItem
		if err := h.db.Where("user_id = ?", user.ID).Find(&cartItems).Error; err != nil {
			return response.InternalServerError(c, "Failed to load cart")
		}
		for _, item := range cartItems {
			courseIDs = append(courseIDs, item.CourseID)
		}
		fromCart = true
	}

	if len(courseIDs) == 0 {
		return response.BadRequest(c, "Nothing to check out")
	}

	coupon, err := h.resolveCoupon(c, req.CouponCode)
	if err != nil {
		return response.BadRequest(c, "Coupon is invalid or expired")
	}

	items := make([]services.CheckoutItem, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		item := services.CheckoutItem{CourseID: courseID}
		if coupon != nil {
			item.CouponID = &coupon.ID
			item.Discount = h.discountFor(coupon, courseID)
		}
		items = append(items, item)
	}

	result, err := h.payments.InitiateCheckout(c.Context(), user.ID, items)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyCart):
			return response.BadRequest(c, "Nothing to check out")
		case errors.Is(err, services.ErrCourseUnavailable):
			return response.NotFound(c, "One of the courses is not available for purchase")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return response.Conflict(c, "You are already enrolled in one of these courses")
		default:
			return response.InternalServerError(c, "Failed to start checkout")
		}
	}

	if fromCart {
		// The cart is a draft; clear it once the order exists
		h.db.Where("user_id = ?", user.ID).Delete(&model.CartItem{})
	}

	return response.Created(c, result)
}

// resolveCoupon looks up and validates a coupon code. Empty code means
// no coupon.
func (h *PaymentHandler) resolveCoupon(c *fiber.Ctx, code string) (*model.Coupon, error) {
	if code == "" {
		return nil, nil
	}

	var coupon model.Coupon
	if err := h.db.Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	if !coupon.Usable(time.Now()) {
		return nil, errors.New("coupon expired")
	}
	return &coupon, nil
}

// discountFor caps the coupon discount at the course price
func (h *PaymentHandler) discountFor(coupon *model.Coupon, courseID uint) *int64 {
	var course model.Course
	if err := h.db.First(&course, courseID).Error; err != nil {
		return nil
	}

	discount := coupon.Discount
	if price := course.EffectivePrice(); discount > price {
		discount = price
	}
	return &discount
}

// ListOrders handles GET /api/v1/orders
func (h *PaymentHandler) ListOrders(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	query := h.db.Model(&model.Order{}).Where("user_id = ?", user.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count orders")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var orders []model.Order
	if err := query.Preload("Items").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch orders")
	}

	return response.Paginated(c, orders, pagination)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *PaymentHandler) GetOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var order model.Order
	query := h.db.Preload("Items")
	if user.Role != model.RoleAdmin {
		query = query.Where("user_id = ?", user.ID)
	}
	if err := query.First(&order, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Order not found")
		}
		return response.InternalServerError(c, "Failed to fetch order")
	}

	return response.Success(c, order)
}

// RefundTransaction handles POST /api/v1/admin/transactions/:id/refund
func (h *PaymentHandler) RefundTransaction(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid transaction id")
	}

	refund, err := h.payments.Refund(c.Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotRefundable):
			return response.Conflict(c, "Transaction cannot be refunded")
		case isNotFound(err):
			return response.NotFound(c, "Transaction not found")
		default:
			return response.InternalServerError(c, "Failed to process refund")
		}
	}

	return response.SuccessWithMessage(c, "Refund processed successfully", refund)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, database.ErrNotFound)
}
