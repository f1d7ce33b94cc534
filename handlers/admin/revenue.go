package admin

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"gorm.io/gorm"
)

// RevenueSummary aggregates platform-wide sales figures, all in minor units
type RevenueSummary struct {
	GrossRevenue    int64 `json:"gross_revenue"`
	PlatformRevenue int64 `json:"platform_revenue"`
	CreatorRevenue  int64 `json:"creator_revenue"`
	RefundedAmount  int64 `json:"refunded_amount"`
	CompletedOrders int64 `json:"completed_orders"`
	FailedOrders    int64 `json:"failed_orders"`
	PendingOrders   int64 `json:"pending_orders"`
	RefundedOrders  int64 `json:"refunded_orders"`
}

// CourseRevenueRow is revenue for one course
type CourseRevenueRow struct {
	CourseID    uint   `json:"course_id"`
	CourseTitle string `json:"course_title"`
	Sales       int64  `json:"sales"`
	Gross       int64  `json:"gross"` // minor units
}

// CreatorRevenueRow is credited earnings for one creator
type CreatorRevenueRow struct {
	CreatorID   uint   `json:"creator_id"`
	CreatorName string `json:"creator_name"`
	Earned      int64  `json:"earned"` // minor units
}

// parseWindow reads the optional ?days= query into a cutoff time.
// Zero days means all time.
func parseWindow(c *fiber.Ctx) *time.Time {
	days, _ := strconv.Atoi(c.Query("days", "0"))
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	return &cutoff
}

// GetRevenueSummary retrieves the platform revenue overview
// GET /admin/revenue/summary
func GetRevenueSummary(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	since := parseWindow(c)
	scoped := func(q *gorm.DB) *gorm.DB {
		if since != nil {
			return q.Where("created_at >= ?", *since)
		}
		return q
	}

	var summary RevenueSummary

	// Gross is the sum of order-level completed purchases; the share
	// fan-out rows are tagged so they are excluded here
	err := scoped(db.Model(&model.Transaction{})).
		Select("COALESCE(SUM(amount), 0)").
		Where("type = ? AND status = ?", model.TransactionTypePurchase, model.TransactionStatusCompleted).
		Where("metadata IS NULL OR metadata ->> ? IS DISTINCT FROM ?", model.MetaKindKey, model.MetaKindRevenueShare).
		Scan(&summary.GrossRevenue).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate gross revenue")
	}

	err = scoped(db.Model(&model.Transaction{})).
		Select("COALESCE(SUM(amount), 0)").
		Where("metadata ->> ? = ? AND metadata ->> ? = ?",
			model.MetaKindKey, model.MetaKindRevenueShare, model.MetaShareKey, "platform").
		Scan(&summary.PlatformRevenue).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate platform revenue")
	}

	err = scoped(db.Model(&model.Transaction{})).
		Select("COALESCE(SUM(amount), 0)").
		Where("metadata ->> ? = ? AND metadata ->> ? = ?",
			model.MetaKindKey, model.MetaKindRevenueShare, model.MetaShareKey, "creator").
		Scan(&summary.CreatorRevenue).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate creator revenue")
	}

	err = scoped(db.Model(&model.Transaction{})).
		Select("COALESCE(SUM(amount), 0)").
		Where("type = ? AND status = ?", model.TransactionTypeRefund, model.TransactionStatusCompleted).
		Where("metadata IS NULL OR metadata ->> ? IS DISTINCT FROM ?", model.MetaKindKey, model.MetaKindRefundDebit).
		Scan(&summary.RefundedAmount).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate refunds")
	}

	counts := map[model.PaymentStatus]*int64{
		model.PaymentStatusCompleted: &summary.CompletedOrders,
		model.PaymentStatusFailed:    &summary.FailedOrders,
		model.PaymentStatusPending:   &summary.PendingOrders,
		model.PaymentStatusRefunded:  &summary.RefundedOrders,
	}
	for status, dest := range counts {
		if err := scoped(db.Model(&model.Order{})).
			Where("payment_status = ?", status).
			Count(dest).Error; err != nil {
			return response.InternalServerError(c, "Failed to count orders")
		}
	}

	return response.SuccessWithMessage(c, "Revenue summary retrieved successfully", summary)
}

// GetRevenueByCourse retrieves gross sales per course
// GET /admin/revenue/courses
func GetRevenueByCourse(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	var rows []CourseRevenueRow
	query := db.Model(&model.OrderItem{}).
		Select("order_items.course_id AS course_id, order_items.course_title AS course_title, COUNT(*) AS sales, COALESCE(SUM(order_items.course_price - COALESCE(order_items.discount, 0)), 0) AS gross").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.payment_status = ?", model.PaymentStatusCompleted)
	if since := parseWindow(c); since != nil {
		query = query.Where("orders.created_at >= ?", *since)
	}
	err := query.Group("order_items.course_id, order_items.course_title").
		Order("gross DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate course revenue")
	}

	return response.SuccessWithMessage(c, "Course revenue retrieved successfully", rows)
}

// GetRevenueByCreator retrieves credited earnings per creator
// GET /admin/revenue/creators
func GetRevenueByCreator(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	var rows []CreatorRevenueRow
	query := db.Model(&model.Transaction{}).
		Select("transaction_history.user_id AS creator_id, users.name AS creator_name, COALESCE(SUM(transaction_history.amount), 0) AS earned").
		Joins("JOIN users ON users.id = transaction_history.user_id").
		Where("transaction_history.metadata ->> ? = ? AND transaction_history.metadata ->> ? = ?",
			model.MetaKindKey, model.MetaKindRevenueShare, model.MetaShareKey, "creator")
	if since := parseWindow(c); since != nil {
		query = query.Where("transaction_history.created_at >= ?", *since)
	}
	err := query.Group("transaction_history.user_id, users.name").
		Order("earned DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to aggregate creator revenue")
	}

	return response.SuccessWithMessage(c, "Creator revenue retrieved successfully", rows)
}
