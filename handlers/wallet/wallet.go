package wallet

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"gorm.io/gorm"
)

// WalletHandler handles wallet and transaction history requests
type WalletHandler struct {
	db *gorm.DB
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(db *gorm.DB) *WalletHandler {
	return &WalletHandler{db: db}
}

// GetWallet handles GET /api/v1/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var wallet model.Wallet
	if err := h.db.Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// No transactions yet; report an empty wallet rather than 404
			return response.Success(c, model.Wallet{UserID: user.ID, Balance: 0})
		}
		return response.InternalServerError(c, "Failed to fetch wallet")
	}

	return response.Success(c, wallet)
}

// ListTransactions handles GET /api/v1/wallet/transactions
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	txnType := c.Query("type", "")

	query := h.db.Model(&model.Transaction{}).Where("user_id = ?", user.ID)
	if txnType != "" {
		query = query.Where("type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count transactions")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var txns []model.Transaction
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch transactions")
	}

	return response.Paginated(c, txns, pagination)
}

// GetTransaction handles GET /api/v1/wallet/transactions/:id
func (h *WalletHandler) GetTransaction(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var txn model.Transaction
	query := h.db
	if user.Role != model.RoleAdmin {
		query = query.Where("user_id = ?", user.ID)
	}
	if err := query.First(&txn, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Transaction not found")
		}
		return response.InternalServerError(c, "Failed to fetch transaction")
	}

	return response.Success(c, txn)
}
