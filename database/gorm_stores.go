package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sahilchouksey/learnbridge/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStores implements the store contracts on top of a *gorm.DB.
// The same type is used inside and outside transactions: WithinTransaction
// hands the closure a GormStores bound to the transaction handle.
type GormStores struct {
	db *gorm.DB
}

// NewGormStores wraps a gorm connection (or transaction) in the store contracts
func NewGormStores(db *gorm.DB) *GormStores {
	return &GormStores{db: db}
}

// WithinTransaction runs fn atomically over all stores
func (g *GormStores) WithinTransaction(ctx context.Context, fn func(s Stores) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStores{db: tx})
	})
}

func (g *GormStores) Orders() OrderStore             { return &gormOrderStore{db: g.db} }
func (g *GormStores) Transactions() TransactionStore { return &gormTransactionStore{db: g.db} }
func (g *GormStores) Wallets() WalletStore           { return &gormWalletStore{db: g.db} }
func (g *GormStores) Enrollments() EnrollmentStore   { return &gormEnrollmentStore{db: g.db} }
func (g *GormStores) Courses() CourseStore           { return &gormCourseStore{db: g.db} }
func (g *GormStores) Users() UserStore               { return &gormUserStore{db: g.db} }
func (g *GormStores) Settings() SettingStore         { return &gormSettingStore{db: g.db} }

// --- orders ---

type gormOrderStore struct {
	db *gorm.DB
}

func (s *gormOrderStore) Create(ctx context.Context, order *model.Order) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *gormOrderStore) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

func (s *gormOrderStore) FindByPaymentID(ctx context.Context, paymentID string, forUpdate bool) (*model.Order, error) {
	query := s.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order model.Order
	err := query.Where("payment_id = ?", paymentID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find order by payment id: %w", err)
	}

	// Items are loaded after the lock is taken; the FOR UPDATE clause must
	// not span the join table.
	if err := s.db.WithContext(ctx).Where("order_id = ?", order.ID).Find(&order.Items).Error; err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	return &order, nil
}

func (s *gormOrderStore) LockByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &order, nil
}

func (s *gormOrderStore) SetPaymentIntent(ctx context.Context, orderID uint, gateway model.PaymentGateway, paymentID string) error {
	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_gateway": gateway,
			"payment_id":      paymentID,
		})
	if result.Error != nil {
		return fmt.Errorf("set payment intent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormOrderStore) UpdateStatus(ctx context.Context, orderID uint, payment model.PaymentStatus, status model.OrderStatus) error {
	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_status": payment,
			"order_status":   status,
		})
	if result.Error != nil {
		return fmt.Errorf("update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormOrderStore) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", model.PaymentStatusPending, olderThan).
		Order("created_at").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("find stale pending orders: %w", err)
	}
	return orders, nil
}

// --- transactions ---

type gormTransactionStore struct {
	db *gorm.DB
}

func (s *gormTransactionStore) Create(ctx context.Context, txn *model.Transaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *gormTransactionStore) FindByID(ctx context.Context, id uint) (*model.Transaction, error) {
	var txn model.Transaction
	err := s.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &txn, nil
}

func (s *gormTransactionStore) FindByOrderID(ctx context.Context, orderID uint) ([]model.Transaction, error) {
	var txns []model.Transaction
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("find transactions by order: %w", err)
	}
	return txns, nil
}

func (s *gormTransactionStore) UpdateStatus(ctx context.Context, id uint, status model.TransactionStatus, metadata map[string]interface{}) error {
	updates := map[string]interface{}{"status": status}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal transaction metadata: %w", err)
		}
		updates["metadata"] = datatypes.JSON(raw)
	}

	result := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update transaction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormTransactionStore) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var txns []model.Transaction
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&txns).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txns, total, nil
}

func (s *gormTransactionStore) HasRevenueShare(ctx context.Context, orderID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("order_id = ?", orderID).
		Where(datatypes.JSONQuery("metadata").Equals(model.MetaKindRevenueShare, model.MetaKindKey)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check revenue share: %w", err)
	}
	return count > 0, nil
}

func (s *gormTransactionStore) HasRefundFor(ctx context.Context, purchaseTxnID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("type = ?", model.TransactionTypeRefund).
		Where(datatypes.JSONQuery("metadata").Equals(strconv.FormatUint(uint64(purchaseTxnID), 10), model.MetaRefundOfKey)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check refund: %w", err)
	}
	return count > 0, nil
}

// --- wallets ---

type gormWalletStore struct {
	db *gorm.DB
}

func (s *gormWalletStore) GetOrCreate(ctx context.Context, userID uint) (*model.Wallet, error) {
	wallet := model.Wallet{UserID: userID}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *gormWalletStore) Get(ctx context.Context, userID uint) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &wallet, nil
}

func (s *gormWalletStore) Credit(ctx context.Context, userID uint, amount int64) error {
	return s.adjust(ctx, userID, amount)
}

func (s *gormWalletStore) Debit(ctx context.Context, userID uint, amount int64) error {
	return s.adjust(ctx, userID, -amount)
}

// adjust applies an atomic increment so concurrent distributions to the
// same wallet never lose updates
func (s *gormWalletStore) adjust(ctx context.Context, userID uint, delta int64) error {
	result := s.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("adjust wallet balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- enrollments ---

type gormEnrollmentStore struct {
	db *gorm.DB
}

func (s *gormEnrollmentStore) Create(ctx context.Context, userID, courseID uint) error {
	enrollment := model.Enrollment{UserID: userID, CourseID: courseID}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&enrollment).Error
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (s *gormEnrollmentStore) Exists(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return count > 0, nil
}

func (s *gormEnrollmentStore) ListByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// --- courses ---

type gormCourseStore struct {
	db *gorm.DB
}

func (s *gormCourseStore) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := s.db.WithContext(ctx).First(&course, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

func (s *gormCourseStore) FindPublishedByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := s.db.WithContext(ctx).Where("published = ?", true).First(&course, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find published course: %w", err)
	}
	return &course, nil
}

// --- users ---

type gormUserStore struct {
	db *gorm.DB
}

func (s *gormUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// --- settings ---

type gormSettingStore struct {
	db *gorm.DB
}

func (s *gormSettingStore) Get(ctx context.Context, key string) (string, error) {
	var setting model.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return setting.Value, nil
}

func (s *gormSettingStore) Set(ctx context.Context, key, value string) error {
	setting := model.AppSetting{Key: key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
