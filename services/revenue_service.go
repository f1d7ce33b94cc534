package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"gorm.io/datatypes"
)

// Revenue distribution errors
var (
	// ErrCourseCreatorNotFound aborts the whole order's distribution;
	// partial distribution across line items is never acceptable.
	ErrCourseCreatorNotFound = errors.New("course creator not found")
	// ErrPlatformAccountMissing means app_settings has no platform wallet
	// owner configured. This is an operator mistake, not a payment error.
	ErrPlatformAccountMissing = errors.New("platform account not configured")
)

// RevenueService splits a completed order's amount between the platform
// and each course's creator. Distribution is keyed by order id and
// applied at most once.
type RevenueService struct{}

// NewRevenueService creates a new revenue distribution service
func NewRevenueService() *RevenueService {
	return &RevenueService{}
}

// SplitAmount divides a net price by the admin share percentage using
// integer minor units. The creator share is rounded down so any
// remainder lands on the platform side, which keeps repeated runs of
// the same input byte-for-byte reproducible.
func SplitAmount(net int64, adminSharePercentage int) (platformShare, creatorShare int64) {
	creatorShare = net * int64(100-adminSharePercentage) / 100
	platformShare = net - creatorShare
	return platformShare, creatorShare
}

// Distribute credits the platform wallet and each course creator's
// wallet for every line item of the order, recording one COMPLETED
// credit transaction per beneficiary. It must run inside the caller's
// transaction: stores is the transaction-bound bundle, so a failure
// here rolls back the entire order-completion unit.
func (s *RevenueService) Distribute(ctx context.Context, stores database.Stores, order *model.Order) ([]model.Transaction, error) {
	// Idempotency guard: webhook retries re-enter the completion unit,
	// and distribution output existing for this order means the work is
	// already done.
	done, err := stores.Transactions().HasRevenueShare(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if done {
		log.Printf("Revenue for order %d already distributed, skipping", order.ID)
		return nil, nil
	}

	platformUserID, err := s.platformAccount(ctx, stores)
	if err != nil {
		return nil, err
	}

	var created []model.Transaction
	for _, item := range order.Items {
		course, err := stores.Courses().FindByID(ctx, item.CourseID)
		if err != nil {
			return nil, fmt.Errorf("load course %d for distribution: %w", item.CourseID, err)
		}

		creator, err := stores.Users().FindByID(ctx, course.CreatorID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("%w: course %d", ErrCourseCreatorNotFound, course.ID)
			}
			return nil, err
		}

		net := item.NetPrice()
		platformShare, creatorShare := SplitAmount(net, course.AdminSharePercentage)

		platformTxn, err := s.credit(ctx, stores, creditRequest{
			order:      order,
			courseID:   course.ID,
			userID:     platformUserID,
			amount:     platformShare,
			share:      "platform",
			percentage: course.AdminSharePercentage,
		})
		if err != nil {
			return nil, err
		}

		creatorTxn, err := s.credit(ctx, stores, creditRequest{
			order:      order,
			courseID:   course.ID,
			userID:     creator.ID,
			amount:     creatorShare,
			share:      "creator",
			percentage: course.AdminSharePercentage,
		})
		if err != nil {
			return nil, err
		}

		created = append(created, *platformTxn, *creatorTxn)
	}

	return created, nil
}

type creditRequest struct {
	order      *model.Order
	courseID   uint
	userID     uint
	amount     int64
	share      string
	percentage int
}

// credit applies one beneficiary's share: the wallet increment and the
// ledger entry that justifies it commit together with the caller's unit
func (s *RevenueService) credit(ctx context.Context, stores database.Stores, req creditRequest) (*model.Transaction, error) {
	if _, err := stores.Wallets().GetOrCreate(ctx, req.userID); err != nil {
		return nil, err
	}
	if err := stores.Wallets().Credit(ctx, req.userID, req.amount); err != nil {
		return nil, err
	}

	orderID := req.order.ID
	courseID := req.courseID
	txn := &model.Transaction{
		OrderID:        &orderID,
		UserID:         req.userID,
		Amount:         req.amount,
		Type:           model.TransactionTypePurchase,
		Status:         model.TransactionStatusCompleted,
		PaymentGateway: req.order.PaymentGateway,
		CourseID:       &courseID,
		Metadata: mustMetadata(map[string]interface{}{
			model.MetaKindKey:  model.MetaKindRevenueShare,
			model.MetaShareKey: req.share,
			"percentage":       req.percentage,
		}),
	}
	if err := stores.Transactions().Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// platformAccount resolves the wallet owner that receives the platform share
func (s *RevenueService) platformAccount(ctx context.Context, stores database.Stores) (uint, error) {
	value, err := stores.Settings().Get(ctx, model.SettingPlatformAccountUserID)
	if err != nil {
		if errors.Is(err, database.ErrSettingNotFound) {
			return 0, ErrPlatformAccountMissing
		}
		return 0, err
	}

	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid value %q", ErrPlatformAccountMissing, value)
	}
	return uint(id), nil
}

// mustMetadata marshals a metadata map; the maps built here are always
// marshalable so a failure is a programmer error
func mustMetadata(m map[string]interface{}) datatypes.JSON {
	raw, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("marshal transaction metadata: %v", err))
	}
	return datatypes.JSON(raw)
}
