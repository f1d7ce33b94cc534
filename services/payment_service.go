package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services/gateway"
	"github.com/sahilchouksey/learnbridge/utils/cache"
)

// Payment orchestration errors
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCourseUnavailable = errors.New("course is not available for purchase")
	ErrAlreadyEnrolled   = errors.New("user is already enrolled in this course")
	ErrOrderNotFound     = errors.New("order not found for payment id")
	ErrNotRefundable     = errors.New("transaction is not refundable")
)

const (
	// webhookDedupTTL keeps processed provider transaction ids in Redis
	// long enough to cover the gateway's redelivery window. The database
	// idempotency guard stays authoritative; this only saves a round trip.
	webhookDedupTTL = 24 * time.Hour
)

// NotificationInput mirrors the notification emission contract. Failures
// never roll back the payment flow.
type NotificationInput struct {
	EventType  model.NotificationEventType
	EntityType model.NotificationEntityType
	EntityID   uint
	Message    string
	Link       string
}

// Notifier is the external notification collaborator
type Notifier interface {
	CreateNotificationsForUsers(ctx context.Context, userIDs []uint, input NotificationInput) error
}

// ReceiptSender emails a purchase receipt after completion
type ReceiptSender interface {
	SendPurchaseReceipt(toEmail, userName string, order *model.Order) error
}

// CheckoutItem is one course the user is buying. Coupon validity is the
// caller's concern; the resolved discount is snapshotted here.
type CheckoutItem struct {
	CourseID uint
	CouponID *uint
	Discount *int64 // minor units
}

// CheckoutResult is what the frontend needs to complete payment externally
type CheckoutResult struct {
	Order        *model.Order `json:"order"`
	ClientSecret string       `json:"client_secret"`
}

// PaymentService drives the purchase lifecycle end to end: checkout,
// webhook reconciliation, revenue distribution, enrollment and refunds.
// Every gateway outcome is applied exactly once per order.
type PaymentService struct {
	stores   database.TxRunner
	gateway  gateway.Client
	revenue  *RevenueService
	notifier Notifier
	receipts ReceiptSender
	cache    *cache.RedisCache // optional webhook dedup fast path
	currency string
}

// NewPaymentService creates the payment orchestrator. notifier, receipts
// and redisCache may be nil; the flows degrade to logging.
func NewPaymentService(
	stores database.TxRunner,
	gatewayClient gateway.Client,
	revenue *RevenueService,
	notifier Notifier,
	receipts ReceiptSender,
	redisCache *cache.RedisCache,
	currency string,
) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{
		stores:   stores,
		gateway:  gatewayClient,
		revenue:  revenue,
		notifier: notifier,
		receipts: receipts,
		cache:    redisCache,
		currency: currency,
	}
}

// InitiateCheckout validates the cart, snapshots prices into a PENDING
// order and creates the provider-side payment intent. The gateway call
// is not retried here: checkout is user-interactive, the caller retries.
func (s *PaymentService) InitiateCheckout(ctx context.Context, userID uint, items []CheckoutItem) (*CheckoutResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	order := &model.Order{
		UserID:        userID,
		ReceiptNumber: uuid.NewString(),
		PaymentStatus: model.PaymentStatusPending,
		OrderStatus:   model.OrderStatusPending,
	}

	// The same course listed twice must not become two line items: the
	// buyer would pay double for a single enrollment
	seen := make(map[uint]bool, len(items))
	for _, item := range items {
		if seen[item.CourseID] {
			continue
		}
		seen[item.CourseID] = true

		course, err := s.stores.Courses().FindPublishedByID(ctx, item.CourseID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("%w: course %d", ErrCourseUnavailable, item.CourseID)
			}
			return nil, err
		}

		enrolled, err := s.stores.Enrollments().Exists(ctx, userID, course.ID)
		if err != nil {
			return nil, err
		}
		if enrolled {
			return nil, fmt.Errorf("%w: course %d", ErrAlreadyEnrolled, course.ID)
		}

		// Snapshot the live price so later catalog edits never change
		// what was sold
		line := model.OrderItem{
			CourseID:    course.ID,
			CourseTitle: course.Title,
			CoursePrice: course.EffectivePrice(),
			Discount:    item.Discount,
			CouponID:    item.CouponID,
		}
		order.Amount += line.NetPrice()
		order.Items = append(order.Items, line)
	}

	if err := s.stores.Orders().Create(ctx, order); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		Amount:   order.Amount,
		Currency: s.currency,
		Receipt:  order.ReceiptNumber,
		Notes:    map[string]string{"order_id": strconv.FormatUint(uint64(order.ID), 10)},
	})
	if err != nil {
		// The order stays PENDING with no external state attached, so a
		// retried checkout is safe
		return nil, err
	}

	order.PaymentGateway = s.gateway.Provider()
	order.PaymentID = &intent.ExternalID
	if err := s.stores.Orders().SetPaymentIntent(ctx, order.ID, order.PaymentGateway, intent.ExternalID); err != nil {
		return nil, err
	}

	return &CheckoutResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// HandleWebhookEvent authenticates, normalizes and applies a gateway
// completion event. Everything for one order commits as a single atomic
// unit: order update, purchase transaction, wallet credits and
// enrollments either all land or none do.
func (s *PaymentService) HandleWebhookEvent(ctx context.Context, rawPayload []byte, signature string) error {
	if !s.gateway.VerifySignature(rawPayload, signature) {
		return gateway.ErrInvalidSignature
	}

	event, err := s.gateway.ParseWebhookEvent(rawPayload)
	if err != nil {
		if errors.Is(err, gateway.ErrEventIgnored) {
			return nil
		}
		return err
	}

	if s.seenProviderTxn(ctx, event.ProviderTxnID) {
		log.Printf("Webhook for provider txn %s already processed (cache hit)", event.ProviderTxnID)
		return nil
	}

	var completedOrder *model.Order
	err = s.stores.WithinTransaction(ctx, func(tx database.Stores) error {
		// Row lock: concurrent deliveries for the same order serialize
		// here, so only one passes the terminal-state guard below
		order, err := tx.Orders().FindByPaymentID(ctx, event.ExternalPaymentID, true)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, event.ExternalPaymentID)
			}
			return err
		}

		// Idempotency guard: duplicate delivery of an already-settled
		// outcome is a success no-op
		if order.PaymentStatus.Terminal() {
			log.Printf("Order %d already in terminal state %s, ignoring webhook", order.ID, order.PaymentStatus)
			return nil
		}

		if event.Outcome == gateway.OutcomeSucceeded {
			if event.Amount != 0 && event.Amount != order.Amount {
				// The provider is authoritative for the charge; flag the
				// mismatch loudly for reconciliation instead of dropping it
				log.Printf("ALERT: webhook amount %d differs from order %d amount %d",
					event.Amount, order.ID, order.Amount)
			}
			if err := s.applySuccess(ctx, tx, order, event); err != nil {
				return err
			}
			completedOrder = order
			return nil
		}

		return s.applyFailure(ctx, tx, order, event)
	})
	if err != nil {
		return err
	}

	s.markProviderTxn(ctx, event.ProviderTxnID)

	if completedOrder != nil {
		s.afterCompletion(ctx, completedOrder)
	}
	return nil
}

// applySuccess runs inside the webhook transaction
func (s *PaymentService) applySuccess(ctx context.Context, tx database.Stores, order *model.Order, event *gateway.Event) error {
	if err := tx.Orders().UpdateStatus(ctx, order.ID, model.PaymentStatusCompleted, model.OrderStatusConfirmed); err != nil {
		return err
	}

	orderID := order.ID
	providerTxn := event.ProviderTxnID
	purchase := &model.Transaction{
		OrderID:        &orderID,
		UserID:         order.UserID,
		Amount:         order.Amount,
		Type:           model.TransactionTypePurchase,
		Status:         model.TransactionStatusCompleted,
		PaymentGateway: order.PaymentGateway,
		TransactionID:  &providerTxn,
	}
	if err := tx.Transactions().Create(ctx, purchase); err != nil {
		return err
	}

	if _, err := s.revenue.Distribute(ctx, tx, order); err != nil {
		return err
	}

	for _, item := range order.Items {
		if err := tx.Enrollments().Create(ctx, order.UserID, item.CourseID); err != nil {
			return err
		}
	}

	order.PaymentStatus = model.PaymentStatusCompleted
	order.OrderStatus = model.OrderStatusConfirmed
	return nil
}

// applyFailure runs inside the webhook transaction
func (s *PaymentService) applyFailure(ctx context.Context, tx database.Stores, order *model.Order, event *gateway.Event) error {
	if err := tx.Orders().UpdateStatus(ctx, order.ID, model.PaymentStatusFailed, model.OrderStatusCancelled); err != nil {
		return err
	}

	// Audit row so failed attempts stay visible in the ledger
	orderID := order.ID
	providerTxn := event.ProviderTxnID
	failed := &model.Transaction{
		OrderID:        &orderID,
		UserID:         order.UserID,
		Amount:         order.Amount,
		Type:           model.TransactionTypePurchase,
		Status:         model.TransactionStatusFailed,
		PaymentGateway: order.PaymentGateway,
		TransactionID:  &providerTxn,
	}
	return tx.Transactions().Create(ctx, failed)
}

// ExpireStaleCheckouts fails orders stuck in PENDING past the cutoff.
// The gateway never confirmed these payments; a webhook arriving later
// for an expired order hits the terminal-state guard. Each expiry
// leaves a FAILED audit row in the ledger.
func ExpireStaleCheckouts(ctx context.Context, stores database.TxRunner, olderThan time.Time, limit int) (int, error) {
	expired := 0
	err := stores.WithinTransaction(ctx, func(tx database.Stores) error {
		orders, err := tx.Orders().FindStalePending(ctx, olderThan, limit)
		if err != nil {
			return fmt.Errorf("failed to query stale orders: %w", err)
		}

		for _, order := range orders {
			if err := tx.Orders().UpdateStatus(ctx, order.ID, model.PaymentStatusFailed, model.OrderStatusCancelled); err != nil {
				return fmt.Errorf("failed to expire order %d: %w", order.ID, err)
			}

			orderID := order.ID
			audit := &model.Transaction{
				OrderID:        &orderID,
				UserID:         order.UserID,
				Amount:         order.Amount,
				Type:           model.TransactionTypePurchase,
				Status:         model.TransactionStatusFailed,
				PaymentGateway: order.PaymentGateway,
				Metadata: mustMetadata(map[string]interface{}{
					model.MetaKindKey: model.MetaKindExpiry,
				}),
			}
			if err := tx.Transactions().Create(ctx, audit); err != nil {
				return fmt.Errorf("failed to record expiry for order %d: %w", order.ID, err)
			}
			expired++
		}
		return nil
	})
	return expired, err
}

// Refund reverses a COMPLETED purchase transaction: debits the platform
// and creator wallets by the original split amounts and records REFUND
// ledger entries. Re-locking course content is out of scope.
func (s *PaymentService) Refund(ctx context.Context, transactionID uint) (*model.Transaction, error) {
	var refund *model.Transaction
	err := s.stores.WithinTransaction(ctx, func(tx database.Stores) error {
		purchase, err := tx.Transactions().FindByID(ctx, transactionID)
		if err != nil {
			return err
		}

		if !s.refundable(purchase) {
			return ErrNotRefundable
		}

		already, err := tx.Transactions().HasRefundFor(ctx, purchase.ID)
		if err != nil {
			return err
		}
		if already {
			return ErrNotRefundable
		}

		// Serialize on the order row so two refund calls cannot both pass
		// the checks above
		order, err := tx.Orders().LockByID(ctx, *purchase.OrderID)
		if err != nil {
			return err
		}

		shares, err := tx.Transactions().FindByOrderID(ctx, order.ID)
		if err != nil {
			return err
		}

		for i := range shares {
			share := &shares[i]
			if !isRevenueShare(share) {
				continue
			}
			if err := tx.Wallets().Debit(ctx, share.UserID, share.Amount); err != nil {
				return err
			}

			shareOrderID := order.ID
			debit := &model.Transaction{
				OrderID:        &shareOrderID,
				UserID:         share.UserID,
				Amount:         share.Amount,
				Type:           model.TransactionTypeRefund,
				Status:         model.TransactionStatusCompleted,
				PaymentGateway: order.PaymentGateway,
				CourseID:       share.CourseID,
				Metadata: mustMetadata(map[string]interface{}{
					model.MetaKindKey:     model.MetaKindRefundDebit,
					model.MetaRefundOfKey: strconv.FormatUint(uint64(share.ID), 10),
				}),
			}
			if err := tx.Transactions().Create(ctx, debit); err != nil {
				return err
			}
		}

		orderID := order.ID
		refund = &model.Transaction{
			OrderID:        &orderID,
			UserID:         purchase.UserID,
			Amount:         purchase.Amount,
			Type:           model.TransactionTypeRefund,
			Status:         model.TransactionStatusCompleted,
			PaymentGateway: order.PaymentGateway,
			Metadata: mustMetadata(map[string]interface{}{
				model.MetaRefundOfKey: strconv.FormatUint(uint64(purchase.ID), 10),
			}),
		}
		if err := tx.Transactions().Create(ctx, refund); err != nil {
			return err
		}

		return tx.Orders().UpdateStatus(ctx, order.ID, model.PaymentStatusRefunded, model.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, []uint{refund.UserID}, NotificationInput{
		EventType:  model.NotificationEventRefundIssued,
		EntityType: model.NotificationEntityOrder,
		EntityID:   *refund.OrderID,
		Message:    "Your refund has been processed",
		Link:       fmt.Sprintf("/orders/%d", *refund.OrderID),
	})

	return refund, nil
}

// refundable: only the order-level purchase row qualifies, never the
// distribution fan-out rows
func (s *PaymentService) refundable(txn *model.Transaction) bool {
	if txn.Type != model.TransactionTypePurchase || txn.Status != model.TransactionStatusCompleted {
		return false
	}
	if txn.OrderID == nil {
		return false
	}
	return !isRevenueShare(txn)
}

func isRevenueShare(txn *model.Transaction) bool {
	if len(txn.Metadata) == 0 {
		return false
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(txn.Metadata, &meta); err != nil {
		return false
	}
	return meta[model.MetaKindKey] == model.MetaKindRevenueShare
}

// afterCompletion fires the post-commit side effects. None of these may
// fail the payment flow; errors are logged only.
func (s *PaymentService) afterCompletion(ctx context.Context, order *model.Order) {
	s.notify(ctx, []uint{order.UserID}, NotificationInput{
		EventType:  model.NotificationEventPaymentSuccess,
		EntityType: model.NotificationEntityOrder,
		EntityID:   order.ID,
		Message:    "Your purchase is complete. Happy learning!",
		Link:       fmt.Sprintf("/orders/%d", order.ID),
	})

	// Tell each creator they earned revenue
	creators := map[uint]bool{}
	for _, item := range order.Items {
		course, err := s.stores.Courses().FindByID(ctx, item.CourseID)
		if err != nil {
			log.Printf("Failed to load course %d for creator notification: %v", item.CourseID, err)
			continue
		}
		if !creators[course.CreatorID] {
			creators[course.CreatorID] = true
			s.notify(ctx, []uint{course.CreatorID}, NotificationInput{
				EventType:  model.NotificationEventRevenueEarned,
				EntityType: model.NotificationEntityCourse,
				EntityID:   course.ID,
				Message:    fmt.Sprintf("%q was purchased", course.Title),
				Link:       "/instructor/revenue",
			})
		}
	}

	if s.receipts != nil {
		buyer, err := s.stores.Users().FindByID(ctx, order.UserID)
		if err != nil {
			log.Printf("Failed to load buyer %d for receipt email: %v", order.UserID, err)
			return
		}
		if err := s.receipts.SendPurchaseReceipt(buyer.Email, buyer.Name, order); err != nil {
			log.Printf("Failed to send receipt for order %d: %v", order.ID, err)
		}
	}
}

func (s *PaymentService) notify(ctx context.Context, userIDs []uint, input NotificationInput) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CreateNotificationsForUsers(ctx, userIDs, input); err != nil {
		log.Printf("Failed to create notifications (%s): %v", input.EventType, err)
	}
}

func (s *PaymentService) seenProviderTxn(ctx context.Context, providerTxnID string) bool {
	if s.cache == nil || providerTxnID == "" {
		return false
	}
	_, err := s.cache.Get(ctx, webhookDedupKey(providerTxnID))
	return err == nil
}

func (s *PaymentService) markProviderTxn(ctx context.Context, providerTxnID string) {
	if s.cache == nil || providerTxnID == "" {
		return
	}
	if err := s.cache.Set(ctx, webhookDedupKey(providerTxnID), "1", webhookDedupTTL); err != nil {
		log.Printf("Failed to cache processed webhook %s: %v", providerTxnID, err)
	}
}

func webhookDedupKey(providerTxnID string) string {
	return "webhook:processed:" + providerTxnID
}
