package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services/gateway"
)

// paymentFixture wires a PaymentService over in-memory stores with one
// buyer, one creator, the platform admin and two published courses.
type paymentFixture struct {
	stores   *memStores
	gateway  *fakeGateway
	notifier *fakeNotifier
	receipts *fakeReceipts
	service  *PaymentService

	buyer    *model.User
	creator  *model.User
	platform *model.User
	courseA  *model.Course
	courseB  *model.Course
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	stores := newMemStores()
	buyer := stores.addUser(model.User{ID: 1, Email: "buyer@test.dev", Name: "Buyer", Role: model.RoleStudent})
	creator := stores.addUser(model.User{ID: 2, Email: "creator@test.dev", Name: "Creator", Role: model.RoleInstructor})
	platform := stores.addUser(model.User{ID: 3, Email: "admin@test.dev", Name: "Admin", Role: model.RoleAdmin})

	courseA := stores.addCourse(model.Course{
		ID: 10, CreatorID: creator.ID, Title: "Go for Backend Engineers",
		Price: 10000, AdminSharePercentage: 20, Published: true,
	})
	courseB := stores.addCourse(model.Course{
		ID: 11, CreatorID: creator.ID, Title: "PostgreSQL Deep Dive",
		Price: 5000, AdminSharePercentage: 30, Published: true,
	})

	stores.settings[model.SettingPlatformAccountUserID] = strconv.FormatUint(uint64(platform.ID), 10)

	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	receipts := &fakeReceipts{}
	service := NewPaymentService(stores, gw, NewRevenueService(), notifier, receipts, nil, "INR")

	return &paymentFixture{
		stores:   stores,
		gateway:  gw,
		notifier: notifier,
		receipts: receipts,
		service:  service,
		buyer:    buyer,
		creator:  creator,
		platform: platform,
		courseA:  courseA,
		courseB:  courseB,
	}
}

// checkout creates a pending order for both courses and returns it
func (f *paymentFixture) checkout(t *testing.T) *model.Order {
	t.Helper()
	result, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{
		{CourseID: f.courseA.ID},
		{CourseID: f.courseB.ID},
	})
	require.NoError(t, err)
	return result.Order
}

// successEvent builds the webhook event the fake gateway will emit
func (f *paymentFixture) successEvent(order *model.Order) {
	f.gateway.event = &gateway.Event{
		ExternalPaymentID: *order.PaymentID,
		Outcome:           gateway.OutcomeSucceeded,
		Amount:            order.Amount,
		ProviderTxnID:     "pay_123",
	}
}

func TestInitiateCheckoutEmptyCart(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestInitiateCheckoutUnpublishedCourse(t *testing.T) {
	f := newPaymentFixture(t)
	f.stores.addCourse(model.Course{ID: 99, CreatorID: f.creator.ID, Title: "Draft", Price: 1000, Published: false})

	_, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{{CourseID: 99}})
	assert.ErrorIs(t, err, ErrCourseUnavailable)
}

func TestInitiateCheckoutDeduplicatesCourses(t *testing.T) {
	f := newPaymentFixture(t)

	result, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{
		{CourseID: f.courseA.ID},
		{CourseID: f.courseA.ID},
	})
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1, "a repeated course must collapse into one line item")
	assert.Equal(t, f.courseA.Price, result.Order.Amount)
}

func TestInitiateCheckoutAlreadyEnrolled(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.stores.Enrollments().Create(context.Background(), f.buyer.ID, f.courseA.ID))

	_, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{{CourseID: f.courseA.ID}})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestInitiateCheckoutSnapshotsPrices(t *testing.T) {
	f := newPaymentFixture(t)
	offer := int64(8000)
	f.courseA.OfferPrice = &offer
	f.stores.addCourse(*f.courseA)
	discount := int64(500)

	result, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{
		{CourseID: f.courseA.ID, Discount: &discount},
		{CourseID: f.courseB.ID},
	})
	require.NoError(t, err)

	order := result.Order
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(8000), order.Items[0].CoursePrice, "offer price wins over list price")
	assert.Equal(t, "Go for Backend Engineers", order.Items[0].CourseTitle)
	assert.Equal(t, int64(7500+5000), order.Amount, "amount is the sum of net prices")
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "secret_1", result.ClientSecret)

	require.NotNil(t, f.gateway.createdIntent)
	assert.Equal(t, order.Amount, f.gateway.createdIntent.Amount)
	assert.Equal(t, "INR", f.gateway.createdIntent.Currency)
}

func TestInitiateCheckoutGatewayFailureKeepsOrderPending(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.intentErr = gateway.ErrGatewayUnavailable

	_, err := f.service.InitiateCheckout(context.Background(), f.buyer.ID, []CheckoutItem{{CourseID: f.courseA.ID}})
	require.ErrorIs(t, err, gateway.ErrGatewayUnavailable)

	// The local order exists but never got an external payment id, so a
	// retried checkout cannot collide with it
	order, err := f.stores.Orders().FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Nil(t, order.PaymentID)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.verifyOK = false

	err := f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "bad")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestHandleWebhookIgnoredEventIsNoop(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.parseErr = gateway.ErrEventIgnored

	err := f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Zero(t, f.stores.txnCount())
}

func TestHandleWebhookUnknownOrder(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.event = &gateway.Event{
		ExternalPaymentID: "order_missing",
		Outcome:           gateway.OutcomeSucceeded,
		ProviderTxnID:     "pay_1",
	}

	err := f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestHandleWebhookSuccessCompletesOrder(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)

	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	stored, err := f.stores.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Equal(t, model.OrderStatusConfirmed, stored.OrderStatus)

	// Revenue split: courseA 10000 at 20% -> 2000/8000,
	// courseB 5000 at 30% -> 1500/3500
	assert.Equal(t, int64(3500), f.stores.walletBalance(f.platform.ID))
	assert.Equal(t, int64(11500), f.stores.walletBalance(f.creator.ID))

	// Ledger: 1 purchase + 2 beneficiaries x 2 items
	assert.Equal(t, 5, f.stores.txnCount())

	for _, courseID := range []uint{f.courseA.ID, f.courseB.ID} {
		enrolled, err := f.stores.Enrollments().Exists(context.Background(), f.buyer.ID, courseID)
		require.NoError(t, err)
		assert.True(t, enrolled, "buyer must be enrolled in course %d", courseID)
	}

	require.Len(t, f.notifier.callsFor(model.NotificationEventPaymentSuccess), 1)
	// Both courses share one creator, so the revenue notification dedupes
	require.Len(t, f.notifier.callsFor(model.NotificationEventRevenueEarned), 1)
	require.Equal(t, []string{"buyer@test.dev"}, f.receipts.sent)
}

func TestHandleWebhookDuplicateDeliveryIsNoop(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)

	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))
	platformBefore := f.stores.walletBalance(f.platform.ID)
	creatorBefore := f.stores.walletBalance(f.creator.ID)
	txnsBefore := f.stores.txnCount()

	// Redelivery of the same settled outcome must change nothing
	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	assert.Equal(t, platformBefore, f.stores.walletBalance(f.platform.ID))
	assert.Equal(t, creatorBefore, f.stores.walletBalance(f.creator.ID))
	assert.Equal(t, txnsBefore, f.stores.txnCount())
	assert.Len(t, f.notifier.callsFor(model.NotificationEventPaymentSuccess), 1)
}

func TestHandleWebhookFailureOutcome(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.gateway.event = &gateway.Event{
		ExternalPaymentID: *order.PaymentID,
		Outcome:           gateway.OutcomeFailed,
		ProviderTxnID:     "pay_failed",
	}

	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	stored, err := f.stores.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, model.OrderStatusCancelled, stored.OrderStatus)

	// One FAILED audit row, no money moved, no access granted
	assert.Equal(t, 1, f.stores.txnCount())
	assert.Zero(t, f.stores.walletBalance(f.creator.ID))
	enrolled, err := f.stores.Enrollments().Exists(context.Background(), f.buyer.ID, f.courseA.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	// FAILED is terminal too: redelivery must be a no-op
	f.gateway.event.ProviderTxnID = "pay_failed_retry"
	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, 1, f.stores.txnCount())
}

func TestHandleWebhookRollsBackWhenDistributionFails(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)

	// No platform account configured: distribution must abort the whole
	// completion unit
	delete(f.stores.settings, model.SettingPlatformAccountUserID)

	err := f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig")
	require.ErrorIs(t, err, ErrPlatformAccountMissing)

	stored, err := f.stores.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus, "order must roll back to PENDING")
	assert.Zero(t, f.stores.txnCount(), "no ledger rows may survive the rollback")
	assert.Zero(t, f.stores.walletBalance(f.creator.ID))
	enrolled, err := f.stores.Enrollments().Exists(context.Background(), f.buyer.ID, f.courseA.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestRefundReversesDistribution(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)
	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	// The purchase row is the first ledger entry
	purchase, err := f.stores.Transactions().FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, model.TransactionTypePurchase, purchase.Type)

	refund, err := f.service.Refund(context.Background(), purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TransactionTypeRefund, refund.Type)
	assert.Equal(t, purchase.Amount, refund.Amount)
	assert.Equal(t, f.buyer.ID, refund.UserID)

	// Shares were clawed back in full
	assert.Zero(t, f.stores.walletBalance(f.platform.ID))
	assert.Zero(t, f.stores.walletBalance(f.creator.ID))

	stored, err := f.stores.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Equal(t, model.OrderStatusCancelled, stored.OrderStatus)

	require.Len(t, f.notifier.callsFor(model.NotificationEventRefundIssued), 1)
}

func TestRefundTwiceIsRejected(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)
	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	_, err := f.service.Refund(context.Background(), 1)
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotRefundable)

	// Balances unchanged by the rejected second attempt
	assert.Zero(t, f.stores.walletBalance(f.platform.ID))
	assert.Zero(t, f.stores.walletBalance(f.creator.ID))
}

func TestRefundRejectsRevenueShareRows(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.checkout(t)
	f.successEvent(order)
	require.NoError(t, f.service.HandleWebhookEvent(context.Background(), []byte(`{}`), "sig"))

	// Ledger rows 2..5 are the distribution fan-out; none is refundable
	shares, err := f.stores.Transactions().FindByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	for _, share := range shares {
		if share.Type != model.TransactionTypePurchase || share.ID == 1 {
			continue
		}
		_, err := f.service.Refund(context.Background(), share.ID)
		assert.ErrorIs(t, err, ErrNotRefundable, "share row %d must not be refundable", share.ID)
	}
}

func TestRefundRejectsPendingTransaction(t *testing.T) {
	f := newPaymentFixture(t)
	orderID := uint(77)
	require.NoError(t, f.stores.Transactions().Create(context.Background(), &model.Transaction{
		OrderID: &orderID,
		UserID:  f.buyer.ID,
		Amount:  1000,
		Type:    model.TransactionTypePurchase,
		Status:  model.TransactionStatusPending,
	}))

	_, err := f.service.Refund(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundUnknownTransaction(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.Refund(context.Background(), 404)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestExpireStaleCheckoutsFailsAbandonedOrders(t *testing.T) {
	f := newPaymentFixture(t)

	stale := f.checkout(t)
	f.stores.orders[stale.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	fresh := f.checkout(t)

	expired, err := ExpireStaleCheckouts(context.Background(), f.stores, time.Now().Add(-24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.stores.Orders().FindByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, model.OrderStatusCancelled, got.OrderStatus)

	// The abandoned checkout stays visible in the ledger
	txns, err := f.stores.Transactions().FindByOrderID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.TransactionTypePurchase, txns[0].Type)
	assert.Equal(t, model.TransactionStatusFailed, txns[0].Status)
	assert.Equal(t, model.MetaKindExpiry, metaValue(&txns[0], model.MetaKindKey))

	// Orders inside the window are untouched
	gotFresh, err := f.stores.Orders().FindByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, gotFresh.PaymentStatus)
}
