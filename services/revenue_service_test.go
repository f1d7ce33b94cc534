package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/learnbridge/model"
)

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		name         string
		net          int64
		adminShare   int
		wantPlatform int64
		wantCreator  int64
	}{
		{"even split", 10000, 20, 2000, 8000},
		{"zero share", 10000, 0, 0, 10000},
		{"full share", 10000, 100, 10000, 0},
		{"rounding remainder goes to platform", 101, 30, 31, 70},
		{"one unit", 1, 50, 1, 0},
		{"zero amount", 0, 20, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, creator := SplitAmount(tt.net, tt.adminShare)
			assert.Equal(t, tt.wantPlatform, platform)
			assert.Equal(t, tt.wantCreator, creator)
			assert.Equal(t, tt.net, platform+creator, "split must preserve the total")
		})
	}
}

func TestSplitAmountAlwaysPreservesTotal(t *testing.T) {
	for net := int64(0); net < 1000; net += 7 {
		for share := 0; share <= 100; share += 13 {
			platform, creator := SplitAmount(net, share)
			require.Equal(t, net, platform+creator, "net=%d share=%d", net, share)
			require.GreaterOrEqual(t, platform, int64(0))
			require.GreaterOrEqual(t, creator, int64(0))
		}
	}
}

func distributionFixture(t *testing.T) (*memStores, *model.Order) {
	t.Helper()

	stores := newMemStores()
	stores.addUser(model.User{ID: 1, Name: "Buyer"})
	stores.addUser(model.User{ID: 2, Name: "Creator A"})
	stores.addUser(model.User{ID: 3, Name: "Creator B"})
	stores.addUser(model.User{ID: 4, Name: "Admin", Role: model.RoleAdmin})
	stores.addCourse(model.Course{ID: 10, CreatorID: 2, Title: "Course A", AdminSharePercentage: 20, Published: true})
	stores.addCourse(model.Course{ID: 11, CreatorID: 3, Title: "Course B", AdminSharePercentage: 50, Published: true})
	stores.settings[model.SettingPlatformAccountUserID] = "4"

	order := &model.Order{
		UserID:         1,
		Amount:         15000,
		PaymentGateway: model.GatewayRazorpay,
		Items: []model.OrderItem{
			{CourseID: 10, CourseTitle: "Course A", CoursePrice: 10000},
			{CourseID: 11, CourseTitle: "Course B", CoursePrice: 5000},
		},
	}
	require.NoError(t, stores.Orders().Create(context.Background(), order))
	return stores, order
}

func TestDistributeSplitsEveryLineItem(t *testing.T) {
	stores, order := distributionFixture(t)
	svc := NewRevenueService()

	created, err := svc.Distribute(context.Background(), stores, order)
	require.NoError(t, err)
	require.Len(t, created, 4, "two beneficiaries per line item")

	// Course A: 10000 at 20% -> platform 2000, creator A 8000
	// Course B: 5000 at 50% -> platform 2500, creator B 2500
	assert.Equal(t, int64(4500), stores.walletBalance(4))
	assert.Equal(t, int64(8000), stores.walletBalance(2))
	assert.Equal(t, int64(2500), stores.walletBalance(3))

	for _, txn := range created {
		assert.Equal(t, model.TransactionTypePurchase, txn.Type)
		assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
		assert.Equal(t, model.GatewayRazorpay, txn.PaymentGateway)
		assert.Equal(t, model.MetaKindRevenueShare, metaValue(&txn, model.MetaKindKey))
		require.NotNil(t, txn.OrderID)
		assert.Equal(t, order.ID, *txn.OrderID)
	}
}

func TestDistributeIsIdempotentPerOrder(t *testing.T) {
	stores, order := distributionFixture(t)
	svc := NewRevenueService()

	_, err := svc.Distribute(context.Background(), stores, order)
	require.NoError(t, err)
	balanceBefore := stores.walletBalance(2)
	txnsBefore := stores.txnCount()

	created, err := svc.Distribute(context.Background(), stores, order)
	require.NoError(t, err)
	assert.Nil(t, created, "second run must produce nothing")
	assert.Equal(t, balanceBefore, stores.walletBalance(2))
	assert.Equal(t, txnsBefore, stores.txnCount())
}

func TestDistributeMissingPlatformAccount(t *testing.T) {
	stores, order := distributionFixture(t)
	delete(stores.settings, model.SettingPlatformAccountUserID)
	svc := NewRevenueService()

	_, err := svc.Distribute(context.Background(), stores, order)
	assert.ErrorIs(t, err, ErrPlatformAccountMissing)
}

func TestDistributeInvalidPlatformAccountValue(t *testing.T) {
	stores, order := distributionFixture(t)
	stores.settings[model.SettingPlatformAccountUserID] = "not-a-number"
	svc := NewRevenueService()

	_, err := svc.Distribute(context.Background(), stores, order)
	assert.ErrorIs(t, err, ErrPlatformAccountMissing)
}

func TestDistributeMissingCreatorAborts(t *testing.T) {
	stores, order := distributionFixture(t)
	// Course whose creator no longer exists
	stores.addCourse(model.Course{ID: 12, CreatorID: 999, Title: "Orphan", AdminSharePercentage: 20, Published: true})
	order.Items = append(order.Items, model.OrderItem{CourseID: 12, CourseTitle: "Orphan", CoursePrice: 1000})
	svc := NewRevenueService()

	_, err := svc.Distribute(context.Background(), stores, order)
	assert.ErrorIs(t, err, ErrCourseCreatorNotFound)
}

func TestDistributeHonorsDiscounts(t *testing.T) {
	stores, _ := distributionFixture(t)
	discount := int64(2000)
	order := &model.Order{
		UserID:         1,
		Amount:         8000,
		PaymentGateway: model.GatewayRazorpay,
		Items: []model.OrderItem{
			{CourseID: 10, CourseTitle: "Course A", CoursePrice: 10000, Discount: &discount},
		},
	}
	require.NoError(t, stores.Orders().Create(context.Background(), order))

	_, err := NewRevenueService().Distribute(context.Background(), stores, order)
	require.NoError(t, err)

	// Net 8000 at 20% -> platform 1600, creator 6400
	assert.Equal(t, int64(1600), stores.walletBalance(4))
	assert.Equal(t, int64(6400), stores.walletBalance(2))

	// Percentage recorded for audit
	shares, err := stores.Transactions().FindByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, float64(20), metaValue(&shares[0], "percentage"))
}
