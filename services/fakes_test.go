package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services/gateway"
)

// memStores is an in-memory database.TxRunner. WithinTransaction
// snapshots all state and restores it when the closure fails, mirroring
// a real rollback.
type memStores struct {
	mu sync.Mutex

	orders       map[uint]*model.Order
	transactions []*model.Transaction
	wallets      map[uint]*model.Wallet
	enrollments  map[[2]uint]bool
	courses      map[uint]*model.Course
	users        map[uint]*model.User
	settings     map[string]string

	nextOrderID uint
	nextTxnID   uint

	// failNextTxnCreate forces the next transaction insert to fail so
	// rollback behavior can be exercised
	failNextTxnCreate error
}

func newMemStores() *memStores {
	return &memStores{
		orders:      make(map[uint]*model.Order),
		wallets:     make(map[uint]*model.Wallet),
		enrollments: make(map[[2]uint]bool),
		courses:     make(map[uint]*model.Course),
		users:       make(map[uint]*model.User),
		settings:    make(map[string]string),
	}
}

func (m *memStores) Orders() database.OrderStore             { return memOrders{m} }
func (m *memStores) Transactions() database.TransactionStore { return memTxns{m} }
func (m *memStores) Wallets() database.WalletStore           { return memWallets{m} }
func (m *memStores) Enrollments() database.EnrollmentStore   { return memEnrollments{m} }
func (m *memStores) Courses() database.CourseStore           { return memCourses{m} }
func (m *memStores) Users() database.UserStore               { return memUsers{m} }
func (m *memStores) Settings() database.SettingStore         { return memSettings{m} }

func (m *memStores) WithinTransaction(ctx context.Context, fn func(s database.Stores) error) error {
	snapshot := m.clone()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStores) clone() *memStores {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := newMemStores()
	c.nextOrderID = m.nextOrderID
	c.nextTxnID = m.nextTxnID
	for id, o := range m.orders {
		cp := *o
		cp.Items = append([]model.OrderItem(nil), o.Items...)
		c.orders[id] = &cp
	}
	for _, t := range m.transactions {
		cp := *t
		c.transactions = append(c.transactions, &cp)
	}
	for id, w := range m.wallets {
		cp := *w
		c.wallets[id] = &cp
	}
	for k, v := range m.enrollments {
		c.enrollments[k] = v
	}
	for id, course := range m.courses {
		cp := *course
		c.courses[id] = &cp
	}
	for id, u := range m.users {
		cp := *u
		c.users[id] = &cp
	}
	for k, v := range m.settings {
		c.settings[k] = v
	}
	return c
}

func (m *memStores) restore(snapshot *memStores) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = snapshot.orders
	m.transactions = snapshot.transactions
	m.wallets = snapshot.wallets
	m.enrollments = snapshot.enrollments
	m.courses = snapshot.courses
	m.users = snapshot.users
	m.settings = snapshot.settings
	m.nextOrderID = snapshot.nextOrderID
	m.nextTxnID = snapshot.nextTxnID
}

// Seeding helpers

func (m *memStores) addUser(u model.User) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[cp.ID] = &cp
	return &cp
}

func (m *memStores) addCourse(c model.Course) *model.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.courses[cp.ID] = &cp
	return &cp
}

func (m *memStores) walletBalance(userID uint) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[userID]; ok {
		return w.Balance
	}
	return 0
}

func (m *memStores) txnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

type memOrders struct{ m *memStores }

func (s memOrders) Create(ctx context.Context, order *model.Order) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.nextOrderID++
	order.ID = s.m.nextOrderID
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	cp := *order
	cp.Items = append([]model.OrderItem(nil), order.Items...)
	s.m.orders[order.ID] = &cp
	return nil
}

func (s memOrders) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.orders[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s memOrders) FindByPaymentID(ctx context.Context, paymentID string, forUpdate bool) (*model.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, o := range s.m.orders {
		if o.PaymentID != nil && *o.PaymentID == paymentID {
			cp := *o
			cp.Items = append([]model.OrderItem(nil), o.Items...)
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s memOrders) LockByID(ctx context.Context, id uint) (*model.Order, error) {
	return s.FindByID(ctx, id)
}

func (s memOrders) SetPaymentIntent(ctx context.Context, orderID uint, gw model.PaymentGateway, paymentID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.orders[orderID]
	if !ok {
		return database.ErrNotFound
	}
	o.PaymentGateway = gw
	o.PaymentID = &paymentID
	return nil
}

func (s memOrders) UpdateStatus(ctx context.Context, orderID uint, payment model.PaymentStatus, status model.OrderStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.orders[orderID]
	if !ok {
		return database.ErrNotFound
	}
	o.PaymentStatus = payment
	o.OrderStatus = status
	return nil
}

func (s memOrders) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var stale []model.Order
	for _, o := range s.m.orders {
		if o.PaymentStatus == model.PaymentStatusPending && o.CreatedAt.Before(olderThan) {
			stale = append(stale, *o)
			if len(stale) == limit {
				break
			}
		}
	}
	return stale, nil
}

type memTxns struct{ m *memStores }

func (s memTxns) Create(ctx context.Context, txn *model.Transaction) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failNextTxnCreate; err != nil {
		s.m.failNextTxnCreate = nil
		return err
	}
	s.m.nextTxnID++
	txn.ID = s.m.nextTxnID
	txn.CreatedAt = time.Now()
	cp := *txn
	s.m.transactions = append(s.m.transactions, &cp)
	return nil
}

func (s memTxns) FindByID(ctx context.Context, id uint) (*model.Transaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.transactions {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s memTxns) FindByOrderID(ctx context.Context, orderID uint) ([]model.Transaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.m.transactions {
		if t.OrderID != nil && *t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s memTxns) UpdateStatus(ctx context.Context, id uint, status model.TransactionStatus, metadata map[string]interface{}) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.transactions {
		if t.ID == id {
			t.Status = status
			if metadata != nil {
				raw, err := json.Marshal(metadata)
				if err != nil {
					return err
				}
				t.Metadata = raw
			}
			return nil
		}
	}
	return database.ErrNotFound
}

func (s memTxns) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.Transaction, int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.m.transactions {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, int64(len(out)), nil
}

func (s memTxns) HasRevenueShare(ctx context.Context, orderID uint) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.transactions {
		if t.OrderID == nil || *t.OrderID != orderID {
			continue
		}
		if metaValue(t, model.MetaKindKey) == model.MetaKindRevenueShare {
			return true, nil
		}
	}
	return false, nil
}

func (s memTxns) HasRefundFor(ctx context.Context, purchaseTxnID uint) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	want := strconv.FormatUint(uint64(purchaseTxnID), 10)
	for _, t := range s.m.transactions {
		if t.Type == model.TransactionTypeRefund && metaValue(t, model.MetaRefundOfKey) == want {
			return true, nil
		}
	}
	return false, nil
}

func metaValue(t *model.Transaction, key string) interface{} {
	if len(t.Metadata) == 0 {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(t.Metadata, &meta); err != nil {
		return nil
	}
	return meta[key]
}

type memWallets struct{ m *memStores }

func (s memWallets) GetOrCreate(ctx context.Context, userID uint) (*model.Wallet, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[userID]
	if !ok {
		w = &model.Wallet{ID: userID, UserID: userID}
		s.m.wallets[userID] = w
	}
	cp := *w
	return &cp, nil
}

func (s memWallets) Get(ctx context.Context, userID uint) (*model.Wallet, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s memWallets) Credit(ctx context.Context, userID uint, amount int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[userID]
	if !ok {
		return database.ErrNotFound
	}
	w.Balance += amount
	return nil
}

func (s memWallets) Debit(ctx context.Context, userID uint, amount int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[userID]
	if !ok {
		return database.ErrNotFound
	}
	w.Balance -= amount
	return nil
}

type memEnrollments struct{ m *memStores }

func (s memEnrollments) Create(ctx context.Context, userID, courseID uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.enrollments[[2]uint{userID, courseID}] = true
	return nil
}

func (s memEnrollments) Exists(ctx context.Context, userID, courseID uint) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.enrollments[[2]uint{userID, courseID}], nil
}

func (s memEnrollments) ListByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Enrollment
	for key := range s.m.enrollments {
		if key[0] == userID {
			out = append(out, model.Enrollment{UserID: key[0], CourseID: key[1]})
		}
	}
	return out, nil
}

type memCourses struct{ m *memStores }

func (s memCourses) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.courses[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s memCourses) FindPublishedByID(ctx context.Context, id uint) (*model.Course, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.courses[id]
	if !ok || !c.Published {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type memUsers struct{ m *memStores }

func (s memUsers) FindByID(ctx context.Context, id uint) (*model.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type memSettings struct{ m *memStores }

func (s memSettings) Get(ctx context.Context, key string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.settings[key]
	if !ok {
		return "", database.ErrSettingNotFound
	}
	return v, nil
}

func (s memSettings) Set(ctx context.Context, key, value string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.settings[key] = value
	return nil
}

// fakeGateway scripts provider behavior for service tests
type fakeGateway struct {
	provider      model.PaymentGateway
	intent        *gateway.Intent
	intentErr     error
	verifyOK      bool
	event         *gateway.Event
	parseErr      error
	createdIntent *gateway.IntentRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		provider: model.GatewayRazorpay,
		intent:   &gateway.Intent{ExternalID: "order_ext_1", ClientSecret: "secret_1"},
		verifyOK: true,
	}
}

func (f *fakeGateway) Provider() model.PaymentGateway { return f.provider }

func (f *fakeGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	f.createdIntent = &req
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	return f.intent, nil
}

func (f *fakeGateway) VerifySignature(payload []byte, signature string) bool {
	return f.verifyOK
}

func (f *fakeGateway) ParseWebhookEvent(payload []byte) (*gateway.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

// fakeNotifier records every notification fan-out
type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

type notifierCall struct {
	userIDs []uint
	input   NotificationInput
}

func (f *fakeNotifier) CreateNotificationsForUsers(ctx context.Context, userIDs []uint, input NotificationInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifierCall{userIDs: userIDs, input: input})
	return nil
}

func (f *fakeNotifier) callsFor(eventType model.NotificationEventType) []notifierCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifierCall
	for _, call := range f.calls {
		if call.input.EventType == eventType {
			out = append(out, call)
		}
	}
	return out
}

// fakeReceipts records receipt emails
type fakeReceipts struct {
	mu   sync.Mutex
	sent []string // recipient emails
}

func (f *fakeReceipts) SendPurchaseReceipt(toEmail, userName string, order *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, toEmail)
	return nil
}

// fakeScheduler captures scheduled callbacks so tests fire them manually
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{d: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if task.fired {
			return false
		}
		task.cancelled = true
		return true
	}
}

// fire runs every pending callback, simulating the window elapsing
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var pending []*fakeTask
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			task.fired = true
			pending = append(pending, task)
		}
	}
	s.mu.Unlock()

	for _, task := range pending {
		task.fn()
	}
}

func (s *fakeScheduler) scheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
