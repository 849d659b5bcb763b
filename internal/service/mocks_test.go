package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	"github.com/utafrali/glowskin/internal/repository"
	"github.com/utafrali/glowskin/internal/shiprocket"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// --- Mock Store ---

type mockStore struct {
	users     *mockUserRepository
	products  *mockProductRepository
	orders    *mockOrderRepository
	coupons   *mockCouponRepository
	campaigns *mockCampaignRepository
	reviews   *mockReviewRepository
	txErr     error
	txCount   int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:     new(mockUserRepository),
		products:  new(mockProductRepository),
		orders:    new(mockOrderRepository),
		coupons:   new(mockCouponRepository),
		campaigns: new(mockCampaignRepository),
		reviews:   new(mockReviewRepository),
	}
}

func (s *mockStore) Users() repository.UserRepository         { return s.users }
func (s *mockStore) Products() repository.ProductRepository   { return s.products }
func (s *mockStore) Orders() repository.OrderRepository       { return s.orders }
func (s *mockStore) Coupons() repository.CouponRepository     { return s.coupons }
func (s *mockStore) Campaigns() repository.CampaignRepository { return s.campaigns }
func (s *mockStore) Reviews() repository.ReviewRepository     { return s.reviews }

func (s *mockStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	s.txCount++
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s)
}

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *mockUserRepository) List(ctx context.Context, filter domain.UserFilter, page pagination.Params) ([]domain.User, int, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Int(1), args.Error(2)
}

// --- Mock Product Repository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CategoryCount), args.Error(1)
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockProductRepository) SetStock(ctx context.Context, id string, stock int) error {
	args := m.Called(ctx, id, stock)
	return args.Error(0)
}

func (m *mockProductRepository) LockForUpdate(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	args := m.Called(ctx, id, qty)
	return args.Error(0)
}

func (m *mockProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	args := m.Called(ctx, id, qty)
	return args.Error(0)
}

func (m *mockProductRepository) RecomputeRating(ctx context.Context, productID string) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

// --- Mock Order Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) order(args mock.Arguments) (*domain.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return m.order(m.Called(ctx, id))
}

func (m *mockOrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return m.order(m.Called(ctx, number))
}

func (m *mockOrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return m.order(m.Called(ctx, gatewayOrderID))
}

func (m *mockOrderRepository) GetByAWB(ctx context.Context, awb string) (*domain.Order, error) {
	return m.order(m.Called(ctx, awb))
}

func (m *mockOrderRepository) LockByID(ctx context.Context, id string) (*domain.Order, error) {
	return m.order(m.Called(ctx, id))
}

func (m *mockOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) List(ctx context.Context, filter domain.OrderFilter, page pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) HasDeliveredItem(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

// --- Mock Coupon Repository ---

type mockCouponRepository struct {
	mock.Mock
}

func (m *mockCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	args := m.Called(ctx, coupon)
	return args.Error(0)
}

func (m *mockCouponRepository) coupon(args mock.Arguments) (*domain.Coupon, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *mockCouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	return m.coupon(m.Called(ctx, id))
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return m.coupon(m.Called(ctx, code))
}

func (m *mockCouponRepository) LockByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return m.coupon(m.Called(ctx, code))
}

func (m *mockCouponRepository) List(ctx context.Context, page pagination.Params) ([]domain.Coupon, int, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Coupon), args.Int(1), args.Error(2)
}

func (m *mockCouponRepository) Update(ctx context.Context, coupon *domain.Coupon) error {
	args := m.Called(ctx, coupon)
	return args.Error(0)
}

func (m *mockCouponRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCouponRepository) IncrementUsage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCouponRepository) RecordUsage(ctx context.Context, usage *domain.CouponUsage) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

func (m *mockCouponRepository) UserUsageCount(ctx context.Context, couponID, userID, email string) (int, error) {
	args := m.Called(ctx, couponID, userID, email)
	return args.Int(0), args.Error(1)
}

func (m *mockCouponRepository) ReleaseUsage(ctx context.Context, couponID, orderID string) error {
	args := m.Called(ctx, couponID, orderID)
	return args.Error(0)
}

// --- Mock Campaign Repository ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, page pagination.Params) ([]domain.Campaign, int, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Campaign), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Review Repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockReviewRepository) ListByProduct(ctx context.Context, productID string, page pagination.Params) ([]domain.Review, int, error) {
	args := m.Called(ctx, productID, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

func (m *mockReviewRepository) List(ctx context.Context, page pagination.Params) ([]domain.Review, int, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

func (m *mockReviewRepository) Summary(ctx context.Context, productID string) (domain.ReviewSummary, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.ReviewSummary), args.Error(1)
}

// --- Mock Notification Repository ---

type mockNotificationRepository struct {
	mock.Mock
}

func (m *mockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotificationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Notification, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

// --- Mock Analytics Repository ---

type mockAnalyticsRepository struct {
	mock.Mock
}

func (m *mockAnalyticsRepository) Revenue(ctx context.Context, since time.Time) (int64, int, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Int(1), args.Error(2)
}

func (m *mockAnalyticsRepository) OrdersByStatus(ctx context.Context, since time.Time) (map[string]int, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockAnalyticsRepository) RevenueByDay(ctx context.Context, since time.Time) ([]domain.DailyRevenue, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DailyRevenue), args.Error(1)
}

func (m *mockAnalyticsRepository) TopProducts(ctx context.Context, since time.Time, limit int) ([]domain.TopProduct, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TopProduct), args.Error(1)
}

func (m *mockAnalyticsRepository) LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LowStockItem), args.Error(1)
}

func (m *mockAnalyticsRepository) Customers(ctx context.Context, since time.Time) (int, int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Int(1), args.Error(2)
}

// --- Mock Cart Repository ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock Key Stores ---

type mockDedupeStore struct {
	mock.Mock
}

func (m *mockDedupeStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockDedupeStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type mockResetTokenStore struct {
	mock.Mock
}

func (m *mockResetTokenStore) Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenHash, userID, ttl)
	return args.Error(0)
}

func (m *mockResetTokenStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	args := m.Called(ctx, tokenHash)
	return args.String(0), args.Error(1)
}

type mockOrderKeyStore struct {
	mock.Mock
}

func (m *mockOrderKeyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockOrderKeyStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	args := m.Called(ctx, key, orderID, ttl)
	return args.Error(0)
}

func (m *mockOrderKeyStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
	name string
}

func (m *mockGateway) Name() string { return m.name }

func (m *mockGateway) CreateOrder(ctx context.Context, order *domain.Order) (*payment.Checkout, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Checkout), args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, order *domain.Order, in payment.VerifyInput) (*payment.Result, error) {
	args := m.Called(ctx, order, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

// --- Mock Courier ---

type mockCourier struct {
	mock.Mock
}

func (m *mockCourier) CreateOrder(ctx context.Context, req *shiprocket.CreateOrderRequest) (*shiprocket.CreateOrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shiprocket.CreateOrderResponse), args.Error(1)
}

func (m *mockCourier) Serviceability(ctx context.Context, q shiprocket.ServiceabilityQuery) ([]shiprocket.Courier, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shiprocket.Courier), args.Error(1)
}

func (m *mockCourier) AssignAWB(ctx context.Context, shipmentID int64, courierID int) (*shiprocket.AWBAssignment, error) {
	args := m.Called(ctx, shipmentID, courierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shiprocket.AWBAssignment), args.Error(1)
}

func (m *mockCourier) GeneratePickup(ctx context.Context, shipmentID int64) (string, error) {
	args := m.Called(ctx, shipmentID)
	return args.String(0), args.Error(1)
}

func (m *mockCourier) Track(ctx context.Context, awb string) (*shiprocket.Tracking, error) {
	args := m.Called(ctx, awb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shiprocket.Tracking), args.Error(1)
}

func (m *mockCourier) CancelOrder(ctx context.Context, ids ...int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockCourier) PickupPincode() string { return "110001" }

// --- Recording Publisher ---

type publishedEvent struct {
	Type        string
	AggregateID string
	Data        any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, aggregateID, _ string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, AggregateID: aggregateID, Data: data})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testProduct(id string, price int64, stock int) *domain.Product {
	return &domain.Product{
		ID:          id,
		Name:        "Vitamin C Serum " + id,
		Slug:        "vitamin-c-serum-" + id,
		SKU:         "SKU-" + id,
		Category:    "serums",
		Price:       price,
		Stock:       stock,
		WeightGrams: 120,
		IsActive:    true,
		Images:      []domain.ProductImage{},
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
}

func testAddress() domain.Address {
	return domain.Address{
		FullName: "Asha Rao",
		Phone:    "9876543210",
		Line1:    "12 MG Road",
		City:     "Bengaluru",
		State:    "Karnataka",
		Pincode:  "560001",
		Country:  "India",
	}
}

func testOrder(id, status, method, paymentStatus string) *domain.Order {
	return &domain.Order{
		ID:              id,
		OrderNumber:     "GS-20260314-" + id,
		UserID:          "user-1",
		Customer:        domain.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
		ShippingAddress: testAddress(),
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Vitamin C Serum", Slug: "vitamin-c-serum", Price: 59900, Quantity: 2, LineTotal: 119800},
		},
		Subtotal:      119800,
		ShippingFee:   0,
		Total:         119800,
		Currency:      "INR",
		PaymentMethod: method,
		PaymentStatus: paymentStatus,
		Status:        status,
		StatusHistory: []domain.StatusEntry{{Status: domain.OrderPending, Actor: domain.ActorSystem, At: fixedNow}},
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
}
