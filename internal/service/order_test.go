package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// --- Test Helpers ---

func testStoreConfig() config.StoreConfig {
	return config.StoreConfig{
		Currency:              "INR",
		FreeShippingThreshold: 99900,
		FlatShippingFee:       4900,
		LowStockThreshold:     5,
		MaxQtyPerLine:         10,
		IdempotencyTTL:        time.Hour,
	}
}

type mockCanceller struct {
	mock.Mock
}

func (m *mockCanceller) CancelShipment(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func newTestOrderService(store *mockStore, keys *mockOrderKeyStore, pub *recordingPublisher, gateways ...payment.Gateway) *OrderService {
	svc := NewOrderService(store, keys, payment.NewRegistry(gateways...), nil, pub, testStoreConfig(), newTestLogger())
	svc.now = fixedClock
	return svc
}

func codInput(qty int) *CreateOrderInput {
	return &CreateOrderInput{
		Customer:        domain.Customer{Name: "Asha Rao", Email: "Asha@Example.com", Phone: "9876543210"},
		ShippingAddress: testAddress(),
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: qty}},
		PaymentMethod:   domain.PaymentCOD,
	}
}

func expectCatalog(store *mockStore, products ...*domain.Product) {
	ids := make([]string, 0, len(products))
	list := make([]domain.Product, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		list = append(list, *p)
	}
	store.products.On("LockForUpdate", mock.Anything, ids).Return(list, nil)
	store.campaigns.On("ListRunning", mock.Anything, fixedNow).Return([]domain.Campaign{}, nil)
}

// --- CreateOrder Tests ---

func TestCreateOrder_CODConfirmsImmediately(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	expectCatalog(store, testProduct("p1", 59900, 5))
	store.products.On("DecrementStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)
	store.orders.On("Update", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)

	result, err := svc.CreateOrder(context.Background(), "user-1", codInput(2), "")
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	o := result.Order
	assert.Nil(t, result.Payment)
	assert.Equal(t, domain.OrderConfirmed, o.Status)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.Equal(t, int64(119800), o.Subtotal)
	assert.Equal(t, int64(0), o.ShippingFee)
	assert.Equal(t, int64(119800), o.Total)
	assert.Equal(t, "asha@example.com", o.Customer.Email)
	assert.Equal(t, "India", o.ShippingAddress.Country)
	require.Len(t, o.StatusHistory, 2)
	assert.Equal(t, domain.OrderPending, o.StatusHistory[0].Status)
	assert.Equal(t, domain.ActorCustomer, o.StatusHistory[0].Actor)
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderConfirmed}, pub.types())
	store.products.AssertExpectations(t)
}

func TestCreateOrder_ChargesShippingBelowThreshold(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	expectCatalog(store, testProduct("p1", 59900, 5))
	store.products.On("DecrementStock", mock.Anything, "p1", 1).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.CreateOrder(context.Background(), "", codInput(1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(4900), result.Order.ShippingFee)
	assert.Equal(t, int64(64800), result.Order.Total)
	assert.Equal(t, domain.ActorSystem, result.Order.StatusHistory[0].Actor)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	expectCatalog(store, testProduct("p1", 59900, 1))

	result, err := svc.CreateOrder(context.Background(), "user-1", codInput(2), "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	store.products.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)
	store.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_InactiveProduct(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	p := testProduct("p1", 59900, 5)
	p.IsActive = false
	expectCatalog(store, p)

	_, err := svc.CreateOrder(context.Background(), "user-1", codInput(1), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestCreateOrder_MergesDuplicateLinesAndCapsQuantity(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	input := codInput(6)
	input.Items = append(input.Items, OrderItemInput{ProductID: "p1", Quantity: 5})

	_, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, 0, store.txCount)
}

func TestCreateOrder_AppliesCoupon(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	coupon := &domain.Coupon{ID: "c1", Code: "GLOW10", Type: domain.CouponPercentage, Value: 10, IsActive: true}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "GLOW10").Return(coupon, nil)
	store.coupons.On("IncrementUsage", mock.Anything, "c1").Return(nil)
	store.coupons.On("RecordUsage", mock.Anything, mock.MatchedBy(func(u *domain.CouponUsage) bool {
		return u.CouponID == "c1" && u.Discount == 11980 && u.UserID == "user-1" && u.Email == "asha@example.com"
	})).Return(nil)
	store.products.On("DecrementStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	input := codInput(2)
	input.CouponCode = " glow10 "
	result, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.NoError(t, err)

	o := result.Order
	assert.Equal(t, "GLOW10", o.CouponCode)
	assert.Equal(t, int64(11980), o.Discount)
	assert.Equal(t, int64(0), o.ShippingFee)
	assert.Equal(t, int64(107820), o.Total)
	store.coupons.AssertExpectations(t)
}

func TestCreateOrder_FreeShippingCoupon(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	coupon := &domain.Coupon{ID: "c2", Code: "SHIPFREE", Type: domain.CouponFreeShipping, IsActive: true}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "SHIPFREE").Return(coupon, nil)
	store.coupons.On("IncrementUsage", mock.Anything, "c2").Return(nil)
	store.coupons.On("RecordUsage", mock.Anything, mock.Anything).Return(nil)
	store.products.On("DecrementStock", mock.Anything, "p1", 1).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	input := codInput(1)
	input.CouponCode = "SHIPFREE"
	result, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Order.Discount)
	assert.Equal(t, int64(0), result.Order.ShippingFee)
	assert.Equal(t, int64(59900), result.Order.Total)
}

func TestCreateOrder_GuestPerUserLimitCountsByEmail(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	coupon := &domain.Coupon{ID: "c3", Code: "FIRST", Type: domain.CouponPercentage, Value: 10, PerUserLimit: 1, IsActive: true}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "FIRST").Return(coupon, nil)
	store.coupons.On("UserUsageCount", mock.Anything, "c3", "", "asha@example.com").Return(1, nil)

	input := codInput(1)
	input.CouponCode = "FIRST"
	_, err := svc.CreateOrder(context.Background(), "", input, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), string(domain.CouponUserLimit))
	store.products.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)
	store.coupons.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything)
}

func TestCreateOrder_GuestCouponUsageRecordsEmail(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	coupon := &domain.Coupon{ID: "c3", Code: "FIRST", Type: domain.CouponPercentage, Value: 10, PerUserLimit: 1, IsActive: true}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "FIRST").Return(coupon, nil)
	store.coupons.On("UserUsageCount", mock.Anything, "c3", "", "asha@example.com").Return(0, nil)
	store.coupons.On("IncrementUsage", mock.Anything, "c3").Return(nil)
	store.coupons.On("RecordUsage", mock.Anything, mock.MatchedBy(func(u *domain.CouponUsage) bool {
		return u.UserID == "" && u.Email == "asha@example.com"
	})).Return(nil)
	store.products.On("DecrementStock", mock.Anything, "p1", 1).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	input := codInput(1)
	input.CouponCode = "FIRST"
	_, err := svc.CreateOrder(context.Background(), "", input, "")
	require.NoError(t, err)
	store.coupons.AssertExpectations(t)
}

func TestCreateOrder_ExpiredCouponRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	expired := fixedNow.Add(-24 * time.Hour)
	coupon := &domain.Coupon{ID: "c1", Code: "OLD", Type: domain.CouponFixed, Value: 5000, IsActive: true, ValidUntil: &expired}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "OLD").Return(coupon, nil)

	input := codInput(1)
	input.CouponCode = "OLD"
	_, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), string(domain.CouponExpired))
	store.products.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_UnknownCoupon(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	expectCatalog(store, testProduct("p1", 59900, 5))
	store.coupons.On("LockByCode", mock.Anything, "NOPE").Return(nil, apperrors.NotFound("coupon", "NOPE"))

	input := codInput(1)
	input.CouponCode = "nope"
	_, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "invalid coupon code")
}

func TestCreateOrder_OnlineOpensCheckout(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	gw := &mockGateway{name: domain.PaymentRazorpay}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub, gw)

	expectCatalog(store, testProduct("p1", 59900, 5))
	store.products.On("DecrementStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)
	gw.On("CreateOrder", mock.Anything, mock.Anything).Return(&payment.Checkout{
		Gateway:        domain.PaymentRazorpay,
		GatewayOrderID: "order_rzp_1",
		KeyID:          "rzp_test",
		Amount:         119800,
		Currency:       "INR",
	}, nil)

	input := codInput(2)
	input.PaymentMethod = domain.PaymentRazorpay
	result, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Equal(t, "order_rzp_1", result.Payment.GatewayOrderID)
	assert.Equal(t, "order_rzp_1", result.Order.Payment.GatewayOrderID)
	assert.Equal(t, domain.OrderPending, result.Order.Status)
	assert.Equal(t, []string{domain.EventOrderCreated}, pub.types())
}

func TestCreateOrder_UnavailableGateway(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	input := codInput(1)
	input.PaymentMethod = domain.PaymentCashfree
	_, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, 0, store.txCount)
}

func TestCreateOrder_GatewayFailureCancelsAndRestoresStock(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	gw := &mockGateway{name: domain.PaymentRazorpay}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub, gw)

	created := &domain.Order{}
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.products.On("DecrementStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		*created = *args.Get(1).(*domain.Order)
	}).Return(nil)
	gw.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, errors.New("gateway timeout"))
	store.orders.On("LockByID", mock.Anything, mock.Anything).Return(created, nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	input := codInput(2)
	input.PaymentMethod = domain.PaymentRazorpay
	result, err := svc.CreateOrder(context.Background(), "user-1", input, "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentFailed))

	assert.Equal(t, domain.OrderCancelled, created.Status)
	assert.Equal(t, domain.PaymentFailed, created.PaymentStatus)
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderCancelled}, pub.types())
	store.products.AssertCalled(t, "RestoreStock", mock.Anything, "p1", 2)
}

func TestCreateOrder_IdempotencyReplay(t *testing.T) {
	store := newMockStore()
	keys := new(mockOrderKeyStore)
	svc := newTestOrderService(store, keys, &recordingPublisher{})

	existing := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	keys.On("Reserve", mock.Anything, "user-1:key-1", time.Hour).Return("order-1", false, nil)
	store.orders.On("GetByID", mock.Anything, "order-1").Return(existing, nil)

	result, err := svc.CreateOrder(context.Background(), "user-1", codInput(1), "key-1")
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, "order-1", result.Order.ID)
	assert.Equal(t, 0, store.txCount)
}

func TestCreateOrder_IdempotencyInFlight(t *testing.T) {
	store := newMockStore()
	keys := new(mockOrderKeyStore)
	svc := newTestOrderService(store, keys, &recordingPublisher{})

	keys.On("Reserve", mock.Anything, "guest:key-1", time.Hour).Return("", false, nil)

	_, err := svc.CreateOrder(context.Background(), "", codInput(1), "key-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestCreateOrder_IdempotencyKeyCompleted(t *testing.T) {
	store := newMockStore()
	keys := new(mockOrderKeyStore)
	svc := newTestOrderService(store, keys, &recordingPublisher{})

	keys.On("Reserve", mock.Anything, "user-1:key-1", time.Hour).Return("", true, nil)
	keys.On("Complete", mock.Anything, "user-1:key-1", mock.AnythingOfType("string"), time.Hour).Return(nil)
	expectCatalog(store, testProduct("p1", 59900, 5))
	store.products.On("DecrementStock", mock.Anything, "p1", 1).Return(nil)
	store.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.orders.On("Update", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateOrder(context.Background(), "user-1", codInput(1), "key-1")
	require.NoError(t, err)
	keys.AssertExpectations(t)
	keys.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestCreateOrder_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	store := newMockStore()
	keys := new(mockOrderKeyStore)
	svc := newTestOrderService(store, keys, &recordingPublisher{})

	keys.On("Reserve", mock.Anything, "user-1:key-1", time.Hour).Return("", true, nil)
	keys.On("Release", mock.Anything, "user-1:key-1").Return(nil)
	expectCatalog(store, testProduct("p1", 59900, 0))

	_, err := svc.CreateOrder(context.Background(), "user-1", codInput(1), "key-1")
	require.Error(t, err)
	keys.AssertCalled(t, "Release", mock.Anything, "user-1:key-1")
}

// --- Payment Tests ---

func TestVerifyPayment_Paid(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	gw := &mockGateway{name: domain.PaymentRazorpay}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub, gw)

	o := testOrder("order-1", domain.OrderPending, domain.PaymentRazorpay, domain.PaymentPending)
	in := payment.VerifyInput{GatewayOrderID: "order_rzp_1", PaymentID: "pay_1", Signature: "sig"}
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)
	gw.On("Verify", mock.Anything, o, in).Return(&payment.Result{Paid: true, PaymentID: "pay_1", Signature: "sig"}, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, err := svc.VerifyPayment(context.Background(), "user-1", false, "order-1", in)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "pay_1", got.Payment.PaymentID)
	require.NotNil(t, got.Payment.PaidAt)
	assert.Equal(t, []string{domain.EventPaymentCaptured, domain.EventOrderConfirmed}, pub.types())
}

func TestVerifyPayment_SignatureMismatchFails(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	gw := &mockGateway{name: domain.PaymentRazorpay}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub, gw)

	o := testOrder("order-1", domain.OrderPending, domain.PaymentRazorpay, domain.PaymentPending)
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)
	gw.On("Verify", mock.Anything, o, mock.Anything).Return(&payment.Result{Reason: "signature mismatch"}, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	_, err := svc.VerifyPayment(context.Background(), "user-1", false, "order-1", payment.VerifyInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentFailed))
	assert.Equal(t, domain.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, []string{domain.EventPaymentFailed}, pub.types())
}

func TestVerifyPayment_OtherUsersOrderHidden(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderPending, domain.PaymentRazorpay, domain.PaymentPending)
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)

	_, err := svc.VerifyPayment(context.Background(), "user-2", false, "order-1", payment.VerifyInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestVerifyPayment_CODRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)

	_, err := svc.VerifyPayment(context.Background(), "user-1", false, "order-1", payment.VerifyInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestConfirmPayment_AlreadyPaidIsNoop(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentRazorpay, domain.PaymentPaid)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)

	_, changed, err := svc.ConfirmPayment(context.Background(), "order-1", "pay_1", "", domain.ActorGateway)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, pub.types())
	store.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestConfirmPayment_CancelledOrderStaysCancelled(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderCancelled, domain.PaymentRazorpay, domain.PaymentPending)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ConfirmPayment(context.Background(), "order-1", "pay_1", "", domain.ActorGateway)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, []string{domain.EventPaymentCaptured}, pub.types())
}

func TestFailPayment_PaidOrderUntouched(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentRazorpay, domain.PaymentPaid)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)

	_, changed, err := svc.FailPayment(context.Background(), "order-1", "declined", domain.ActorGateway)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)
}

// --- Lifecycle Tests ---

func TestApplyCarrierUpdate_MovesForward(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderProcessing, domain.PaymentCOD, domain.PaymentPending)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "DELIVERED")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderDelivered, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "DELIVERED", got.Shipment.CarrierStatus)
	assert.Equal(t, []string{domain.EventOrderStatusChanged}, pub.types())
}

func TestApplyCarrierUpdate_IgnoresBackwardTransition(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderDelivered, domain.PaymentRazorpay, domain.PaymentPaid)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "IN TRANSIT")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderDelivered, got.Status)
	assert.Equal(t, "IN TRANSIT", got.Shipment.CarrierStatus)
	assert.Empty(t, pub.types())
}

func TestApplyCarrierUpdate_DeliveredIgnoresCarrierCancel(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderDelivered, domain.PaymentCOD, domain.PaymentPaid)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "CANCELED")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderDelivered, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Empty(t, pub.types())
}

func TestApplyCarrierUpdate_UnknownStatusOnlyRecordsCarrierStatus(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderProcessing, domain.PaymentCOD, domain.PaymentPending)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	history := len(o.StatusHistory)
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "MISROUTED AT HUB")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
	assert.Equal(t, "MISROUTED AT HUB", got.Shipment.CarrierStatus)
	assert.Len(t, got.StatusHistory, history)
	assert.Empty(t, pub.types())
}

func TestApplyCarrierUpdate_CarrierCancelBeforePickupRestoresStock(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderProcessing, domain.PaymentCOD, domain.PaymentPending)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil).Once()

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "CANCELED")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.True(t, got.StockReleased)
	store.products.AssertNumberOfCalls(t, "RestoreStock", 1)
}

func TestApplyCarrierUpdate_CarrierCancelInTransitKeepsStock(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	o.Shipment = &domain.Shipment{AWBCode: "AWB1"}
	store.orders.On("GetByAWB", mock.Anything, "AWB1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, changed, err := svc.ApplyCarrierUpdate(context.Background(), "AWB1", "CANCELLED")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.False(t, got.StockReleased)
	store.products.AssertNotCalled(t, "RestoreStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOrder_RestoresStockAndCoupon(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	o.CouponCode = "GLOW10"
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil)
	store.coupons.On("GetByCode", mock.Anything, "GLOW10").Return(&domain.Coupon{ID: "c1", Code: "GLOW10"}, nil)
	store.coupons.On("ReleaseUsage", mock.Anything, "c1", "order-1").Return(nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, err := svc.CancelOrder(context.Background(), "order-1", "user-1", false, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Equal(t, "cancelled: changed my mind", last.Note)
	assert.Equal(t, domain.ActorCustomer, last.Actor)
	assert.Equal(t, []string{domain.EventOrderStatusChanged}, pub.types())
	store.coupons.AssertExpectations(t)
}

func TestCancelOrder_ShippedOrderRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)

	_, err := svc.CancelOrder(context.Background(), "order-1", "user-1", false, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, 0, store.txCount)
}

func TestCancelOrder_CancelsShipment(t *testing.T) {
	store := newMockStore()
	canceller := new(mockCanceller)
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})
	svc.shipping = canceller

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	o.Shipment = &domain.Shipment{ShiprocketOrderID: 991, Status: domain.ShipmentCreated}
	store.orders.On("GetByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)
	canceller.On("CancelShipment", mock.Anything, o).Return(nil)

	_, err := svc.CancelOrder(context.Background(), "order-1", "admin-1", true, "")
	require.NoError(t, err)
	canceller.AssertExpectations(t)
	assert.Equal(t, domain.ActorAdmin, o.StatusHistory[len(o.StatusHistory)-1].Actor)
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)

	got, err := svc.UpdateStatus(context.Background(), "order-1", domain.OrderShipped, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, got.Status)
	assert.Empty(t, pub.types())
	store.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateStatus_AdminMayMoveBackwards(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, err := svc.UpdateStatus(context.Background(), "order-1", domain.OrderProcessing, "repacked")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	assert.Equal(t, domain.ActorAdmin, got.StatusHistory[len(got.StatusHistory)-1].Actor)
}

func TestUpdateStatus_AdminCancelRestoresStockAndCoupon(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	o.CouponCode = "GLOW10"
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil).Once()
	store.coupons.On("GetByCode", mock.Anything, "GLOW10").Return(&domain.Coupon{ID: "c1", Code: "GLOW10"}, nil)
	store.coupons.On("ReleaseUsage", mock.Anything, "c1", "order-1").Return(nil).Once()
	store.orders.On("Update", mock.Anything, o).Return(nil)

	got, err := svc.UpdateStatus(context.Background(), "order-1", domain.OrderCancelled, "out of stock at warehouse")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.True(t, got.StockReleased)
	assert.Equal(t, []string{domain.EventOrderStatusChanged}, pub.types())
	store.products.AssertExpectations(t)
	store.coupons.AssertExpectations(t)
}

func TestUpdateStatus_ReenteringCancelledRestoresOnlyReservedStock(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderConfirmed, domain.PaymentCOD, domain.PaymentPending)
	o.CouponCode = "GLOW10"
	o.Discount = 11980
	coupon := &domain.Coupon{ID: "c1", Code: "GLOW10"}
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.orders.On("Update", mock.Anything, o).Return(nil)
	store.products.On("RestoreStock", mock.Anything, "p1", 2).Return(nil)
	store.products.On("LockForUpdate", mock.Anything, []string{"p1"}).Return([]domain.Product{*testProduct("p1", 59900, 5)}, nil)
	store.products.On("DecrementStock", mock.Anything, "p1", 2).Return(nil)
	store.coupons.On("GetByCode", mock.Anything, "GLOW10").Return(coupon, nil)
	store.coupons.On("ReleaseUsage", mock.Anything, "c1", "order-1").Return(nil)
	store.coupons.On("LockByCode", mock.Anything, "GLOW10").Return(coupon, nil)
	store.coupons.On("IncrementUsage", mock.Anything, "c1").Return(nil)
	store.coupons.On("RecordUsage", mock.Anything, mock.MatchedBy(func(u *domain.CouponUsage) bool {
		return u.CouponID == "c1" && u.OrderID == "order-1" && u.UserID == "user-1" && u.Discount == 11980
	})).Return(nil)

	ctx := context.Background()
	_, err := svc.UpdateStatus(ctx, "order-1", domain.OrderCancelled, "")
	require.NoError(t, err)
	got, err := svc.UpdateStatus(ctx, "order-1", domain.OrderConfirmed, "customer called back")
	require.NoError(t, err)
	assert.False(t, got.StockReleased)
	got, err = svc.UpdateStatus(ctx, "order-1", domain.OrderCancelled, "")
	require.NoError(t, err)
	assert.True(t, got.StockReleased)

	store.products.AssertNumberOfCalls(t, "RestoreStock", 2)
	store.products.AssertNumberOfCalls(t, "DecrementStock", 1)
	store.coupons.AssertNumberOfCalls(t, "ReleaseUsage", 2)
	store.coupons.AssertNumberOfCalls(t, "RecordUsage", 1)
}

func TestUpdateStatus_LeavingCancelledWithoutStockConflict(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestOrderService(store, new(mockOrderKeyStore), pub)

	o := testOrder("order-1", domain.OrderCancelled, domain.PaymentCOD, domain.PaymentPending)
	o.StockReleased = true
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.products.On("LockForUpdate", mock.Anything, []string{"p1"}).Return([]domain.Product{*testProduct("p1", 59900, 1)}, nil)

	_, err := svc.UpdateStatus(context.Background(), "order-1", domain.OrderConfirmed, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, domain.OrderCancelled, o.Status)
	assert.True(t, o.StockReleased)
	assert.Empty(t, pub.types())
	store.products.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)
	store.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateStatus_LeavingCancelledDeletedProductConflict(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderCancelled, domain.PaymentCOD, domain.PaymentPending)
	o.StockReleased = true
	store.orders.On("LockByID", mock.Anything, "order-1").Return(o, nil)
	store.products.On("LockForUpdate", mock.Anything, []string{"p1"}).Return([]domain.Product{}, nil)

	_, err := svc.UpdateStatus(context.Background(), "order-1", domain.OrderProcessing, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	store.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	svc := newTestOrderService(newMockStore(), new(mockOrderKeyStore), &recordingPublisher{})

	_, err := svc.UpdateStatus(context.Background(), "order-1", "lost", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestTrackOrder_EmailMustMatch(t *testing.T) {
	store := newMockStore()
	svc := newTestOrderService(store, new(mockOrderKeyStore), &recordingPublisher{})

	o := testOrder("order-1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	store.orders.On("GetByNumber", mock.Anything, o.OrderNumber).Return(o, nil)

	got, err := svc.TrackOrder(context.Background(), o.OrderNumber, "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.ID)

	_, err = svc.TrackOrder(context.Background(), o.OrderNumber, "someone@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestListOrders_InvalidFilter(t *testing.T) {
	svc := newTestOrderService(newMockStore(), new(mockOrderKeyStore), &recordingPublisher{})

	_, _, err := svc.ListOrders(context.Background(), domain.OrderFilter{Status: "lost"}, pagination.DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
