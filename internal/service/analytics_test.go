package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/domain"
)

func newTestAnalyticsService(repo *mockAnalyticsRepository) *AnalyticsService {
	svc := NewAnalyticsService(repo, 5)
	svc.now = fixedClock
	return svc
}

func expectDashboard(repo *mockAnalyticsRepository, since time.Time) {
	repo.On("Revenue", mock.Anything, since).Return(int64(300000), 3, nil)
	repo.On("OrdersByStatus", mock.Anything, since).Return(map[string]int{domain.OrderDelivered: 2, domain.OrderPending: 1}, nil)
	repo.On("RevenueByDay", mock.Anything, since).Return([]domain.DailyRevenue{{Date: "2026-03-14", Revenue: 300000, Orders: 3}}, nil)
	repo.On("TopProducts", mock.Anything, since, 5).Return([]domain.TopProduct{{ProductID: "p1", Name: "Serum", Units: 4}}, nil)
	repo.On("LowStock", mock.Anything, 5).Return(nil, nil)
	repo.On("Customers", mock.Anything, since).Return(40, 6, nil)
}

func TestDashboard_DefaultsToThirtyDays(t *testing.T) {
	repo := new(mockAnalyticsRepository)
	svc := newTestAnalyticsService(repo)

	since := time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)
	expectDashboard(repo, since)

	d, err := svc.Dashboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 30, d.Days)
	assert.Equal(t, int64(300000), d.Revenue)
	assert.Equal(t, 3, d.OrderCount)
	assert.Equal(t, int64(100000), d.AverageOrderValue)
	assert.Equal(t, 40, d.CustomerCount)
	assert.Equal(t, 6, d.NewCustomers)
	assert.Equal(t, 2, d.OrdersByStatus[domain.OrderDelivered])
	assert.NotNil(t, d.LowStock)
	assert.Empty(t, d.LowStock)
	repo.AssertExpectations(t)
}

func TestDashboard_ClampsDays(t *testing.T) {
	repo := new(mockAnalyticsRepository)
	svc := newTestAnalyticsService(repo)

	since := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -364)
	expectDashboard(repo, since)

	d, err := svc.Dashboard(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 365, d.Days)
}

func TestDashboard_NoOrders(t *testing.T) {
	repo := new(mockAnalyticsRepository)
	svc := newTestAnalyticsService(repo)

	since := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	repo.On("Revenue", mock.Anything, since).Return(int64(0), 0, nil)
	repo.On("OrdersByStatus", mock.Anything, since).Return(nil, nil)
	repo.On("RevenueByDay", mock.Anything, since).Return(nil, nil)
	repo.On("TopProducts", mock.Anything, since, 5).Return(nil, nil)
	repo.On("LowStock", mock.Anything, 5).Return(nil, nil)
	repo.On("Customers", mock.Anything, since).Return(0, 0, nil)

	d, err := svc.Dashboard(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.AverageOrderValue)
	assert.NotNil(t, d.OrdersByStatus)
	assert.NotNil(t, d.RevenueByDay)
	assert.NotNil(t, d.TopProducts)
}

func TestDashboard_QueryError(t *testing.T) {
	repo := new(mockAnalyticsRepository)
	svc := newTestAnalyticsService(repo)

	since := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	repo.On("Revenue", mock.Anything, since).Return(int64(0), 0, errors.New("timeout"))
	repo.On("OrdersByStatus", mock.Anything, since).Return(map[string]int{}, nil)
	repo.On("RevenueByDay", mock.Anything, since).Return([]domain.DailyRevenue{}, nil)
	repo.On("TopProducts", mock.Anything, since, 5).Return([]domain.TopProduct{}, nil)
	repo.On("LowStock", mock.Anything, 5).Return([]domain.LowStockItem{}, nil)
	repo.On("Customers", mock.Anything, since).Return(0, 0, nil)

	_, err := svc.Dashboard(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revenue")
}
