package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
)

const (
	defaultDashboardDays = 30
	maxDashboardDays     = 365
	dashboardTopProducts = 5
)

// AnalyticsService builds the admin dashboard.
type AnalyticsService struct {
	repo              repository.AnalyticsRepository
	lowStockThreshold int
	now               func() time.Time
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(repo repository.AnalyticsRepository, lowStockThreshold int) *AnalyticsService {
	return &AnalyticsService{repo: repo, lowStockThreshold: lowStockThreshold, now: utcNow}
}

// Dashboard summarises the last days days, counted from midnight UTC.
// days defaults to 30 and is clamped to 1..365.
func (s *AnalyticsService) Dashboard(ctx context.Context, days int) (*domain.Dashboard, error) {
	switch {
	case days <= 0:
		days = defaultDashboardDays
	case days > maxDashboardDays:
		days = maxDashboardDays
	}
	now := s.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	d := &domain.Dashboard{Days: days}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		revenue, orders, err := s.repo.Revenue(gctx, since)
		if err != nil {
			return fmt.Errorf("revenue: %w", err)
		}
		d.Revenue, d.OrderCount = revenue, orders
		return nil
	})
	g.Go(func() error {
		byStatus, err := s.repo.OrdersByStatus(gctx, since)
		if err != nil {
			return fmt.Errorf("orders by status: %w", err)
		}
		d.OrdersByStatus = byStatus
		return nil
	})
	g.Go(func() error {
		series, err := s.repo.RevenueByDay(gctx, since)
		if err != nil {
			return fmt.Errorf("revenue by day: %w", err)
		}
		d.RevenueByDay = series
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopProducts(gctx, since, dashboardTopProducts)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		d.TopProducts = top
		return nil
	})
	g.Go(func() error {
		low, err := s.repo.LowStock(gctx, s.lowStockThreshold)
		if err != nil {
			return fmt.Errorf("low stock: %w", err)
		}
		d.LowStock = low
		return nil
	})
	g.Go(func() error {
		total, recent, err := s.repo.Customers(gctx, since)
		if err != nil {
			return fmt.Errorf("customers: %w", err)
		}
		d.CustomerCount, d.NewCustomers = total, recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	if d.OrderCount > 0 {
		d.AverageOrderValue = d.Revenue / int64(d.OrderCount)
	}
	if d.OrdersByStatus == nil {
		d.OrdersByStatus = map[string]int{}
	}
	if d.RevenueByDay == nil {
		d.RevenueByDay = []domain.DailyRevenue{}
	}
	if d.TopProducts == nil {
		d.TopProducts = []domain.TopProduct{}
	}
	if d.LowStock == nil {
		d.LowStock = []domain.LowStockItem{}
	}
	return d, nil
}
