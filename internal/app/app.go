// Package app wires the storefront API together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/glowskin/internal/auth"
	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/event"
	handler "github.com/utafrali/glowskin/internal/handler/http"
	"github.com/utafrali/glowskin/internal/notify"
	"github.com/utafrali/glowskin/internal/repository/postgres"
	redisrepo "github.com/utafrali/glowskin/internal/repository/redis"
	"github.com/utafrali/glowskin/internal/search"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/migrations"
	"github.com/utafrali/glowskin/pkg/database"
	"github.com/utafrali/glowskin/pkg/health"
	pkgkafka "github.com/utafrali/glowskin/pkg/kafka"
	"github.com/utafrali/glowskin/pkg/middleware"
	"github.com/utafrali/glowskin/pkg/tracing"
)

const (
	startupTimeout = 30 * time.Second
	eventDedupeTTL = 7 * 24 * time.Hour
	storeName      = "GlowSkin"
)

// App wires together all dependencies and runs the API.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	redis           *redis.Client
	producer        *pkgkafka.Producer
	dlq             *pkgkafka.DLQProducer
	consumers       []*pkgkafka.Consumer
	bus             *event.LocalBus
	limiters        []*middleware.RateLimiter
	auth            *service.AuthService
	products        *service.ProductService
	shutdownTracing tracing.ShutdownFunc
	httpServer      *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.closeInfra()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdownTracing

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres.Database(), logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)
	database.SetSlowQueryLogging(cfg.Postgres.SlowQuery, logger)
	database.RegisterPoolMetrics(pool, cfg.ServiceName)

	if cfg.Postgres.AutoMigrate {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Initialize Redis.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis.Database())
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	logger.Info("connected to Redis")

	// Event bus: Kafka when brokers are configured, otherwise in-process.
	var publisher pkgkafka.Publisher
	if cfg.Kafka.Enabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.Kafka.Brokers), logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.Kafka.Brokers))
	} else {
		a.bus = event.NewLocalBus(logger)
		publisher = a.bus
		logger.Warn("no kafka brokers configured, dispatching events in-process")
	}
	events := event.NewProducer(publisher, logger)

	engine, err := newSearch(ctx, cfg.Search, logger)
	if err != nil {
		return err
	}

	// Repositories.
	store := postgres.NewStore(pool)
	users := postgres.NewUserRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	campaignRepo := postgres.NewCampaignRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	dedupe := redisrepo.NewDedupeStore(rdb, eventDedupeTTL)

	// Notifications.
	renderer, err := notify.NewRenderer(storeName, cfg.HTTP.FrontendURL)
	if err != nil {
		return fmt.Errorf("load notification templates: %w", err)
	}
	senders, err := newSenders(cfg, logger)
	if err != nil {
		return err
	}
	notifications := service.NewNotificationService(
		postgres.NewNotificationRepository(pool), orderRepo, renderer, senders, 0, logger)

	// Services.
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	a.auth = service.NewAuthService(
		users,
		redisrepo.NewResetTokenStore(rdb),
		auth.NewHasher(cfg.Auth.BcryptCost),
		tokens,
		notifications,
		cfg.Auth.ResetTokenTTL,
		cfg.HTTP.FrontendURL,
		logger,
	)

	var searchEngine search.Engine
	if engine != nil {
		searchEngine = engine
	}
	a.products = service.NewProductService(productRepo, campaignRepo, searchEngine, events, logger)

	var (
		shipping  *service.ShippingService
		canceller service.ShipmentCanceller
		booker    event.ShipmentBooker
	)
	if courier := newCourier(cfg.Shiprocket, rdb, logger); courier != nil {
		shipping = service.NewShippingService(store, courier, events, cfg.Shiprocket, logger)
		canceller = shipping
		if cfg.Store.AutoShip {
			booker = shipping
		}
	}

	gw := newGateways(cfg, logger)
	orders := service.NewOrderService(
		store, redisrepo.NewOrderKeyStore(rdb), gw.registry(), canceller, events, cfg.Store, logger)

	svcs := handler.Services{
		Auth:          a.auth,
		Products:      a.products,
		Cart:          service.NewCartService(redisrepo.NewCartRepository(rdb, cfg.Redis.CartTTL), productRepo, campaignRepo, cfg.Store.MaxQtyPerLine, logger),
		Coupons:       service.NewCouponService(couponRepo, logger),
		Campaigns:     service.NewCampaignService(campaignRepo, logger),
		Orders:        orders,
		Shipping:      shipping,
		Webhooks:      service.NewWebhookService(orders, dedupe, gw.razorpayVerifier(), gw.cashfreeVerifier(), cfg.Shiprocket.WebhookSecret, logger),
		Reviews:       service.NewReviewService(store, events, logger),
		Users:         service.NewUserService(users, productRepo, logger),
		Analytics:     service.NewAnalyticsService(postgres.NewAnalyticsRepository(pool), cfg.Store.LowStockThreshold),
		Notifications: notifications,
	}

	// Event consumers.
	subs := event.Subscriptions(notifications, booker, logger)
	if cfg.Kafka.Enabled() {
		a.consumers = a.newConsumers(subs, dedupe)
	} else {
		event.SubscribeLocal(a.bus, subs, dedupe, logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if cfg.Kafka.Enabled() {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.Kafka.Brokers)
		})
	}
	if engine != nil {
		healthHandler.RegisterNonCritical("elasticsearch", engine.Ping)
	}

	// HTTP router.
	limiters := handler.RateLimiters{
		API:     a.limiter(cfg.RateLimit.APIMax, cfg.RateLimit.Window),
		Auth:    a.limiter(cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow),
		Coupon:  a.limiter(cfg.RateLimit.CouponMax, cfg.RateLimit.Window),
		Webhook: a.limiter(cfg.RateLimit.WebhookMax, cfg.RateLimit.Window),
	}
	router := handler.NewRouter(handler.RouterDeps{
		Services: svcs,
		Tokens:   tokens.Validator(),
		Health:   healthHandler,
		Metrics:  middleware.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Gatherer: prometheus.DefaultGatherer,
		Limiters: limiters,
		Config: handler.RouterConfig{
			CORSOrigins:    cfg.HTTP.CORSOrigins,
			PprofCIDRs:     cfg.HTTP.PprofCIDRs,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			Cookie: handler.CookieConfig{
				Domain: cfg.Auth.CookieDomain,
				Secure: cfg.Auth.CookieSecure,
			},
		},
		Logger: logger,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return nil
}

// limiter returns nil for a non-positive limit, which leaves the route group
// unlimited.
func (a *App) limiter(limit int, window time.Duration) *middleware.RateLimiter {
	if limit <= 0 {
		return nil
	}
	rl := middleware.NewRateLimiter(limit, window, a.logger)
	a.limiters = append(a.limiters, rl)
	return rl
}

func (a *App) newConsumers(subs []event.Subscription, store pkgkafka.IdempotencyStore) []*pkgkafka.Consumer {
	var dlq pkgkafka.DeadLetterPublisher
	if a.cfg.Kafka.DLQ {
		a.dlq = pkgkafka.NewDLQProducer(a.cfg.Kafka.Brokers, a.logger)
		dlq = a.dlq
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(subs))
	for _, s := range subs {
		group := a.cfg.Kafka.GroupPrefix + "." + s.Group
		h := pkgkafka.IdempotentHandler(store, group, s.Handler, a.logger)
		consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: a.cfg.Kafka.Brokers,
			GroupID: group,
			Topics:  s.Topics,
		}, h, dlq, a.logger))
		a.logger.Info("kafka consumer configured",
			slog.String("group", group),
			slog.Any("topics", s.Topics),
		)
	}
	return consumers
}

// Run starts the HTTP server and event consumers, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.auth.EnsureAdmin(ctx, a.cfg.Auth.AdminEmail, a.cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	errCh := make(chan error, 1)

	// Start Kafka consumers.
	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	go a.reindex(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	if err := a.Shutdown(); err != nil {
		return err
	}
	return runErr
}

// reindex rebuilds the search index at startup. It is a no-op without a
// search engine.
func (a *App) reindex(ctx context.Context) {
	n, err := a.products.Reindex(ctx)
	if err != nil {
		a.logger.Error("search reindex failed",
			slog.Int("indexed", n),
			slog.String("error", err.Error()),
		)
	}
}

// Shutdown gracefully stops all components. In-flight requests finish before
// consumers stop, and pending events are flushed before the stores close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Close Kafka consumers.
	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}

	a.closeInfra()

	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(shutdownCtx); err != nil {
			a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeInfra releases whatever init managed to open.
func (a *App) closeInfra() {
	for _, rl := range a.limiters {
		rl.Close()
	}
	a.limiters = nil

	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("event bus close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
