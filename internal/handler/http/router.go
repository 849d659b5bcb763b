package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/health"
	"github.com/utafrali/glowskin/pkg/middleware"
)

// Services are the business services exposed over HTTP. Shipping and
// Notifications may be nil.
type Services struct {
	Auth          *service.AuthService
	Products      *service.ProductService
	Cart          *service.CartService
	Coupons       *service.CouponService
	Campaigns     *service.CampaignService
	Orders        *service.OrderService
	Shipping      *service.ShippingService
	Webhooks      *service.WebhookService
	Reviews       *service.ReviewService
	Users         *service.UserService
	Analytics     *service.AnalyticsService
	Notifications *service.NotificationService
}

// RateLimiters guard the abuse-prone route groups. A nil limiter is skipped.
type RateLimiters struct {
	API     *middleware.RateLimiter
	Auth    *middleware.RateLimiter
	Coupon  *middleware.RateLimiter
	Webhook *middleware.RateLimiter
}

// RouterConfig holds the HTTP layer settings.
type RouterConfig struct {
	CORSOrigins    []string
	PprofCIDRs     []string
	RequestTimeout time.Duration
	Cookie         CookieConfig
}

// RouterDeps collects everything NewRouter wires together.
type RouterDeps struct {
	Services Services
	Tokens   middleware.TokenValidator
	Health   *health.Handler
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	Limiters RateLimiters
	Config   RouterConfig
	Logger   *slog.Logger
}

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Handler
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	timeout := d.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   d.Config.CORSOrigins,
		ExposedHeaders:   []string{middleware.CorrelationIDHeader},
		MaxAge:           3600,
		AllowCredentials: true,
	}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(timeout))
	r.Use(middleware.RequestLogging(logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Handler)
	}
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, d.Config.PprofCIDRs, logger)

	svc := d.Services
	authHandler := NewAuthHandler(svc.Auth, d.Config.Cookie, logger)
	productHandler := NewProductHandler(svc.Products, logger)
	cartHandler := NewCartHandler(svc.Cart, logger)
	couponHandler := NewCouponHandler(svc.Coupons, logger)
	campaignHandler := NewCampaignHandler(svc.Campaigns, logger)
	orderHandler := NewOrderHandler(svc.Orders, svc.Notifications, logger)
	shippingHandler := NewShippingHandler(svc.Shipping, logger)
	webhookHandler := NewWebhookHandler(svc.Webhooks, logger)
	reviewHandler := NewReviewHandler(svc.Reviews, logger)
	userHandler := NewUserHandler(svc.Users, logger)
	analyticsHandler := NewAnalyticsHandler(svc.Analytics, logger)

	requireAuth := middleware.Auth(d.Tokens)
	optionalAuth := middleware.OptionalAuth(d.Tokens)
	requireAdmin := middleware.RequireRole(domain.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(limit(d.Limiters.API))

		// Provider callbacks are verified against the raw body.
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(limit(d.Limiters.Webhook))
			r.Post("/razorpay", webhookHandler.Razorpay)
			r.Post("/cashfree", webhookHandler.Cashfree)
			r.Post("/shiprocket", webhookHandler.Shiprocket)
		})

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Route("/auth", func(r chi.Router) {
				r.Use(middleware.NoStore)
				r.Group(func(r chi.Router) {
					r.Use(limit(d.Limiters.Auth))
					r.Post("/register", authHandler.Register)
					r.Post("/login", authHandler.Login)
					r.Post("/forgot-password", authHandler.ForgotPassword)
					r.Post("/reset-password", authHandler.ResetPassword)
				})
				r.Post("/logout", authHandler.Logout)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Get("/me", authHandler.Me)
					r.Put("/change-password", authHandler.ChangePassword)
				})
			})

			r.Route("/products", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(optionalAuth)
					r.Get("/", productHandler.ListProducts)
					r.Get("/search", productHandler.SearchProducts)
					r.Get("/featured", productHandler.FeaturedProducts)
					r.With(middleware.CacheControl(300)).Get("/categories", productHandler.Categories)
					r.Get("/{id}", productHandler.GetProduct)
				})
				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Post("/", productHandler.CreateProduct)
					r.Put("/{id}", productHandler.UpdateProduct)
					r.Delete("/{id}", productHandler.DeleteProduct)
					r.Patch("/{id}/stock", productHandler.SetStock)
				})
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(requireAuth, middleware.NoStore)
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Patch("/items/{productId}", cartHandler.UpdateItem)
				r.Delete("/items/{productId}", cartHandler.RemoveItem)
				r.Post("/merge", cartHandler.MergeCart)
			})

			r.Route("/coupons", func(r chi.Router) {
				r.With(limit(d.Limiters.Coupon), optionalAuth).Post("/validate", couponHandler.ValidateCoupon)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Get("/", couponHandler.ListCoupons)
					r.Post("/", couponHandler.CreateCoupon)
					r.Put("/{id}", couponHandler.UpdateCoupon)
					r.Delete("/{id}", couponHandler.DeleteCoupon)
				})
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.With(middleware.CacheControl(60)).Get("/active", campaignHandler.ActiveCampaigns)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Get("/", campaignHandler.ListCampaigns)
					r.Post("/", campaignHandler.CreateCampaign)
					r.Get("/{id}", campaignHandler.GetCampaign)
					r.Put("/{id}", campaignHandler.UpdateCampaign)
					r.Delete("/{id}", campaignHandler.DeleteCampaign)
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(middleware.NoStore)
				r.Group(func(r chi.Router) {
					r.Use(optionalAuth)
					r.Post("/", orderHandler.CreateOrder)
					r.Post("/{id}/verify-payment", orderHandler.VerifyPayment)
					r.Get("/track/{orderNumber}", orderHandler.TrackOrder)
				})
				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Get("/my", orderHandler.MyOrders)
					r.Get("/{id}", orderHandler.GetOrder)
					r.Post("/{id}/cancel", orderHandler.CancelOrder)
				})
				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Get("/", orderHandler.ListOrders)
					r.Patch("/{id}/status", orderHandler.UpdateOrderStatus)
					r.Get("/{id}/notifications", orderHandler.OrderNotifications)
				})
			})

			r.Route("/shiprocket", func(r chi.Router) {
				r.Get("/track/{awb}", shippingHandler.Track)
				r.Get("/serviceability", shippingHandler.Serviceability)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Post("/orders/{id}/ship", shippingHandler.Ship)
					r.Post("/orders/{id}/pickup", shippingHandler.SchedulePickup)
				})
			})

			r.Route("/reviews", func(r chi.Router) {
				r.Get("/product/{productId}", reviewHandler.ListProductReviews)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/", reviewHandler.CreateReview)
					r.Delete("/{id}", reviewHandler.DeleteReview)
				})
				r.With(requireAuth, requireAdmin).Get("/", reviewHandler.ListReviews)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireAuth, middleware.NoStore)
				r.Get("/profile", userHandler.GetProfile)
				r.Put("/profile", userHandler.UpdateProfile)
				r.Get("/addresses", userHandler.ListAddresses)
				r.Post("/addresses", userHandler.AddAddress)
				r.Put("/addresses/{id}", userHandler.UpdateAddress)
				r.Delete("/addresses/{id}", userHandler.DeleteAddress)
				r.Get("/wishlist", userHandler.Wishlist)
				r.Post("/wishlist/{productId}", userHandler.AddToWishlist)
				r.Delete("/wishlist/{productId}", userHandler.RemoveFromWishlist)
				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/", userHandler.ListUsers)
					r.Patch("/{id}/role", userHandler.SetRole)
					r.Patch("/{id}/status", userHandler.SetStatus)
				})
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Use(requireAuth, requireAdmin)
				r.Get("/dashboard", analyticsHandler.Dashboard)
			})
		})
	})

	return r
}
