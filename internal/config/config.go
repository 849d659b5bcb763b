// Package config holds the storefront API configuration.
package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/glowskin/pkg/config"
	"github.com/utafrali/glowskin/pkg/database"
	"github.com/utafrali/glowskin/pkg/tracing"
	"github.com/utafrali/glowskin/pkg/validator"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the API process.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development" validate:"oneof=development staging production test"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"glowskin-api"`

	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracing  tracing.Config
	Auth     AuthConfig
	Store    StoreConfig

	Razorpay   RazorpayConfig
	Cashfree   CashfreeConfig
	Shiprocket ShiprocketConfig
	SMTP       SMTPConfig
	Twilio     TwilioConfig
	Search     SearchConfig

	RateLimit RateLimitConfig
}

// HTTPConfig controls the HTTP server.
type HTTPConfig struct {
	Port            int           `env:"PORT" envDefault:"5000" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"25s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"20s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
	FrontendURL     string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

// PostgresConfig describes the primary database.
type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port            int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string        `env:"POSTGRES_USER" envDefault:"glowskin"`
	Password        string        `env:"POSTGRES_PASSWORD" envDefault:"glowskin"`
	DBName          string        `env:"POSTGRES_DB" envDefault:"glowskin"`
	SSLMode         string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxConns        int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"POSTGRES_MAX_CONN_IDLE" envDefault:"15m"`
	SlowQuery       time.Duration `env:"POSTGRES_SLOW_QUERY" envDefault:"250ms"`
	AutoMigrate     bool          `env:"POSTGRES_AUTO_MIGRATE" envDefault:"true"`
}

// Database converts the config into the shared pool config.
func (c PostgresConfig) Database() *database.PostgresConfig {
	return &database.PostgresConfig{
		URL:             c.URL,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

// RedisConfig describes the cart and cache store.
type RedisConfig struct {
	URL      string        `env:"REDIS_URL"`
	Addr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CartTTL  time.Duration `env:"CART_TTL" envDefault:"720h"`
}

// Database converts the config into the shared client config.
func (c RedisConfig) Database() database.RedisConfig {
	return database.RedisConfig{URL: c.URL, Addr: c.Addr, Password: c.Password, DB: c.DB}
}

// KafkaConfig describes the event bus. With no brokers events are dispatched
// in-process.
type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	GroupPrefix string   `env:"KAFKA_GROUP_PREFIX" envDefault:"glowskin"`
	DLQ         bool     `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
}

// Enabled reports whether brokers are configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// AuthConfig controls tokens, cookies and password resets.
type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTExpiry     time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"glowskin"`
	CookieDomain  string        `env:"COOKIE_DOMAIN"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"12" validate:"min=4,max=31"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	AdminEmail    string        `env:"ADMIN_EMAIL"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
}

// StoreConfig holds pricing and inventory rules, amounts in paise.
type StoreConfig struct {
	Currency              string        `env:"STORE_CURRENCY" envDefault:"INR"`
	FreeShippingThreshold int64         `env:"FREE_SHIPPING_THRESHOLD" envDefault:"49900" validate:"gte=0"`
	FlatShippingFee       int64         `env:"FLAT_SHIPPING_FEE" envDefault:"4900" validate:"gte=0"`
	LowStockThreshold     int           `env:"LOW_STOCK_THRESHOLD" envDefault:"10" validate:"gte=0"`
	MaxQtyPerLine         int           `env:"MAX_QTY_PER_LINE" envDefault:"10" validate:"min=1"`
	AutoShip              bool          `env:"AUTO_SHIP_ON_CONFIRM" envDefault:"true"`
	IdempotencyTTL        time.Duration `env:"ORDER_IDEMPOTENCY_TTL" envDefault:"24h"`
}

// RazorpayConfig holds Razorpay credentials.
type RazorpayConfig struct {
	KeyID         string `env:"RAZORPAY_KEY_ID"`
	KeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	BaseURL       string `env:"RAZORPAY_BASE_URL" envDefault:"https://api.razorpay.com"`
}

// Enabled reports whether the gateway can be used.
func (c RazorpayConfig) Enabled() bool { return c.KeyID != "" && c.KeySecret != "" }

// CashfreeConfig holds Cashfree PG credentials.
type CashfreeConfig struct {
	AppID      string `env:"CASHFREE_APP_ID"`
	SecretKey  string `env:"CASHFREE_SECRET_KEY"`
	APIVersion string `env:"CASHFREE_API_VERSION" envDefault:"2023-08-01"`
	BaseURL    string `env:"CASHFREE_BASE_URL" envDefault:"https://sandbox.cashfree.com/pg"`
	ReturnURL  string `env:"CASHFREE_RETURN_URL" envDefault:"http://localhost:3000/order-confirmation?order_id={order_id}"`
}

// Enabled reports whether the gateway can be used.
func (c CashfreeConfig) Enabled() bool { return c.AppID != "" && c.SecretKey != "" }

// ShiprocketConfig holds Shiprocket credentials and pickup details.
type ShiprocketConfig struct {
	Email          string        `env:"SHIPROCKET_EMAIL"`
	Password       string        `env:"SHIPROCKET_PASSWORD"`
	BaseURL        string        `env:"SHIPROCKET_BASE_URL" envDefault:"https://apiv2.shiprocket.in"`
	PickupLocation string        `env:"SHIPROCKET_PICKUP_LOCATION" envDefault:"Primary"`
	PickupPincode  string        `env:"SHIPROCKET_PICKUP_PINCODE" envDefault:"110001"`
	WebhookSecret  string        `env:"SHIPROCKET_WEBHOOK_SECRET"`
	TokenTTL       time.Duration `env:"SHIPROCKET_TOKEN_TTL" envDefault:"216h"`
	DefaultWeight  int           `env:"SHIPROCKET_DEFAULT_WEIGHT_GRAMS" envDefault:"500"`
	PackageLength  int           `env:"SHIPROCKET_PACKAGE_LENGTH_CM" envDefault:"15"`
	PackageBreadth int           `env:"SHIPROCKET_PACKAGE_BREADTH_CM" envDefault:"10"`
	PackageHeight  int           `env:"SHIPROCKET_PACKAGE_HEIGHT_CM" envDefault:"8"`
}

// Enabled reports whether courier booking is configured.
func (c ShiprocketConfig) Enabled() bool { return c.Email != "" && c.Password != "" }

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM" envDefault:"GlowSkin <no-reply@glowskin.in>"`
}

// Enabled reports whether mail can be sent.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// TwilioConfig holds WhatsApp messaging credentials.
type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_WHATSAPP_FROM" envDefault:"whatsapp:+14155238886"`
	BaseURL    string `env:"TWILIO_BASE_URL" envDefault:"https://api.twilio.com"`
}

// Enabled reports whether WhatsApp messages can be sent.
func (c TwilioConfig) Enabled() bool { return c.AccountSID != "" && c.AuthToken != "" }

// SearchConfig points at the optional Elasticsearch cluster.
type SearchConfig struct {
	URLs     []string `env:"ELASTICSEARCH_URLS" envSeparator:","`
	Username string   `env:"ELASTICSEARCH_USERNAME"`
	Password string   `env:"ELASTICSEARCH_PASSWORD"`
	Index    string   `env:"ELASTICSEARCH_INDEX" envDefault:"glowskin-products"`
}

// Enabled reports whether a cluster is configured.
func (c SearchConfig) Enabled() bool { return len(c.URLs) > 0 }

// RateLimitConfig bounds the abuse-prone public routes per client IP.
type RateLimitConfig struct {
	AuthMax    int           `env:"RATE_LIMIT_AUTH_MAX" envDefault:"20"`
	AuthWindow time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"15m"`
	CouponMax  int           `env:"RATE_LIMIT_COUPON_MAX" envDefault:"30"`
	WebhookMax int           `env:"RATE_LIMIT_WEBHOOK_MAX" envDefault:"300"`
	APIMax     int           `env:"RATE_LIMIT_API_MAX" envDefault:"600"`
	Window     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads .env (when present) and the environment, then validates.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, dotenvFiles...); err != nil {
		return nil, fmt.Errorf("load glowskin config: %w", err)
	}
	cfg.Tracing.Environment = cfg.Environment
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.ServiceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and refuses a weak JWT secret outside
// development.
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.IsDevelopment() {
		return nil
	}
	if c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be explicitly set in %q mode", c.Environment)
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.Auth.JWTSecret))
	}
	return nil
}

// IsDevelopment reports whether relaxed defaults are acceptable.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}
