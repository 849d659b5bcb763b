package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/notify"
	"github.com/utafrali/glowskin/internal/payment"
	"github.com/utafrali/glowskin/internal/payment/cashfree"
	"github.com/utafrali/glowskin/internal/payment/razorpay"
	redisrepo "github.com/utafrali/glowskin/internal/repository/redis"
	"github.com/utafrali/glowskin/internal/search"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/internal/shiprocket"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

// providerClient returns a retrying HTTP client behind a circuit breaker
// named after the provider.
func providerClient(name string, logger *slog.Logger) httpclient.Doer {
	base := httpclient.New(httpclient.DefaultConfig())
	return httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig(name), logger)
}

// gateways holds the configured payment providers. Unconfigured providers
// stay nil.
type gateways struct {
	razorpay *razorpay.Client
	cashfree *cashfree.Client
}

func newGateways(cfg *config.Config, logger *slog.Logger) gateways {
	var g gateways
	if cfg.Razorpay.Enabled() {
		g.razorpay = razorpay.NewClient(cfg.Razorpay, providerClient("razorpay", logger), logger)
		logger.Info("razorpay gateway enabled")
	}
	if cfg.Cashfree.Enabled() {
		g.cashfree = cashfree.NewClient(cfg.Cashfree, providerClient("cashfree", logger), logger)
		logger.Info("cashfree gateway enabled")
	}
	return g
}

func (g gateways) registry() payment.Registry {
	var list []payment.Gateway
	if g.razorpay != nil {
		list = append(list, g.razorpay)
	}
	if g.cashfree != nil {
		list = append(list, g.cashfree)
	}
	return payment.NewRegistry(list...)
}

func (g gateways) razorpayVerifier() service.RazorpayVerifier {
	if g.razorpay == nil {
		return nil
	}
	return g.razorpay
}

func (g gateways) cashfreeVerifier() service.CashfreeVerifier {
	if g.cashfree == nil {
		return nil
	}
	return g.cashfree
}

// newCourier returns the Shiprocket client, or nil when courier booking is
// not configured.
func newCourier(cfg config.ShiprocketConfig, rdb *redis.Client, logger *slog.Logger) *shiprocket.Client {
	if !cfg.Enabled() {
		logger.Warn("shiprocket not configured, shipping routes disabled")
		return nil
	}
	return shiprocket.NewClient(cfg, providerClient("shiprocket", logger), redisrepo.NewTokenCache(rdb), logger)
}

// newSenders returns one sender per channel. Channels without credentials
// get a NoopSender so their sends are logged as failed.
func newSenders(cfg *config.Config, logger *slog.Logger) ([]notify.Sender, error) {
	senders := make([]notify.Sender, 0, 2)

	if cfg.SMTP.Enabled() {
		s, err := notify.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	} else {
		logger.Warn("SMTP not configured, email notifications disabled")
		senders = append(senders, notify.NoopSender{Channel: domain.ChannelEmail})
	}

	if cfg.Twilio.Enabled() {
		senders = append(senders, notify.NewWhatsAppSender(cfg.Twilio, providerClient("twilio", logger)))
	} else {
		logger.Warn("twilio not configured, whatsapp notifications disabled")
		senders = append(senders, notify.NoopSender{Channel: domain.ChannelWhatsApp})
	}
	return senders, nil
}

// newSearch connects to Elasticsearch. A nil engine means search falls back
// to the database.
func newSearch(ctx context.Context, cfg config.SearchConfig, logger *slog.Logger) (*search.Elastic, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	e, err := search.NewElastic(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	logger.Info("connected to elasticsearch", slog.Any("urls", cfg.URLs), slog.String("index", cfg.Index))
	return e, nil
}
