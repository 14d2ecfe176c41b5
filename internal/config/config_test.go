package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAuctionConfigDefaults(t *testing.T) {
	for _, k := range []string{"AUCTION_INITIAL_BID", "AUCTION_BID_INCREMENT", "AUCTION_COUNTDOWN", "AUCTION_PAYMENT_GRACE", "AUCTION_AUTO_OPEN"} {
		t.Setenv(k, "")
	}
	cfg := LoadAuctionConfig()
	assert.Equal(t, DefaultAuctionConfig(), cfg)
	assert.EqualValues(t, 1000, cfg.InitialBid)
	assert.EqualValues(t, 500, cfg.BidIncrement)
	assert.Equal(t, time.Minute, cfg.Countdown)
}

func TestLoadAuctionConfigOverrides(t *testing.T) {
	t.Setenv("AUCTION_INITIAL_BID", "250")
	t.Setenv("AUCTION_BID_INCREMENT", "-5")
	t.Setenv("AUCTION_COUNTDOWN", "30s")
	t.Setenv("AUCTION_PAYMENT_GRACE", "0")
	t.Setenv("AUCTION_AUTO_OPEN", "true")

	cfg := LoadAuctionConfig()
	assert.EqualValues(t, 250, cfg.InitialBid)
	assert.EqualValues(t, 500, cfg.BidIncrement, "invalid increment falls back to the default")
	assert.Equal(t, 30*time.Second, cfg.Countdown)
	assert.Zero(t, cfg.PaymentGrace)
	assert.True(t, cfg.AutoOpen)
}

func TestLoadSchedulerConfigLeaseCoversInterval(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "10s")
	t.Setenv("SCHEDULER_LEASE_TTL", "2s")
	cfg := LoadSchedulerConfig()
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.LeaseTTL)

	t.Setenv("SCHEDULER_INTERVAL", "10ms")
	assert.Equal(t, time.Second, LoadSchedulerConfig().Interval)
}

func TestLoadPaymentConfigWebhookToleranceFloor(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_TOLERANCE", "")
	assert.Equal(t, 5*time.Minute, LoadPaymentConfig().WebhookTolerance)

	for _, v := range []string{"0", "-1m", "1s"} {
		t.Setenv("PAYMENT_WEBHOOK_TOLERANCE", v)
		assert.Equal(t, 30*time.Second, LoadPaymentConfig().WebhookTolerance, v)
	}

	t.Setenv("PAYMENT_WEBHOOK_TOLERANCE", "2m")
	assert.Equal(t, 2*time.Minute, LoadPaymentConfig().WebhookTolerance)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadRabbitURL(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://fallback")
	assert.Equal(t, "amqp://fallback", LoadRabbitURL())
	t.Setenv("RABBITMQ_URL", "amqp://primary")
	assert.Equal(t, "amqp://primary", LoadRabbitURL())
}
