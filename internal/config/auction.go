package config

import (
	"time"
)

// AuctionConfig carries the auction rules.  Amounts are minor currency
// units (cents).
type AuctionConfig struct {
	InitialBid   int64
	BidIncrement int64
	Countdown    time.Duration
	// PaymentGrace bounds how long a winner has to pay once the countdown
	// lapses.  Zero leaves the payment window unbounded.
	PaymentGrace time.Duration
	AutoOpen     bool
}

// SchedulerConfig controls the in-process expiry sweep.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	LeaseTTL time.Duration
}

// PaymentConfig locates the payment provider and the secrets used to talk
// to it.
type PaymentConfig struct {
	APIBase          string
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	SuccessURL       string
	CancelURL        string
	Currency         string
	Timeout          time.Duration
}

// DefaultAuctionConfig returns the stock auction rules: 10.00 opening bid,
// 5.00 increments and a one minute countdown.
func DefaultAuctionConfig() AuctionConfig {
	return AuctionConfig{
		InitialBid:   1000,
		BidIncrement: 500,
		Countdown:    60 * time.Second,
		PaymentGrace: 15 * time.Minute,
	}
}

func LoadAuctionConfig() AuctionConfig {
	def := DefaultAuctionConfig()
	cfg := AuctionConfig{
		InitialBid:   int64(envInt("AUCTION_INITIAL_BID", int(def.InitialBid))),
		BidIncrement: int64(envInt("AUCTION_BID_INCREMENT", int(def.BidIncrement))),
		Countdown:    envDur("AUCTION_COUNTDOWN", def.Countdown),
		PaymentGrace: envDur("AUCTION_PAYMENT_GRACE", def.PaymentGrace),
		AutoOpen:     envBool("AUCTION_AUTO_OPEN", false),
	}
	if cfg.InitialBid < 1 {
		cfg.InitialBid = def.InitialBid
	}
	if cfg.BidIncrement < 1 {
		cfg.BidIncrement = def.BidIncrement
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = def.Countdown
	}
	if cfg.PaymentGrace < 0 {
		cfg.PaymentGrace = 0
	}
	return cfg
}

func LoadSchedulerConfig() SchedulerConfig {
	cfg := SchedulerConfig{
		Enabled:  envBool("SCHEDULER_ENABLED", true),
		Interval: envDur("SCHEDULER_INTERVAL", 5*time.Second),
		LeaseTTL: envDur("SCHEDULER_LEASE_TTL", 0),
	}
	if cfg.Interval < time.Second {
		cfg.Interval = time.Second
	}
	// the lease must outlive a tick or two instances can sweep back to back
	if cfg.LeaseTTL < cfg.Interval {
		cfg.LeaseTTL = cfg.Interval
	}
	return cfg
}

// minWebhookTolerance keeps replay protection on; zero or tiny windows
// are raised to it.
const minWebhookTolerance = 30 * time.Second

func LoadPaymentConfig() PaymentConfig {
	cfg := PaymentConfig{
		APIBase:          envStr("PAYMENT_API_BASE", "https://api.stripe.com"),
		SecretKey:        envStr("PAYMENT_SECRET_KEY", ""),
		WebhookSecret:    envStr("PAYMENT_WEBHOOK_SECRET", ""),
		WebhookTolerance: envDur("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		SuccessURL:       envStr("PAYMENT_SUCCESS_URL", "http://localhost:3000/crate?checkout={CHECKOUT_SESSION_ID}"),
		CancelURL:        envStr("PAYMENT_CANCEL_URL", "http://localhost:3000/"),
		Currency:         envStr("PAYMENT_CURRENCY", "usd"),
		Timeout:          envDur("PAYMENT_TIMEOUT", 10*time.Second),
	}
	if cfg.WebhookTolerance < minWebhookTolerance {
		cfg.WebhookTolerance = minWebhookTolerance
	}
	return cfg
}
