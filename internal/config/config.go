package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Nested groups are loaded by their own
// constructors so that tools which only need part of the configuration
// (auctionctl, tests) can build just that part.
type Config struct {
	Env           string // application environment (e.g. "dev", "prod")
	Port          string // HTTP port to listen on
	LogLevel      string // logrus level name
	LogFormat     string // "text" or "json"
	DB            DBConfig
	JWTSecret     string // secret used to verify (and, in dev, sign) JWTs
	CronTokenHash string // bcrypt hash of the token accepted by /internal/sweep (empty disables the endpoint)
	RabbitURL     string // AMQP URL; empty disables broker fan-out
	Auction       AuctionConfig
	Scheduler     SchedulerConfig
	Payment       PaymentConfig
	RateLimit     RateLimitConfig
}

// DBConfig selects and locates the relational store.  Driver is either
// "mysql" (production) or "sqlite3" (single-node deployments, local runs).
type DBConfig struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	Path   string // sqlite3 only
}

// Load reads configuration values from the environment (after merging an
// optional .env file) and returns a Config.  Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env is normal outside local development

	return Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		LogFormat:     envStr("LOG_FORMAT", "text"),
		DB:            LoadDBConfig(),
		JWTSecret:     must("JWT_SECRET"),
		CronTokenHash: os.Getenv("CRON_TOKEN_HASH"),
		RabbitURL:     LoadRabbitURL(),
		Auction:       LoadAuctionConfig(),
		Scheduler:     LoadSchedulerConfig(),
		Payment:       LoadPaymentConfig(),
		RateLimit:     LoadRateLimitConfig(),
	}
}

// LoadDBConfig reads the database settings.  MySQL connection parameters
// are only required when the mysql driver is selected.
func LoadDBConfig() DBConfig {
	_ = godotenv.Load()

	driver := envStr("DB_DRIVER", "mysql")
	if driver == "sqlite3" {
		return DBConfig{Driver: driver, Path: must("DB_PATH")}
	}
	return DBConfig{
		Driver: driver,
		User:   must("DB_USER"),
		Pass:   os.Getenv("DB_PASS"), // empty allowed
		Host:   must("DB_HOST"),
		Port:   must("DB_PORT"),
		Name:   must("DB_NAME"),
	}
}

// LoadRabbitURL returns the broker URL, or "" when fan-out is disabled.
func LoadRabbitURL() string {
	_ = godotenv.Load()

	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
