package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port  string
	DBDSN string

	// Optional infrastructure. Empty disables the corresponding component.
	RabbitURL string
	RedisAddr string

	// Payment gateway settings.
	GatewayBaseURL  string
	GatewaySecret   string
	GatewayPubKey   string
	GatewayTimeout  time.Duration
	CheckoutSuccess string
	CheckoutCancel  string
	Currency        string

	SweepInterval time.Duration
}

func Load() Config {
	return Config{
		Port:  getenv("PORT", "8080"),
		DBDSN: getenv("SHOP_DB_DSN", ""),

		RabbitURL: getenv("RABBITMQ_URL", ""),
		RedisAddr: getenv("REDIS_ADDR", ""),

		GatewayBaseURL:  getenv("PAYMENT_GATEWAY_URL", "https://api.stripe.com"),
		GatewaySecret:   getenv("PAYMENT_SECRET_KEY", ""),
		GatewayPubKey:   getenv("PAYMENT_PUBLISHABLE_KEY", ""),
		GatewayTimeout:  parseDuration(getenv("PAYMENT_TIMEOUT", "10s"), 10*time.Second),
		CheckoutSuccess: getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancel:  getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		Currency:        strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),

		SweepInterval: parseDuration(getenv("RECONCILE_INTERVAL", "5m"), 5*time.Minute),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
