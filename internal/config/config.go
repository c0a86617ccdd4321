package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Scheduling rules
	SlotDurationMinutes int
	MinLeadDays         int
	BusyCacheTTL        time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeReturnURL     string

	// Plan tier pricing (cents)
	EssentialPriceCents int64
	SignaturePriceCents int64
	ConciergePriceCents int64

	// Google Calendar OAuth application credentials
	GoogleClientID     string
	GoogleClientSecret string

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// AWS (SES email provider)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SESFromEmail        string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 60),
		MinLeadDays:         getEnvAsInt("MIN_LEAD_DAYS", 2),
		BusyCacheTTL:        getEnvAsDuration("BUSY_CACHE_TTL", 2*time.Minute),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeReturnURL:     getEnv("STRIPE_RETURN_URL", ""),

		EssentialPriceCents: int64(getEnvAsInt("ESSENTIAL_PRICE_CENTS", 9900)),
		SignaturePriceCents: int64(getEnvAsInt("SIGNATURE_PRICE_CENTS", 19900)),
		ConciergePriceCents: int64(getEnvAsInt("CONCIERGE_PRICE_CENTS", 34900)),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Wayfarer"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// PriceTable returns the plan tier price table in cents.
func (c *Config) PriceTable() map[string]int64 {
	return map[string]int64{
		"essential": c.EssentialPriceCents,
		"signature": c.SignaturePriceCents,
		"concierge": c.ConciergePriceCents,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
