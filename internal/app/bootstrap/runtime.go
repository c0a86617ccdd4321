// Package bootstrap wires shared runtime dependencies for the binaries:
// redis, email delivery, and the database pool.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wayfarerhq/tripbook/cmd/mainconfig"
	appconfig "github.com/wayfarerhq/tripbook/internal/config"
	"github.com/wayfarerhq/tripbook/internal/notify"
	"github.com/wayfarerhq/tripbook/pkg/logging"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildDBPool opens the pgx pool and verifies connectivity.
func BuildDBPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// BuildEmailSender selects the configured email provider. Falls back to the
// logging stub so notification dispatch never nil-panics in development.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("failed to load AWS config, using stub email sender", "error", err)
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger); sender != nil {
			return sender
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}

	logger.Warn("no email provider configured, using stub email sender", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}
