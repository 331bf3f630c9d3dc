package app

import (
	"strings"
	"time"

	"github.com/yungbote/coursehub-backend/internal/db"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/platform/envutil"
	"github.com/yungbote/coursehub-backend/internal/platform/flutterwave"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/platform/sendgrid"
)

const defaultJWTSecret = "defaultsecret"

type Config struct {
	Env  string
	Port string

	Postgres db.PostgresConfig

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AdminEmails     []string

	PaymentRedirectURL string
	PaymentCurrency    string
	PaymentLockTTL     time.Duration
	Flutterwave        flutterwave.Config

	SendGrid sendgrid.Config

	RedisAddr           string
	CertificateFontPath string
	CORSOrigins         []string
	MetricsAddr         string
	CatalogSeedPath     string

	Otel observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:  envutil.String("APP_ENV", "development"),
		Port: envutil.String("PORT", "8080"),
		Postgres: db.PostgresConfig{
			Host:     envutil.String("POSTGRES_HOST", "localhost"),
			Port:     envutil.String("POSTGRES_PORT", "5432"),
			User:     envutil.String("POSTGRES_USER", "postgres"),
			Password: envutil.String("POSTGRES_PASSWORD", ""),
			Name:     envutil.String("POSTGRES_NAME", "coursehub"),
			SSLMode:  envutil.String("POSTGRES_SSLMODE", "disable"),
			MaxOpen:  envutil.Int("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdle:  envutil.Int("POSTGRES_MAX_IDLE_CONNS", 10),
			LogSQL:   envutil.Bool("POSTGRES_LOG_SQL", false),
		},
		JWTSecretKey:        envutil.String("JWT_SECRET_KEY", defaultJWTSecret),
		AccessTokenTTL:      envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:     envutil.Seconds("REFRESH_TOKEN_TTL", 24*time.Hour),
		AdminEmails:         envutil.List("ADMIN_EMAILS", nil),
		PaymentRedirectURL:  envutil.String("PAYMENT_REDIRECT_URL", "http://localhost:5173/payments/return"),
		PaymentCurrency:     strings.ToUpper(envutil.String("PAYMENT_CURRENCY", "NGN")),
		PaymentLockTTL:      envutil.Seconds("PAYMENT_LOCK_TTL", 30*time.Second),
		Flutterwave:         flutterwave.ConfigFromEnv(),
		SendGrid:            sendgrid.ConfigFromEnv(),
		RedisAddr:           envutil.String("REDIS_ADDR", ""),
		CertificateFontPath: envutil.String("CERTIFICATE_FONT_PATH", ""),
		CORSOrigins:         envutil.List("CORS_ALLOWED_ORIGINS", nil),
		MetricsAddr:         envutil.String("METRICS_ADDR", ":9090"),
		CatalogSeedPath:     envutil.String("CATALOG_SEED_PATH", ""),
		Otel:                observability.OtelConfigFromEnv(),
	}

	if log != nil {
		if cfg.JWTSecretKey == defaultJWTSecret {
			log.Warn("JWT_SECRET_KEY not set, using the development default")
		}
		if strings.TrimSpace(cfg.Flutterwave.SecretHash) == "" {
			log.Warn("FLW_SECRET_HASH not set, every webhook will be rejected")
		}
	}
	return cfg
}

// Addr is the listen address for the API server.
func (c Config) Addr() string {
	port := strings.TrimSpace(c.Port)
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
