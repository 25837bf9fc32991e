package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the session gateway. Values come from the
// environment; Load applies defaults and validates the result.
type Config struct {
	Profile    string `env:"APP_PROFILE" envDefault:"dev"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Storage tiers.
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"file:sessiond.db?cache=shared"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`

	// Identity provider.
	IdentityBaseURL string        `env:"IDENTITY_BASE_URL"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// OTP challenge provider. When OTPFixedCode is non-empty the gateway uses
	// the fixed-code provider instead of the remote one; the two are never
	// mixed at runtime.
	OTPProviderBaseURL string        `env:"OTP_PROVIDER_BASE_URL"`
	OTPFixedCode       string        `env:"OTP_FIXED_CODE"`
	PortalSessionTTL   time.Duration `env:"PORTAL_SESSION_TTL" envDefault:"720h"`
	PortalChallengeTTL time.Duration `env:"PORTAL_CHALLENGE_TTL" envDefault:"5m"`

	// Real-time channel.
	RealtimeURL           string        `env:"REALTIME_URL"`
	RealtimeHealthPeriod  time.Duration `env:"REALTIME_HEALTH_PERIOD" envDefault:"10s"`
	RealtimeRenewalPeriod time.Duration `env:"REALTIME_RENEWAL_PERIOD" envDefault:"60s"`

	// HTTP surface.
	CORSOrigins       []string      `env:"CORS_ORIGINS" envSeparator:","`
	PortalLoginRPM    int           `env:"PORTAL_LOGIN_RATE_LIMIT_RPM" envDefault:"10"`
	APIRateLimitRPM   int           `env:"API_RATE_LIMIT_RPM" envDefault:"300"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	HTTPDrainTimeout  time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"5s"`
	ObservabilityStop time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"5s"`

	// Observability.
	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"clients-plus-gateway"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT" envDefault:"dev"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracesEnabled         bool          `env:"OTEL_TRACES_ENABLED" envDefault:"false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"30s"`
}

// Load parses the environment into a Config and validates it. Every outcome
// is recorded as a config validation event so misconfigured deployments show
// up in metrics before they show up in pager duty.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		wrapped := fmt.Errorf("parse environment: %w", err)
		recordConfigValidationEvent(ctx, cfg.Profile, "error", classifyConfigLoadError(wrapped))
		return nil, wrapped
	}
	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Profile, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Profile, "success", "none")
	return cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("validate config: DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.IdentityBaseURL == "" {
		return fmt.Errorf("validate config: IDENTITY_BASE_URL is required")
	}
	if c.OTPProviderBaseURL == "" && c.OTPFixedCode == "" {
		return fmt.Errorf("validate config: one of OTP_PROVIDER_BASE_URL or OTP_FIXED_CODE is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("validate config: REQUEST_TIMEOUT must be positive")
	}
	if c.RealtimeHealthPeriod <= 0 || c.RealtimeRenewalPeriod <= 0 {
		return fmt.Errorf("validate config: realtime periods must be positive")
	}
	return nil
}

// UsesFixedOTP reports whether the fixed-code challenge provider is selected.
func (c *Config) UsesFixedOTP() bool {
	return c.OTPFixedCode != ""
}
