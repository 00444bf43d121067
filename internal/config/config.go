// Package config defines the configuration for the daiyet dispatch worker.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles: all values come from the
// environment (with an optional .env file for local development).
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the dispatch worker.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Email    EmailConfig
	Dispatch DispatchConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// SiteBaseURL is the public site origin used to build links embedded in
	// email templates (feedback forms, meeting pages). No trailing slash.
	SiteBaseURL string `envconfig:"SITE_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
// SendGridAPIKey is intentionally not marked required: a missing credential
// is a per-send configuration error (the gateway reports it without touching
// the network), and local development runs on the stub provider.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@daiyet.app" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Daiyet"`
}

// DispatchConfig holds the dispatcher's trigger authentication and batch
// sizing knobs.
type DispatchConfig struct {
	// SharedSecret guards POST /run. When empty, authentication is disabled
	// and the worker logs a warning; this preserves compatibility with
	// deployments that predate the secret. A configured secret rejects any
	// mismatching bearer token with 401.
	SharedSecret SecretString `envconfig:"DISPATCH_SHARED_SECRET"`

	EmailBatchSize int `envconfig:"DISPATCH_EMAIL_BATCH_SIZE" default:"20" validate:"min=1,max=100"`
	JobBatchSize   int `envconfig:"DISPATCH_JOB_BATCH_SIZE" default:"10" validate:"min=1,max=100"`
	// Concurrency bounds the parallel item fan-out within one cycle.
	Concurrency int `envconfig:"DISPATCH_CONCURRENCY" default:"8" validate:"min=1,max=64"`
}

// MetricsConfig holds CloudWatch telemetry settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"Daiyet/Dispatch"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
