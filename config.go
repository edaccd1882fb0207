package goCounter

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goCounter/api"
)

// Config holds every tunable of a Client. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	API          APIConfig
	Credential   CredentialConfig
	PasswordForm PasswordFormConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig configures the HTTP client.
type APIConfig struct {
	BaseURL string
	// Timeout bounds each request. Counter operations run detached from any
	// caller context, so this is their only bound.
	Timeout          time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig configures credential persistence.
type CredentialConfig struct {
	// Timeout bounds each Save/Load/Clear against the store.
	Timeout time.Duration
}

// PasswordFormConfig configures the change-password flow.
type PasswordFormConfig struct {
	// DismissDelay is how long the success message stays up before the form closes.
	DismissDelay time.Duration
}

// AuditConfig configures activity event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:          "http://localhost:8080",
			Timeout:          10 * time.Second,
			MaxResponseBytes: api.DefaultMaxResponseBytes,
			UserAgent:        api.DefaultUserAgent,
		},
		Credential: CredentialConfig{
			Timeout: 2 * time.Second,
		},
		PasswordForm: PasswordFormConfig{
			DismissDelay: 1500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}
	if c.API.MaxResponseBytes <= 0 {
		return errors.New("API MaxResponseBytes must be > 0")
	}
	if c.API.MaxResponseBytes > 16<<20 {
		return errors.New("API MaxResponseBytes must be <= 16MiB")
	}

	if c.Credential.Timeout <= 0 {
		return errors.New("Credential Timeout must be > 0")
	}

	if c.PasswordForm.DismissDelay < 0 {
		return errors.New("PasswordForm DismissDelay must be >= 0")
	}
	if c.PasswordForm.DismissDelay > time.Minute {
		return errors.New("PasswordForm DismissDelay must be <= 1m")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
