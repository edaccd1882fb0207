package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	BaseURL     string        `env:"GOCOUNTER_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout     time.Duration `env:"GOCOUNTER_TIMEOUT" envDefault:"10s"`
	Store       string        `env:"GOCOUNTER_STORE" envDefault:"file"`
	StorePath   string        `env:"GOCOUNTER_STORE_PATH"`
	RedisAddr   string        `env:"GOCOUNTER_REDIS_ADDR"`
	RedisPrefix string        `env:"GOCOUNTER_REDIS_PREFIX" envDefault:"gocounter"`
	LogLevel    string        `env:"GOCOUNTER_LOG_LEVEL" envDefault:"warn"`
	LogFormat   string        `env:"GOCOUNTER_LOG_FORMAT" envDefault:"text"`
	MetricsAddr string        `env:"GOCOUNTER_METRICS_ADDR" envDefault:"127.0.0.1:9464"`
	StubAddr    string        `env:"GOCOUNTER_STUB_ADDR" envDefault:"127.0.0.1:8080"`
	StubAdmin   string        `env:"GOCOUNTER_STUB_ADMIN" envDefault:"admin"`
	StubAdminPW string        `env:"GOCOUNTER_STUB_ADMIN_PASSWORD"`
	Audit       bool          `env:"GOCOUNTER_AUDIT"`

	// StubLoginAttempts enables the stub's failed-login limiter when > 0.
	StubLoginAttempts int           `env:"GOCOUNTER_STUB_LOGIN_ATTEMPTS"`
	StubLockout       time.Duration `env:"GOCOUNTER_STUB_LOCKOUT" envDefault:"5m"`
	// StubSigning is hs256 or ed25519.
	StubSigning string `env:"GOCOUNTER_STUB_SIGNING" envDefault:"hs256"`
}

var errUsage = errors.New("usage")

// parseConfig loads environ (nil means the process environment) and then
// applies flags from args. It returns the remaining arguments.
func parseConfig(args []string, environ map[string]string, stderr io.Writer) (config, []string, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("counterctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "counter service base URL")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "credential store: memory, file, sqlite or redis")
	fs.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "file or sqlite path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; empty starts an embedded miniredis")
	fs.StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "redis key prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for serve-metrics")
	fs.StringVar(&cfg.StubAddr, "stub-addr", cfg.StubAddr, "listen address for stub-server")
	fs.IntVar(&cfg.StubLoginAttempts, "stub-login-attempts", cfg.StubLoginAttempts, "failed logins before the stub locks a username; 0 disables")
	fs.BoolVar(&cfg.Audit, "audit", cfg.Audit, "log activity events")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: counterctl [flags] <command> [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return cfg, nil, fmt.Errorf("%w: missing command", errUsage)
	}
	if cfg.Timeout <= 0 {
		return cfg, nil, fmt.Errorf("%w: timeout must be > 0", errUsage)
	}
	return cfg, fs.Args(), nil
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
