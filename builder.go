package goCounter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goCounter/api"
	"github.com/MrEthical07/goCounter/credential"
)

// Builder assembles a Client. It is meant to be configured once during
// initialization; Build may be called only once.
type Builder struct {
	config Config
	logger *slog.Logger

	store      *credential.Store
	kv         credential.KV
	httpClient *http.Client
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets API.BaseURL.
func (b *Builder) WithBaseURL(base string) *Builder {
	b.config.API.BaseURL = base
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithCredentialStore sets the credential store. It wins over WithCredentialKV.
func (b *Builder) WithCredentialStore(s *credential.Store) *Builder {
	b.store = s
	return b
}

// WithCredentialKV wraps kv in a credential.Store. Without either option the
// client keeps its credential in memory only.
func (b *Builder) WithCredentialKV(kv credential.KV) *Builder {
	b.kv = kv
	return b
}

// WithHTTPClient sets the transport used for API calls.
func (b *Builder) WithHTTPClient(h *http.Client) *Builder {
	b.httpClient = h
	return b
}

// WithAuditSink sets the destination of activity events. Audit.Enabled must
// also be set for events to flow.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// withClock overrides the time source; tests only.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a Client in the
// unauthenticated state. Call Restore to pick up a persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	store := b.store
	if store == nil {
		kv := b.kv
		if kv == nil {
			kv = credential.NewMemoryKV()
		}
		store = credential.NewStore(kv)
	}

	c := &Client{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
		now:      now,
		watchers: make(map[uint64]chan State),
	}
	c.idle = sync.NewCond(&c.mu)

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithObserver(c.observeCall),
	}
	if b.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(b.httpClient))
	}
	ac, err := api.New(api.Config{
		BaseURL:          cfg.API.BaseURL,
		Timeout:          cfg.API.Timeout,
		MaxResponseBytes: cfg.API.MaxResponseBytes,
		UserAgent:        cfg.API.UserAgent,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.api = ac

	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink, now)
	c.baseCtx, c.cancel = context.WithCancel(context.Background())

	b.built = true
	return c, nil
}
