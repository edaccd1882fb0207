package goCounter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goCounter/api"
	"github.com/MrEthical07/goCounter/credential"
)

// Client owns one session and the state derived from it. All methods are
// safe for concurrent use. Build one with [New].
type Client struct {
	cfg     Config
	api     *api.Client
	store   *credential.Store
	logger  *slog.Logger
	metrics *Metrics
	audit   *auditDispatcher
	now     func() time.Time

	// baseCtx parents every detached request; cancelled by Close once
	// in-flight work has drained.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	idle       *sync.Cond
	closed     bool
	generation uint64
	session    Session
	counter    CounterState
	password   PasswordFormState
	// formGen guards the dismiss timer against a form that was closed or
	// reopened in the meantime.
	formGen uint64
	dismiss *time.Timer

	// pending counts detached goroutines; Wait blocks until it is zero.
	pending int
	// fetching counts GETs of the current generation still out. Together
	// with counter.Pending it decides when overlapping requests need a
	// settling fetch.
	fetching   int
	overlapped bool

	watchers  map[uint64]chan State
	nextWatch uint64

	outbox []AuditEvent
	// deferred runs after c.mu is released, before the outbox is flushed.
	deferred []func()

	// storeMu serialises credential I/O. It is never acquired with c.mu held.
	storeMu sync.Mutex
}

// State returns a snapshot of the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Client) stateLocked() State {
	return State{
		Authenticated: c.session.Active(),
		Session:       c.session,
		Counter:       c.counter,
		PasswordForm:  c.password,
		Generation:    c.generation,
	}
}

// Wait blocks until every detached request and its continuations, including
// reconciling fetches they trigger, have been applied.
func (c *Client) Wait() {
	c.mu.Lock()
	for c.pending > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// MetricsSnapshot returns a copy of the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were discarded under backpressure.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close waits for in-flight work, stops the audit dispatcher and closes all
// watch channels. Later calls return nil; every other method returns
// ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopDismissLocked()
	c.unlock()

	c.Wait()
	c.cancel()
	c.audit.Close()

	c.mu.Lock()
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
	c.mu.Unlock()
	return nil
}

// spawnLocked runs fn on its own goroutine and tracks it for Wait. It must be
// called with c.mu held.
func (c *Client) spawnLocked(fn func(ctx context.Context)) {
	c.pending++
	go func() {
		defer func() {
			c.mu.Lock()
			c.pending--
			if c.pending == 0 {
				c.idle.Broadcast()
			}
			c.mu.Unlock()
		}()
		fn(c.baseCtx)
	}()
}

// unlock releases c.mu, runs deferred store work and then delivers audit
// events queued while it was held.
func (c *Client) unlock() {
	events, tasks := c.outbox, c.deferred
	c.outbox, c.deferred = nil, nil
	c.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
	for _, e := range events {
		c.audit.Emit(context.Background(), e)
	}
}

func (c *Client) recordLocked(event AuditEvent) {
	if c.audit == nil {
		return
	}
	if event.Generation == 0 {
		event.Generation = c.generation
	}
	if event.Username == "" {
		event.Username = c.session.Username
	}
	if event.Role == "" {
		event.Role = c.session.Role
	}
	c.outbox = append(c.outbox, event)
}

func (c *Client) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, c.cfg.Credential.Timeout)
}

// generationIs reports whether no session change happened since gen.
func (c *Client) generationIs(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// saveStore persists cred for session generation gen. It must be called
// without c.mu. A session change since gen makes it a no-op, so a slow save
// can never resurrect a credential that a later logout cleared.
func (c *Client) saveStore(ctx context.Context, gen uint64, cred credential.Credential) error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if !c.generationIs(gen) {
		return nil
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.store.Save(ctx, cred); err != nil {
		c.metrics.Inc(MetricCredentialStoreError)
		c.logger.Error("credential save failed", "generation", gen, "error", err)
		return fmt.Errorf("%w: %w", ErrCredentialStore, err)
	}
	return nil
}

// clearStore removes the persisted credential unless a newer session has
// been established since gen. It must be called without c.mu.
func (c *Client) clearStore(ctx context.Context, gen uint64) error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if !c.generationIs(gen) {
		return nil
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.store.Clear(ctx); err != nil {
		c.metrics.Inc(MetricCredentialStoreError)
		c.logger.Error("credential clear failed", "generation", gen, "error", err)
		return fmt.Errorf("%w: %w", ErrCredentialStore, err)
	}
	return nil
}

func (c *Client) loadStore(ctx context.Context) (credential.Credential, bool, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.Load(ctx)
}

// usableLocked reports why a session-bound operation cannot start.
func (c *Client) usableLocked() error {
	if c.closed {
		return ErrClientClosed
	}
	if !c.session.Active() {
		return ErrNotAuthenticated
	}
	return nil
}

// currentLocked reports whether a continuation dispatched under gen may
// still touch state, counting it as dropped when it may not.
func (c *Client) currentLocked(gen uint64, op string) bool {
	if gen == c.generation {
		return true
	}
	c.metrics.Inc(MetricStaleResponseDropped)
	c.logger.Debug("stale response dropped", "op", op, "generation", gen, "current_generation", c.generation)
	return false
}

func (c *Client) observeCall(call api.Call) {
	c.metrics.Observe(MetricRequestLatency, call.Duration)
	if call.Outcome.Transport {
		c.metrics.Inc(MetricTransportError)
	}
}

// outcomeError converts a failed outcome into the package error taxonomy.
func outcomeError(out api.Outcome) error {
	switch {
	case out.OK():
		return nil
	case out.Kind == api.KindUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, out.Message)
	case out.Transport:
		return fmt.Errorf("%w: %w", ErrTransport, out.Err())
	default:
		return fmt.Errorf("%w: %w", ErrRequestFailed, out.Err())
	}
}

// apiError is outcomeError for calls that return errors instead of outcomes.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var ae *api.Error
	if !errors.As(err, &ae) {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if errors.Is(err, api.ErrTransport) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}

// messageOf returns the user-facing text of an api error.
func messageOf(err error) string {
	var ae *api.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
