package goCounter

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goCounter/credential"
	"github.com/MrEthical07/goCounter/jwt"
)

// Restore picks up a persisted credential. With one present the client
// becomes authenticated and validates it with a fetch; a rejected credential
// then tears the session down like any other 401. A store failure leaves the
// client unauthenticated and is returned wrapped in ErrCredentialStore.
func (c *Client) Restore(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClientClosed
	}
	if c.session.Active() {
		st := c.stateLocked()
		c.mu.Unlock()
		return st, nil
	}

	gen := c.generation
	c.mu.Unlock()

	cred, ok, err := c.loadStore(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClientClosed
	}
	// A login or logout ran while the store was read; it wins.
	if c.generation != gen || c.session.Active() {
		st := c.stateLocked()
		c.mu.Unlock()
		return st, nil
	}
	if err != nil {
		c.metrics.Inc(MetricCredentialStoreError)
		c.logger.Warn("credential load failed, starting unauthenticated", "error", err)
		st := c.stateLocked()
		c.unlock()
		return st, fmt.Errorf("%w: %w", ErrCredentialStore, err)
	}
	if !ok {
		st := c.stateLocked()
		c.unlock()
		return st, nil
	}

	c.beginSessionLocked(cred.Token, cred.Role)
	c.metrics.Inc(MetricSessionRestored)
	c.logger.Info("session restored", "generation", c.generation, "role", cred.Role)
	c.recordLocked(AuditEvent{EventType: EventSessionRestored, Success: true})
	c.startFetchLocked(fetchPlain)

	st := c.stateLocked()
	c.commit()
	return st, nil
}

// HandleLogin establishes a session from a login response: the credential is
// persisted, the counter enters Loading and an initial fetch is dispatched.
// An active session is replaced. A persistence failure is returned wrapped in
// ErrCredentialStore after the in-memory session has been established.
func (c *Client) HandleLogin(ctx context.Context, token, role string) error {
	if token == "" || role == "" {
		return credential.ErrIncomplete
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	c.beginSessionLocked(token, role)
	c.logger.Info("session established", "generation", c.generation, "role", role)
	c.recordLocked(AuditEvent{EventType: EventLogin, Success: true})
	c.startFetchLocked(fetchPlain)
	gen := c.generation

	c.commit()
	return c.saveStore(ctx, gen, credential.Credential{Token: token, Role: role})
}

// Login authenticates against the server and hands the result to
// HandleLogin. Rejected credentials leave the session untouched.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}

	res, err := c.api.Login(ctx, username, password)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.logger.Info("login failed", "username", username, "error", err)
		c.mu.Lock()
		c.recordLocked(AuditEvent{EventType: EventLogin, Username: username, Error: messageOf(err)})
		c.unlock()
		return apiError(err)
	}

	c.metrics.Inc(MetricLoginSuccess)
	return c.HandleLogin(ctx, res.Token, res.Role)
}

// Register creates an account. It never changes the session.
func (c *Client) Register(ctx context.Context, username, password string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}

	err := c.api.Register(ctx, username, password)
	event := AuditEvent{EventType: EventRegister, Username: username, Success: err == nil}
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		c.logger.Info("register failed", "username", username, "error", err)
		event.Error = messageOf(err)
	} else {
		c.metrics.Inc(MetricRegisterSuccess)
	}

	c.mu.Lock()
	c.recordLocked(event)
	c.unlock()
	return apiError(err)
}

// Logout ends the session and clears the persisted credential. It is
// idempotent; a store failure is returned wrapped in ErrCredentialStore after
// the in-memory teardown.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	if c.session.Active() {
		c.metrics.Inc(MetricLogout)
		c.logger.Info("logged out", "generation", c.generation)
		c.recordLocked(AuditEvent{EventType: EventLogout, Success: true})
		c.endSessionLocked()
	}
	gen := c.generation

	c.commit()
	return c.clearStore(ctx, gen)
}

// expireLocked tears down the session after the server rejected its
// credential. The 401 is never retried. The store is cleared once c.mu is
// released.
func (c *Client) expireLocked(op string, requestID string) {
	c.metrics.Inc(MetricSessionExpired)
	c.logger.Warn("credential rejected, session torn down", "op", op, "generation", c.generation, "request_id", requestID)
	c.recordLocked(AuditEvent{EventType: EventSessionExpired, RequestID: requestID, Metadata: map[string]string{"op": op}})
	c.endSessionLocked()
	gen := c.generation
	c.deferred = append(c.deferred, func() {
		_ = c.clearStore(context.Background(), gen)
	})
}

func (c *Client) beginSessionLocked(token, role string) {
	c.generation++
	c.session = Session{Token: token, Role: role}
	if info, err := jwt.Inspect(token); err == nil {
		c.session.Username = info.Username
		c.session.ExpiresAt = info.ExpiresAt
	}
	c.counter = CounterState{Status: CounterLoading}
	c.resetPasswordLocked()
	c.fetching = 0
	c.overlapped = false
}

func (c *Client) endSessionLocked() {
	c.generation++
	c.session = Session{}
	c.counter = CounterState{}
	c.resetPasswordLocked()
	c.fetching = 0
	c.overlapped = false
}
