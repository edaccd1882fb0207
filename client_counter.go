package goCounter

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goCounter/api"
)

type fetchMode uint8

const (
	// fetchPlain clears the counter error on success.
	fetchPlain fetchMode = iota
	// fetchKeepError refreshes the value but leaves an existing error shown.
	// Used to reconcile after a failed mutation and to settle overlapping ones.
	fetchKeepError
)

const (
	msgFetchFailed  = "Failed to fetch counter"
	msgUpdateFailed = "Failed to update counter"
	msgResetFailed  = "Failed to reset counter"
	// msgConnectFailed prefixes transport errors shown to the user.
	msgConnectFailed = "Failed to connect to server: "
)

// Fetch reads the server value. The request runs in the background; use
// Wait or Watch to observe the result. Without a session it returns
// ErrNotAuthenticated and sends nothing.
func (c *Client) Fetch() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.startFetchLocked(fetchPlain)
	c.commit()
	return nil
}

// Increment shows value+1 at once (1 when unknown) and confirms it with the
// server. On failure the counter shows an error and is re-read.
func (c *Client) Increment() error {
	return c.mutate(api.OpIncrement, func(prev int64, known bool) int64 {
		if !known {
			return 1
		}
		return prev + 1
	})
}

// Reset shows 0 at once and confirms it with the server. The request is sent
// whatever the role; a 403 is handled like any other failure.
func (c *Client) Reset() error {
	return c.mutate(api.OpReset, func(int64, bool) int64 { return 0 })
}

func (c *Client) mutate(op api.Op, optimistic func(prev int64, known bool) int64) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.counter.Value = optimistic(c.counter.Value, c.counter.Known)
	c.counter.Known = true
	c.counter.Status = CounterReady
	c.counter.Pending++
	c.noteInFlightLocked()

	gen := c.generation
	token := c.session.Token
	c.spawnLocked(func(ctx context.Context) {
		var out api.CounterOutcome
		if op == api.OpReset {
			out = c.api.ResetCounter(ctx, token)
		} else {
			out = c.api.IncrementCounter(ctx, token)
		}
		c.applyMutation(gen, op, out)
	})

	c.commit()
	return nil
}

func (c *Client) applyMutation(gen uint64, op api.Op, out api.CounterOutcome) {
	c.mu.Lock()
	if !c.currentLocked(gen, string(op)) {
		c.mu.Unlock()
		return
	}

	c.counter.Pending--
	success, failure, event, failMsg := MetricIncrementSuccess, MetricIncrementFailure, EventCounterIncrement, msgUpdateFailed
	if op == api.OpReset {
		success, failure, event, failMsg = MetricResetSuccess, MetricResetFailure, EventCounterReset, msgResetFailed
	}
	ev := AuditEvent{EventType: event, RequestID: out.RequestID, Success: out.OK()}

	switch out.Kind {
	case api.KindSuccess:
		c.metrics.Inc(success)
		c.counter.Value = out.Value
		c.counter.Known = true
		c.counter.Status = CounterReady
		c.counter.Error = ""
		ev.Metadata = map[string]string{"value": strconv.FormatInt(out.Value, 10)}
	case api.KindUnauthorized:
		c.metrics.Inc(failure)
		ev.Error = out.Message
		c.recordLocked(ev)
		c.expireLocked(string(op), out.RequestID)
		c.commit()
		return
	default:
		c.metrics.Inc(failure)
		c.logger.Info("counter mutation failed", "op", op, "status", out.Status, "error", out.Message, "request_id", out.RequestID)
		ev.Error = out.Message
		c.counter.Status = CounterError
		c.counter.Error = failMsg
		c.metrics.Inc(MetricReconcile)
		c.recordLocked(AuditEvent{EventType: EventCounterReconcile, RequestID: out.RequestID, Metadata: map[string]string{"op": string(op)}})
		c.startFetchLocked(fetchKeepError)
	}
	c.recordLocked(ev)
	c.settleLocked()

	c.commit()
}

// startFetchLocked dispatches a GET bound to the current generation.
func (c *Client) startFetchLocked(mode fetchMode) {
	c.fetching++
	c.noteInFlightLocked()
	gen := c.generation
	token := c.session.Token
	c.spawnLocked(func(ctx context.Context) {
		out := c.api.GetCounter(ctx, token)
		c.applyFetch(gen, mode, out)
	})
}

func (c *Client) applyFetch(gen uint64, mode fetchMode, out api.CounterOutcome) {
	c.mu.Lock()
	if !c.currentLocked(gen, string(api.OpGetCounter)) {
		c.mu.Unlock()
		return
	}

	c.fetching--
	switch out.Kind {
	case api.KindSuccess:
		c.metrics.Inc(MetricFetchSuccess)
		c.counter.Value = out.Value
		c.counter.Known = true
		if mode == fetchPlain || c.counter.Error == "" {
			c.counter.Status = CounterReady
			c.counter.Error = ""
		}
	case api.KindUnauthorized:
		c.metrics.Inc(MetricFetchFailure)
		c.expireLocked(string(api.OpGetCounter), out.RequestID)
		c.commit()
		return
	default:
		c.metrics.Inc(MetricFetchFailure)
		c.logger.Info("counter fetch failed", "status", out.Status, "error", out.Message, "request_id", out.RequestID)
		c.counter.Status = CounterError
		c.counter.Error = msgFetchFailed
		if out.Transport {
			c.counter.Error = msgConnectFailed + out.Message
		}
		c.recordLocked(AuditEvent{EventType: EventCounterFetch, RequestID: out.RequestID, Error: out.Message})
	}
	c.settleLocked()

	c.commit()
}

// noteInFlightLocked flags that more than one counter request is out.
func (c *Client) noteInFlightLocked() {
	if c.fetching+c.counter.Pending > 1 {
		c.overlapped = true
	}
}

// settleLocked re-reads the counter once requests that overlapped have all
// resolved. Their responses may have been applied in a different order than
// the server processed them, so the last one applied need not be current.
func (c *Client) settleLocked() {
	if !c.overlapped || c.fetching > 0 || c.counter.Pending > 0 {
		return
	}
	c.overlapped = false
	c.startFetchLocked(fetchKeepError)
}
