package goCounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goCounter/api"
)

const msgPasswordChanged = "Password changed successfully!"

var errPasswordSubmitting = errors.New("password change already in progress")

// OpenPasswordForm opens an empty change-password form. Opening an open form
// is a no-op.
func (c *Client) OpenPasswordForm() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.password.Open {
		c.resetPasswordLocked()
		c.password.Open = true
	}
	c.commit()
	return nil
}

// SetPasswordFields replaces both form fields.
func (c *Client) SetPasswordFields(oldPassword, newPassword string) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.password.Open {
		c.mu.Unlock()
		return ErrPasswordFormClosed
	}
	c.password.OldPassword = oldPassword
	c.password.NewPassword = newPassword
	c.commit()
	return nil
}

// CancelPasswordForm closes and wipes the form. A submission still in flight
// completes but no longer touches the form.
func (c *Client) CancelPasswordForm() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.resetPasswordLocked()
	c.commit()
	return nil
}

// SubmitPasswordChange sends the form and blocks for the answer. On success
// the fields are cleared and the form closes after PasswordForm.DismissDelay.
// On failure the message names the cause and the fields are kept. The server
// answers a wrong old password with 401, so here a 401 is an ordinary failure
// and the session stays; a revoked token surfaces on the next counter call.
func (c *Client) SubmitPasswordChange(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.password.Open {
		c.mu.Unlock()
		return ErrPasswordFormClosed
	}
	if c.password.Submitting {
		c.mu.Unlock()
		return errPasswordSubmitting
	}
	c.password.Submitting = true
	c.password.Message = ""
	gen, form := c.generation, c.formGen
	token := c.session.Token
	oldPassword, newPassword := c.password.OldPassword, c.password.NewPassword
	c.commit()

	out := c.api.ChangePassword(ctx, token, oldPassword, newPassword)

	c.mu.Lock()
	if !c.currentLocked(gen, string(api.OpChangePassword)) {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}

	ev := AuditEvent{EventType: EventPasswordChange, RequestID: out.RequestID, Success: out.OK()}
	if out.OK() {
		c.metrics.Inc(MetricPasswordChangeSuccess)
	} else {
		c.metrics.Inc(MetricPasswordChangeFailure)
		ev.Error = out.Message
	}
	c.recordLocked(ev)

	err := passwordError(out)

	// Cancelled or reopened while the request was out.
	if form != c.formGen {
		c.commit()
		return err
	}

	c.password.Submitting = false
	switch {
	case out.OK():
		c.password.Message = msgPasswordChanged
		c.password.OldPassword = ""
		c.password.NewPassword = ""
		c.password.Succeeded = true
		c.scheduleDismissLocked()
	case out.Transport:
		c.password.Message = msgConnectFailed + out.Message
	default:
		c.password.Message = "Error: " + out.Message
	}
	c.commit()
	return err
}

func passwordError(out api.Outcome) error {
	if out.Kind == api.KindUnauthorized {
		return fmt.Errorf("%w: %w", ErrRequestFailed, out.Err())
	}
	return outcomeError(out)
}

// scheduleDismissLocked closes the form after the configured delay unless it
// has been cancelled, reopened or torn down in the meantime.
func (c *Client) scheduleDismissLocked() {
	c.stopDismissLocked()
	delay := c.cfg.PasswordForm.DismissDelay
	if delay <= 0 {
		c.resetPasswordLocked()
		return
	}
	form := c.formGen
	c.dismiss = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.formGen != form {
			c.mu.Unlock()
			return
		}
		c.resetPasswordLocked()
		c.commit()
	})
}

func (c *Client) stopDismissLocked() {
	if c.dismiss != nil {
		c.dismiss.Stop()
		c.dismiss = nil
	}
}

// resetPasswordLocked closes the form and invalidates anything bound to the
// previous one.
func (c *Client) resetPasswordLocked() {
	c.stopDismissLocked()
	c.password = PasswordFormState{}
	c.formGen++
}
