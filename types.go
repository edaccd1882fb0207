package goCounter

import (
	"fmt"
	"time"
)

// RoleAdmin is the only role the server lets reset the counter.
const RoleAdmin = "admin"

// CounterStatus is the lifecycle of the displayed counter.
type CounterStatus uint8

const (
	// CounterIdle means there is no session and nothing to display.
	CounterIdle CounterStatus = iota
	// CounterLoading is the state between session establishment and the first fetch result.
	CounterLoading
	// CounterReady means Value holds a server-confirmed or optimistic value.
	CounterReady
	// CounterError means the last operation failed. Value is kept if one was known.
	CounterError
)

func (s CounterStatus) String() string {
	switch s {
	case CounterIdle:
		return "idle"
	case CounterLoading:
		return "loading"
	case CounterReady:
		return "ready"
	case CounterError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Session is the authenticated identity. Token and Role are always both set
// or both empty. Username and ExpiresAt are decoded from the token without
// verification and are empty when it is not a JWT.
type Session struct {
	Token     string
	Role      string
	Username  string
	ExpiresAt time.Time
}

// Active reports whether the session holds a credential.
func (s Session) Active() bool { return s.Token != "" && s.Role != "" }

// CounterState is the displayed counter.
type CounterState struct {
	Status CounterStatus
	// Value is meaningful only when Known is set.
	Value int64
	Known bool
	// Error is the message shown next to the counter. A reconciling fetch
	// after a failed mutation refreshes Value but keeps Error, so the user
	// still sees why the value moved back.
	Error string
	// Pending counts increments and resets awaiting a response.
	Pending int
}

// PasswordFormState is the change-password form.
type PasswordFormState struct {
	Open        bool
	OldPassword string
	NewPassword string
	Message     string
	Submitting  bool
	// Succeeded is set between a successful change and the dismiss delay elapsing.
	Succeeded bool
}

// State is an immutable snapshot of a Client.
type State struct {
	Authenticated bool
	Session       Session
	Counter       CounterState
	PasswordForm  PasswordFormState
	// Generation increases on every session change.
	Generation uint64
}

// ShowCounter reports whether a value should be rendered.
func (s State) ShowCounter() bool {
	return s.Authenticated && s.Counter.Known &&
		(s.Counter.Status == CounterReady || s.Counter.Status == CounterError)
}

// ShowError reports whether the counter error indicator should be rendered.
func (s State) ShowError() bool {
	return s.Authenticated && s.Counter.Error != ""
}

// ShowIncrementControl reports whether the increment action should be offered.
func (s State) ShowIncrementControl() bool { return s.ShowCounter() }

// ShowResetControl reports whether the reset action should be offered. Only
// admins see it; the server enforces the same rule independently.
func (s State) ShowResetControl() bool {
	return s.ShowCounter() && s.Session.Role == RoleAdmin
}

// IsAdmin reports whether the session role is admin.
func (s State) IsAdmin() bool { return s.Authenticated && s.Session.Role == RoleAdmin }
