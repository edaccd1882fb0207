package goCounter

import (
	"context"
	"errors"
	"sync"
)

// AuthMode selects what AuthForm.Submit does.
type AuthMode uint8

const (
	ModeLogin AuthMode = iota
	ModeRegister
)

func (m AuthMode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "login"
}

const (
	msgRegistered   = "Registration successful! Please login."
	msgActionFailed = "Action failed"
)

var errAuthSubmitting = errors.New("submit already in progress")

// AuthFormState is a snapshot of an AuthForm.
type AuthFormState struct {
	Mode     AuthMode
	Username string
	Password string
	// Error is the server's reason for the last failed submit.
	Error string
	// Notice is shown after a successful registration.
	Notice     string
	Submitting bool
}

// AuthForm is the login/registration form. One submit handler serves both
// modes; only a successful login changes the session.
type AuthForm struct {
	client *Client

	mu    sync.Mutex
	state AuthFormState
}

// NewAuthForm returns an empty form in login mode.
func (c *Client) NewAuthForm() *AuthForm {
	return &AuthForm{client: c}
}

// Toggle switches between login and register and clears the error.
func (f *AuthForm) Toggle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Mode == ModeLogin {
		f.state.Mode = ModeRegister
	} else {
		f.state.Mode = ModeLogin
	}
	f.state.Error = ""
}

// SetCredentials replaces the username and password fields.
func (f *AuthForm) SetCredentials(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Username = username
	f.state.Password = password
}

// Snapshot returns a copy of the form state.
func (f *AuthForm) Snapshot() AuthFormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit registers or logs in with the current fields. In register mode a
// success flips the form to login mode and sets Notice. Failures set Error to
// the server's text and never touch the session. A login whose credential
// could not be persisted still establishes the session; its error is returned
// but not shown on the form.
func (f *AuthForm) Submit(ctx context.Context) error {
	if f.client.State().Authenticated {
		return ErrAlreadyAuthenticated
	}

	f.mu.Lock()
	if f.state.Submitting {
		f.mu.Unlock()
		return errAuthSubmitting
	}
	f.state.Submitting = true
	f.state.Error = ""
	f.state.Notice = ""
	mode, username, password := f.state.Mode, f.state.Username, f.state.Password
	f.mu.Unlock()

	var err error
	if mode == ModeRegister {
		err = f.client.Register(ctx, username, password)
	} else {
		err = f.client.Login(ctx, username, password)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Submitting = false
	switch {
	case err == nil && mode == ModeRegister:
		f.state.Mode = ModeLogin
		f.state.Notice = msgRegistered
	case err == nil, errors.Is(err, ErrCredentialStore):
	default:
		msg := messageOf(err)
		if msg == "" {
			msg = msgActionFailed
		}
		f.state.Error = msg
	}
	return err
}
