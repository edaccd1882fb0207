package goCounter

import "errors"

var (
	// ErrNotAuthenticated is returned by operations that need a session when none is present.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyAuthenticated is returned by AuthForm.Submit while a session is active.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrCredentialStore wraps credential persistence failures. The in-memory
	// transition has already been applied when it is returned.
	ErrCredentialStore = errors.New("credential store failure")
	// ErrUnauthorized reports that the server rejected the credential and the session was torn down.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRequestFailed reports a non-2xx response that did not end the session.
	ErrRequestFailed = errors.New("request failed")
	// ErrTransport reports a request that received no response.
	ErrTransport = errors.New("transport failure")
	// ErrClientClosed is returned by every operation after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrInvalidConfig wraps Config.Validate failures returned from Build.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrPasswordFormClosed is returned when editing or submitting a password form that is not open.
	ErrPasswordFormClosed = errors.New("password form not open")
)
