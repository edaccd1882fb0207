package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredential is the cause of an authenticated call made without a
	// token. No request is issued.
	ErrNoCredential = errors.New("no credential present")
	// ErrMalformedResponse is the cause of a 2xx response whose body does not
	// match the endpoint's contract.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrTransport is the cause of a call that never received a response.
	ErrTransport = errors.New("transport failure")
)

// Kind classifies a response.
type Kind uint8

const (
	// KindSuccess is any 2xx with a well-formed body.
	KindSuccess Kind = iota
	// KindUnauthorized is a 401 on an authenticated endpoint.
	KindUnauthorized
	// KindFailure is everything else: non-2xx, transport errors, bad bodies.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnauthorized:
		return "unauthorized"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Outcome is the classified result of one call.
type Outcome struct {
	Kind Kind
	// Status is the HTTP status code, zero when no response was received.
	Status int
	// Message is the server's error text for failures, or the transport
	// error description when Transport is set.
	Message string
	// Transport reports that no response was received.
	Transport bool
	// RequestID is the X-Request-ID sent with the call.
	RequestID string
	// Cause is the underlying error for failures that did not come from a
	// server body, such as ErrNoCredential or a dial error.
	Cause error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Err returns nil for successful outcomes and an [*Error] otherwise.
func (o Outcome) Err() error {
	if o.Kind == KindSuccess {
		return nil
	}
	return &Error{Kind: o.Kind, Status: o.Status, Message: o.Message, Err: o.Cause}
}

// CounterOutcome is the result of a counter endpoint. Value is meaningful only
// when OK reports true.
type CounterOutcome struct {
	Outcome
	Value int64
}

// LoginResult carries the credential issued by a successful login.
type LoginResult struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Error is the error form of a non-successful [Outcome].
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api %s (%d %s): %s", e.Kind, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("api %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func success(status int, requestID string) Outcome {
	return Outcome{Kind: KindSuccess, Status: status, RequestID: requestID}
}

func failure(status int, message, requestID string, cause error) Outcome {
	return Outcome{Kind: KindFailure, Status: status, Message: message, RequestID: requestID, Cause: cause}
}

func transportFailure(err error, requestID string) Outcome {
	return Outcome{
		Kind:      KindFailure,
		Message:   err.Error(),
		Transport: true,
		RequestID: requestID,
		Cause:     fmt.Errorf("%w: %w", ErrTransport, err),
	}
}
