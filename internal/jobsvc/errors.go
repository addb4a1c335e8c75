package jobsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
)

// Sentinel errors for job service failures. Every error returned by Client
// is a *Error that matches exactly one of these with errors.Is.
var (
	ErrTimeout     = errors.New("job service timeout")
	ErrUnreachable = errors.New("job service unreachable")
	ErrServer      = errors.New("job service error")
)

const (
	timeoutMessage = "Request timed out. Please check if the server is running."
	unknownMessage = "An unknown error occurred"
)

// Kind classifies a failed call.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindUnreachable
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindUnreachable:
		return ErrUnreachable
	default:
		return ErrServer
	}
}

// Error is the normalized failure of a job service call. Message is safe
// to show to an operator as is.
type Error struct {
	Kind       Kind
	StatusCode int // set for KindServer when a response arrived
	Message    string
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTimeout) and friends work.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// IsNotFound reports whether err is a 404 from the job service.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindServer && e.StatusCode == 404
}

// Message returns the operator-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// retryable reports whether a read may be attempted again.
func retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindTimeout, KindUnreachable:
		return true
	case KindServer:
		return e.StatusCode >= 500
	}
	return false
}

// classifyError maps transport-level errors to a *Error.
func classifyError(err error, baseURL string) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Message: timeoutMessage, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: timeoutMessage, Err: err}
	}

	return &Error{
		Kind:    KindUnreachable,
		Message: "Cannot connect to server. Please check if it is running at " + baseURL,
		Err:     err,
	}
}

// serverError builds a KindServer error from a non-2xx response body.
// The job service answers {"code","message"}; FastAPI-style services
// answer {"detail": "..."}.
func serverError(status int, body []byte) *Error {
	msg := unknownMessage
	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var detail string
		_ = json.Unmarshal(payload.Detail, &detail)
		switch {
		case strings.TrimSpace(payload.Message) != "":
			msg = payload.Message
		case strings.TrimSpace(detail) != "":
			msg = detail
		case payload.Error != nil && strings.TrimSpace(payload.Error.Message) != "":
			msg = payload.Error.Message
		}
	}
	return &Error{Kind: KindServer, StatusCode: status, Message: msg}
}
