package completion

import (
	"errors"
	"fmt"
)

// ErrEmptyHistory is returned when a request carries no messages.
var ErrEmptyHistory = errors.New("completion: request has no messages")

// TransportError is a non-success outcome from the completion service: a
// network failure or a non-2xx status. It is fatal for the run.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("completion: transport failure: %v", e.Err)
	}
	return fmt.Sprintf("completion: status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedReplyError means the service answered 2xx but the reply lacked a
// non-empty choices list with a textual message.
type MalformedReplyError struct {
	Reason string
	Err    error
}

func (e *MalformedReplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion: malformed reply: %s: %v", e.Reason, e.Err)
	}
	return "completion: malformed reply: " + e.Reason
}

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// IsTransport reports whether err wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsMalformed reports whether err wraps a *MalformedReplyError.
func IsMalformed(err error) bool {
	var me *MalformedReplyError
	return errors.As(err, &me)
}
