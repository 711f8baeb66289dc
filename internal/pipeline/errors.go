package pipeline

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindClientError  ErrorKind = "client_error"
	KindNotReady     ErrorKind = "not_ready"
	KindBackendFault ErrorKind = "backend_fault"
)

// MaxFaultMessage bounds backend error text returned to clients. The full
// error stays available through Unwrap for logging.
const MaxFaultMessage = 300

var ErrNoScreenshots = errors.New("no screenshots provided")

// Error aborts a request. Message is safe to show to the client.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func clientError(msg string, err error) *Error {
	return &Error{Kind: KindClientError, Message: msg, Err: err}
}

func backendFault(stage string, err error) *Error {
	return &Error{Kind: KindBackendFault, Message: truncate(fmt.Sprintf("%s failed: %v", stage, err), MaxFaultMessage), Err: err}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
