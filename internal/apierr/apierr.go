// Package apierr classifies failures of calls to the hub and the gradeservice.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// Unreachable means no HTTP response was received (DNS, connect refused, timeout).
	Unreachable Kind = "unreachable"
	// Rejected means the remote answered with a non-2xx status.
	Rejected Kind = "rejected"
	// NotFound is a 404 answer. Callers that treat it as a branch signal check IsNotFound.
	NotFound Kind = "not_found"
	// GradingFailed is the catch-all surfaced to students when a submission fails.
	GradingFailed Kind = "grading_failed"
)

type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: remote returned %d %s", e.Op, e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Unreach(op string, err error) *Error {
	return &Error{Kind: Unreachable, Op: op, Err: err}
}

// FromStatus builds the error for a non-2xx answer; 404 becomes NotFound.
func FromStatus(op string, status int, body []byte) *Error {
	k := Rejected
	if status == http.StatusNotFound {
		k = NotFound
	}
	return &Error{Kind: k, Op: op, Status: status, Body: truncate(string(body), 512)}
}

// Reject builds a Rejected error whatever the status, for call sites where a
// 404 is not an expected branch.
func Reject(op string, status int, body []byte) *Error {
	return &Error{Kind: Rejected, Op: op, Status: status, Body: truncate(string(body), 512)}
}

func Grading(op string, err error) *Error {
	return &Error{Kind: GradingFailed, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsConnect reports whether err is a transport-level failure.
func IsConnect(err error) bool { return KindOf(err) == Unreachable }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
