package allocation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures so callers can map them to responses.
type Kind string

const (
	InvalidArgument    Kind = "InvalidArgument"
	NotFound           Kind = "NotFound"
	UpstreamFailure    Kind = "UpstreamFailure"
	PartialApplication Kind = "PartialApplication"
)

// Error is the structured error returned by the engine entry points.
// Succeeded and Failed are set for write failures during distribution.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Succeeded []string
	Failed    []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, " (failed goals: %s)", strings.Join(e.Failed, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an engine error, or "" for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidArgument(err error) *Error {
	return &Error{Kind: InvalidArgument, Message: err.Error(), Err: err}
}

func upstream(op string, err error) *Error {
	return &Error{Kind: UpstreamFailure, Message: op + " failed", Err: err}
}
