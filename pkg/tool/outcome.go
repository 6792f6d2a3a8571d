package tool

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidArgument   ErrorKind = "InvalidArgument"
	KindExternalAPI       ErrorKind = "ExternalApiError"
	KindUnknownCapability ErrorKind = "UnknownCapability"
	KindUnknown           ErrorKind = "Unknown"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}

func ExternalAPI(err error) error {
	return &Error{Kind: KindExternalAPI, Err: err}
}

// KindOf classifies err. Errors that do not carry a kind are Unknown.
func KindOf(err error) ErrorKind {
	var e *Error

	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// Outcome is the result of one invocation, success or failure.
type Outcome struct {
	Result string

	Err *Error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Text renders the outcome for a tool result message.
func (o Outcome) Text() string {
	if o.Err != nil {
		return "error: " + o.Err.Error()
	}

	return o.Result
}

func failure(kind ErrorKind, err error) Outcome {
	var e *Error

	if errors.As(err, &e) {
		return Outcome{Err: &Error{Kind: e.Kind, Err: e.Err}}
	}

	return Outcome{Err: &Error{Kind: kind, Err: err}}
}
