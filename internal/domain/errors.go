package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers (handlers, drivers) can map it to a
// response without inspecting message text.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnavailable
	KindInvalidArgument
	KindInvalidState
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Unavailable(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func Gateway(err error, format string, args ...any) *Error {
	return &Error{Kind: KindGateway, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal when err is not a
// *Error anywhere in its chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }
