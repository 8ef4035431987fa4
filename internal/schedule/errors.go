package schedule

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so transport code can map each one to
// its own response.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindNotImplemented
	KindInvalidArgument
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindNotImplemented:
		return "not implemented"
	case KindInvalidArgument:
		return "invalid argument"
	case KindStoreUnavailable:
		return "store unavailable"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Engine operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func notFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notImplemented(op, format string, args ...any) error {
	return &Error{Kind: KindNotImplemented, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func invalidArgument(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func storeUnavailable(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}
