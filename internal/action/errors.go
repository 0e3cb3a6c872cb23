package action

import "fmt"

// Kind classifies an expected action failure.
type Kind string

const (
	KindInvalidAction    Kind = "InvalidAction"
	KindUnauthorized     Kind = "Unauthorized"
	KindMissingParameter Kind = "MissingParameter"
	KindNotFound         Kind = "NotFound"
	KindUpstreamError    Kind = "UpstreamError"
	KindNoChange         Kind = "NoChange"
	KindNotConfigured    Kind = "NotConfigured"
	KindInternal         Kind = "InternalError"
)

// Error is an expected failure carrying the message shown to the user.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
