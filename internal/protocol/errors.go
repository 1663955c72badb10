// Package protocol implements the request/response dispatcher: one opcode
// per call site, a uniform error-frame discipline, and the opcode table in
// opcodes.go. It sits directly on top of internal/wire and internal/codec
// and is itself sat on by internal/statement and internal/session.
package protocol

import (
	"errors"
	"fmt"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/wire"
)

// Kind is the driver's error taxonomy. It does not name Go error types
// one-to-one; it names the caller-visible recovery semantics.
type Kind int

const (
	// KindInterfaceError is local API misuse: closed cursor, wrong
	// parameter count, unsupported type. The connection is unaffected.
	KindInterfaceError Kind = iota
	// KindConnectionLost is a socket-level failure, partial frame, or
	// EOF. The connection becomes unusable.
	KindConnectionLost
	// KindAuthFailed means the handshake disagreed on the session key or
	// the server rejected the credentials.
	KindAuthFailed
	// KindProtocolError is a tag, length, or opcode that violates the
	// wire specification. The connection is marked broken.
	KindProtocolError
	// KindDatabaseError is a non-zero code in the standard error frame.
	// The connection remains usable.
	KindDatabaseError
	// KindDataError is a value that could not be marshalled or
	// unmarshalled losslessly (decimal overflow, bad UTF-8, and so on).
	KindDataError
	// KindTimeout is an I/O deadline expiring. The connection is closed.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInterfaceError:
		return "InterfaceError"
	case KindConnectionLost:
		return "ConnectionLost"
	case KindAuthFailed:
		return "AuthFailed"
	case KindProtocolError:
		return "ProtocolError"
	case KindDatabaseError:
		return "DatabaseError"
	case KindDataError:
		return "DataError"
	case KindTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// BreaksConnection reports whether an error of this kind leaves the
// connection unusable for further requests: local recovery is only possible
// for DatabaseError and InterfaceError, everything else closes the
// connection.
func (k Kind) BreaksConnection() bool {
	return k != KindDatabaseError && k != KindInterfaceError
}

// Error is the single error type this driver raises above the wire layer.
// Code and SQLState are only meaningful when Kind == KindDatabaseError.
type Error struct {
	Kind Kind
	Message string
	Code int
	SQLState string
	Cause error
}

func (e *Error) Error() string {
	if e.Kind == KindDatabaseError {
		return fmt.Sprintf("%s: %s (code=%d sqlstate=%s)", e.Kind, e.Message, e.Code, e.SQLState)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewInterfaceError(format string, args ...any) *Error {
	return &Error{Kind: KindInterfaceError, Message: fmt.Sprintf(format, args...)}
}

func NewConnectionLost(cause error) *Error {
	return &Error{Kind: KindConnectionLost, Message: "connection lost", Cause: cause}
}

func NewAuthFailed(cause error) *Error {
	return &Error{Kind: KindAuthFailed, Message: "authentication failed", Cause: cause}
}

func NewProtocolError(format string, args ...any) *Error {
	return &Error{Kind: KindProtocolError, Message: fmt.Sprintf(format, args...)}
}

func NewDatabaseError(code int, message, sqlstate string) *Error {
	return &Error{Kind: KindDatabaseError, Message: message, Code: code, SQLState: sqlstate}
}

func NewDataError(cause error) *Error {
	return &Error{Kind: KindDataError, Message: "value could not be marshalled losslessly", Cause: cause}
}

func NewTimeout(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "I/O timed out", Cause: cause}
}

// Classify maps an error surfaced from internal/wire or internal/codec
// into the taxonomy. Errors already of type *Error pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, wire.ErrConnectionLost):
		return NewConnectionLost(err)
	case errors.Is(err, codec.ErrOverflow):
		return NewDataError(err)
	case errors.Is(err, codec.ErrTruncated), errors.Is(err, codec.ErrInvalidTag):
		return NewProtocolError("%v", err)
	default:
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return NewTimeout(err)
		}
		return NewConnectionLost(err)
	}
}
