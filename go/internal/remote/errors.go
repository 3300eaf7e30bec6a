package remote

import (
	"errors"
	"fmt"
)

// Domain exception kinds raised by the game server.
var (
	ErrNoOpponentFound    = errors.New("no opponent found")
	ErrGameNotFound       = errors.New("game not found")
	ErrInvalidGuess       = errors.New("invalid guess")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyLoggedIn    = errors.New("already logged in")
)

// exceptionNames maps wire exception names to their kinds.
var exceptionNames = map[string]error{
	"NoOpponentFound":    ErrNoOpponentFound,
	"GameNotFound":       ErrGameNotFound,
	"InvalidGuess":       ErrInvalidGuess,
	"AlreadyExists":      ErrAlreadyExists,
	"NotFound":           ErrNotFound,
	"InvalidCredentials": ErrInvalidCredentials,
	"AlreadyLoggedIn":    ErrAlreadyLoggedIn,
}

// Error is a domain exception with the server supplied reason.
type Error struct {
	Kind   error
	Reason string
}

// NewError creates a domain exception of the given kind.
func NewError(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// TransportError wraps a timeout, connection failure or other failure below
// the domain layer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDomain reports whether err carries a server domain exception.
func IsDomain(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// Reason returns the human readable reason of a domain exception, or the
// error text for anything else.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	return err.Error()
}

// exceptionName returns the wire name for a domain exception kind.
func exceptionName(err error) (string, bool) {
	for name, kind := range exceptionNames {
		if errors.Is(err, kind) {
			return name, true
		}
	}
	return "", false
}
