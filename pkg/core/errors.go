// pkg/core/errors.go
package core

import "fmt"

// ErrorKind classifies command and pipeline failures. An ErrorKind is itself
// an error so callers can match with errors.Is(err, core.KindValidation).
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindResourceExhausted
	KindExpired
	KindInconsistent
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindExpired:
		return "Expired"
	case KindInconsistent:
		return "Inconsistent"
	default:
		return "UnknownError"
	}
}

func (k ErrorKind) Error() string {
	return k.String()
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CommandError is the reason a command was rejected.
type CommandError struct {
	Kind    ErrorKind   `json:"kind"`
	Command CommandKind `json:"command"`
	Reason  string      `json:"reason"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}

// Invalid builds a ValidationError for cmd.
func Invalid(cmd CommandKind, format string, args ...any) *CommandError {
	return &CommandError{Kind: KindValidation, Command: cmd, Reason: fmt.Sprintf(format, args...)}
}

// Exhausted builds a ResourceExhausted error for cmd.
func Exhausted(cmd CommandKind, format string, args ...any) *CommandError {
	return &CommandError{Kind: KindResourceExhausted, Command: cmd, Reason: fmt.Sprintf(format, args...)}
}
