// Package model defines the wire protocol and shared types for the bridge:
// the command/event envelope, printer descriptors and their ID grammar, and
// the error taxonomy every component maps its failures onto.
package model

import "errors"

// Error kinds. Handlers wrap failures in a CodedError tied to one of these so
// callers can branch with errors.Is without inspecting strings.
var (
	// ErrProtocol marks a malformed or unrecognized message shape or action.
	ErrProtocol = errors.New("protocol error")

	// ErrValidation marks a recognized action missing a required field.
	ErrValidation = errors.New("validation error")

	// ErrConnection marks hardware that is unreachable or unavailable.
	ErrConnection = errors.New("connection error")

	// ErrOperation marks hardware that accepted the connection but failed the
	// requested operation.
	ErrOperation = errors.New("operation error")

	// ErrInternal marks an unexpected fault inside a handler.
	ErrInternal = errors.New("internal error")
)

// Error codes carried on the wire in error events.
const (
	CodeParseError        = "parse_error"
	CodeMissingParam      = "missing_param"
	CodeUnknownAction     = "unknown_action"
	CodeBadPrinterID      = "bad_printer_id"
	CodeConnectionError   = "connection_error"
	CodeDrawerError       = "drawer_error"
	CodeNotificationError = "notification_error"
	CodeKeyboardError     = "keyboard_error"
	CodeDiscoveryError    = "discovery_error"
	CodeInternalError     = "internal_error"
)

// CodedError is an error with a wire code and a human-readable message. Kind
// links it to one of the sentinel errors above for errors.Is checks.
type CodedError struct {
	Code    string
	Message string
	Kind    error
}

func (e *CodedError) Error() string { return e.Message }

// Is reports whether the error belongs to the given sentinel kind.
func (e *CodedError) Is(target error) bool { return target == e.Kind }

// ErrorCode extracts the wire code from err, falling back to internal_error.
func ErrorCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return CodeInternalError
}

// ValidationError builds the error for a recognized action missing a field.
func ValidationError(field string) error {
	return &CodedError{
		Code:    CodeMissingParam,
		Message: "no " + field + " specified",
		Kind:    ErrValidation,
	}
}
