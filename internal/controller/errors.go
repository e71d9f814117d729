package controller

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeDeviceOpen         = "DEVICE_OPEN"
	ErrCodeDeviceClose        = "DEVICE_CLOSE"
	ErrCodeControlEnable      = "CONTROL_ENABLE"
	ErrCodeControlDisable     = "CONTROL_DISABLE"
	ErrCodeExecution          = "EXECUTION"
	ErrCodeStillActive        = "STILL_ACTIVE"
	ErrCodeAlreadyActive      = "ALREADY_ACTIVE"
	ErrCodeClosed             = "CLOSED"
	ErrCodeInvalidInstruction = "INVALID_INSTRUCTION"
)

// Error is a controller error carrying a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrStillActive)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrStillActive        = &Error{Code: ErrCodeStillActive, Message: "controller is still active"}
	ErrAlreadyActive      = &Error{Code: ErrCodeAlreadyActive, Message: "controller is already active"}
	ErrClosed             = &Error{Code: ErrCodeClosed, Message: "controller is closed"}
	ErrInvalidInstruction = &Error{Code: ErrCodeInvalidInstruction, Message: "invalid instruction"}
)

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns the controller error code of err, or "" when err is nil or not
// a controller error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
