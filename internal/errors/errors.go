package errors

import (
	stderrors "errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if stderrors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

// ConflictError reports an operation that is valid in shape but not in the
// current state of the resource (wrong status, cart of another restaurant).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

func IsForbiddenError(err error) (*ForbiddenError, bool) {
	var fe *ForbiddenError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

type DeadlockError struct {
	Message string
}

func (e *DeadlockError) Error() string {
	return e.Message
}

func NewDeadlockError(message string) *DeadlockError {
	return &DeadlockError{Message: message}
}

func IsDeadlockError(err error) (*DeadlockError, bool) {
	var de *DeadlockError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

type GatewayErrorKind string

const (
	GatewayUnavailable GatewayErrorKind = "UNAVAILABLE"
	GatewayDeclined    GatewayErrorKind = "DECLINED"
	GatewayTimeout     GatewayErrorKind = "TIMEOUT"
	GatewayAuth        GatewayErrorKind = "AUTH"
	GatewayMalformed   GatewayErrorKind = "MALFORMED"
)

// GatewayError is returned by the payment provider client. StatusCode is 0
// when no HTTP response was received.
type GatewayError struct {
	Op         string
	Kind       GatewayErrorKind
	StatusCode int
	Cause      error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("payment gateway %s failed (%s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the same request may succeed if retried.
func (e *GatewayError) Transient() bool {
	switch e.Kind {
	case GatewayUnavailable, GatewayTimeout:
		return true
	}
	return e.StatusCode == 429
}

func NewGatewayError(op string, kind GatewayErrorKind, statusCode int, cause error) *GatewayError {
	return &GatewayError{
		Op:         op,
		Kind:       kind,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
