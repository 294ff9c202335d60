package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups error codes by how a caller should react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindQuota
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindQuota:
		return "quota"
	case KindTransient:
		return "transient"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// EngineError is the error type every engine operation returns for expected
// failures. Two EngineErrors match under errors.Is when their codes match, so
// callers compare against the sentinels below.
type EngineError struct {
	Code    string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidInput          = &EngineError{Code: "INVALID_INPUT", Kind: KindValidation, Message: "invalid input"}
	ErrDateOutOfRange        = &EngineError{Code: "DATE_OUT_OF_RANGE", Kind: KindValidation, Message: "date is outside the challenge period"}
	ErrDateInFuture          = &EngineError{Code: "DATE_IN_FUTURE", Kind: KindValidation, Message: "date has not started yet"}
	ErrRoomNotFound          = &EngineError{Code: "ROOM_NOT_FOUND", Kind: KindNotFound, Message: "challenge room not found"}
	ErrParticipationNotFound = &EngineError{Code: "PARTICIPATION_NOT_FOUND", Kind: KindNotFound, Message: "participation not found"}
	ErrForbidden             = &EngineError{Code: "FORBIDDEN", Kind: KindForbidden, Message: "participation belongs to another user"}
	ErrAlreadyEnrolled       = &EngineError{Code: "ALREADY_ENROLLED", Kind: KindConflict, Message: "user already has an active challenge"}
	ErrNotActive             = &EngineError{Code: "NOT_ACTIVE", Kind: KindConflict, Message: "participation is not active"}
	ErrAlreadyFinalized      = &EngineError{Code: "ALREADY_FINALIZED", Kind: KindConflict, Message: "verdict for this date is already final"}
	ErrAlreadyUsedToday      = &EngineError{Code: "ALREADY_USED_TODAY", Kind: KindConflict, Message: "cheat day already used for this date"}
	ErrQuotaExceeded         = &EngineError{Code: "QUOTA_EXCEEDED", Kind: KindQuota, Message: "weekly cheat quota exhausted"}
	ErrCutoffPassed          = &EngineError{Code: "CUTOFF_PASSED", Kind: KindQuota, Message: "cutoff time for this date has passed"}
	ErrTransient             = &EngineError{Code: "TRANSIENT", Kind: KindTransient, Message: "temporary conflict, retry later"}
)

// newError copies a sentinel with a more specific message and cause.
func newError(sentinel *EngineError, msg string, cause error) *EngineError {
	e := *sentinel
	if msg != "" {
		e.Message = msg
	}
	e.Err = cause
	return &e
}

// invalidf returns an INVALID_INPUT error with a formatted message.
func invalidf(format string, args ...any) *EngineError {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

// KindOf reports the kind of err; plain errors are internal.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the engine code of err, or "INTERNAL".
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
