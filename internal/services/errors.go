package services

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindInvalidRequest     Kind = "InvalidRequest"
	KindNotFound           Kind = "NotFound"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindExternalService    Kind = "ExternalServiceError"
	KindPartialFailure     Kind = "PartialFailure"
	KindFatal              Kind = "Fatal"
)

// Sentinels matching each Kind, for use with errors.Is.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrExternalService    = errors.New("external service error")
	ErrPartialFailure     = errors.New("partial failure")
	ErrFatal              = errors.New("fatal")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindNotFound:
		return ErrNotFound
	case KindPreconditionFailed:
		return ErrPreconditionFailed
	case KindExternalService:
		return ErrExternalService
	case KindPartialFailure:
		return ErrPartialFailure
	default:
		return ErrFatal
	}
}

// PipelineError is a classified failure raised by a pipeline node.
// Message is what gets shown to the user.
type PipelineError struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func newError(kind Kind, stage, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message, Err: err}
}

func invalidRequest(format string, args ...any) *PipelineError {
	return newError(KindInvalidRequest, "", fmt.Sprintf(format, args...), nil)
}

func preconditionFailed(format string, args ...any) *PipelineError {
	return newError(KindPreconditionFailed, "", fmt.Sprintf(format, args...), nil)
}

func externalError(stage, message string, err error) *PipelineError {
	return newError(KindExternalService, stage, message, err)
}

func fatalError(stage, message string, err error) *PipelineError {
	return newError(KindFatal, stage, message, err)
}

// KindOf returns the kind of a pipeline error, or Fatal for anything else.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}
