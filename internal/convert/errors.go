package convert

import (
	"errors"
	"fmt"

	"docgate/internal/services"
)

// Kind classifies conversion failures. Values are stable and appear on the wire.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindInvalidRequest      Kind = "invalid_request"
	KindSourceNotFound      Kind = "source_not_found"
	KindLoadFailed          Kind = "load_failed"
	KindUnknownDocumentType Kind = "unknown_document_type"
	KindUnknownImportFilter Kind = "unknown_import_filter"
	KindUnknownExportFilter Kind = "unknown_export_filter"
	KindUnknownExportType   Kind = "unknown_export_type"
	KindNoFilterFound       Kind = "no_filter_found"
	KindInvalidFilterOption Kind = "invalid_filter_option"
	KindEngineUnavailable   Kind = "engine_unavailable"
	KindEngineFailure       Kind = "engine_failure"
)

// Error is a typed conversion failure. Available lists the accepted filter
// names for the unknown-filter kinds.
type Error struct {
	Kind      Kind
	Message   string
	Available []string
	State     State
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind satisfies the classifier interface used at transport boundaries.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// KindOf classifies any error returned from the conversion path.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, services.ErrEngineUnavailable):
		return KindEngineUnavailable
	case errors.Is(err, services.ErrValidation):
		return KindInvalidRequest
	default:
		return KindEngineFailure
	}
}

// engineError wraps a failed engine call made while in state.
func engineError(state State, operation string, err error) *Error {
	return &Error{
		Kind:    classify(err),
		Message: fmt.Sprintf("engine %s failed", operation),
		State:   state,
		Err:     err,
	}
}
